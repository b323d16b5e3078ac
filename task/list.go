package task

// List is the sorted-intrusive-list Scheduler: insertion walks backward
// from the tail until it finds the first task whose pass is ≤ the new
// task's pass, giving good cache behavior when few tasks are scheduled —
// the common case for a per-thread task count in the tens rather than the
// thousands. It is the default Scheduler (see thread.WithTaskHeap for the
// alternative).
type List struct {
	head, tail *Task
	n          int
}

var _ Scheduler = (*List)(nil)

// NewList returns an empty List scheduler.
func NewList() *List { return &List{} }

func (l *List) Len() int { return l.n }

func (l *List) Head() *Task { return l.head }

// Insert walks backward from the tail, matching spec.md §4.D exactly:
// "insertion walks backward from the tail until finding the first task
// with pass ≤ new_pass".
func (l *List) Insert(t *Task) {
	t.listPrev, t.listNext = nil, nil

	cur := l.tail
	for cur != nil && PassGT(cur.pass, t.pass) {
		cur = cur.listPrev
	}
	// cur is now either nil (new task has the lowest pass) or the last
	// task with pass <= t.pass; insert immediately after cur.
	if cur == nil {
		t.listNext = l.head
		if l.head != nil {
			l.head.listPrev = t
		} else {
			l.tail = t
		}
		l.head = t
	} else {
		t.listNext = cur.listNext
		t.listPrev = cur
		if cur.listNext != nil {
			cur.listNext.listPrev = t
		} else {
			l.tail = t
		}
		cur.listNext = t
	}
	l.n++
	t.markScheduled(true)
}

func (l *List) Remove(t *Task) bool {
	if !t.scheduled {
		return false
	}
	if t.listPrev != nil {
		t.listPrev.listNext = t.listNext
	} else {
		l.head = t.listNext
	}
	if t.listNext != nil {
		t.listNext.listPrev = t.listPrev
	} else {
		l.tail = t.listPrev
	}
	t.listPrev, t.listNext = nil, nil
	l.n--
	t.markScheduled(false)
	return true
}

// PopHead removes and returns the lowest-pass task, or nil if empty.
func (l *List) PopHead() *Task {
	h := l.head
	if h == nil {
		return nil
	}
	l.Remove(h)
	return h
}
