// Package namespace implements spec.md §4.J's IndexedNamespace: a flat
// sorted-array mapping from element dotted names to a directory tree of
// handlers, with synthetic directory entries for name prefixes that have
// no element of their own, and a skip count per entry that turns "list
// children of X" into an O(k) contiguous-range scan instead of a tree
// walk.
package namespace

import (
	"sort"
	"strings"

	"github.com/packetflow/router/router"
)

// EntryKind distinguishes a real element from a synthetic directory
// entry inserted to fill in a missing prefix, per spec.md §4.J rule 2.
type EntryKind uint8

const (
	// KindElement is a real element: entry.ElementIndex is valid.
	KindElement EntryKind = iota
	// KindFake is a synthetic directory entry ("FAKE" in spec.md §4.J)
	// standing in for a dotted-name prefix with no element of its own.
	KindFake
)

// Entry is one row of the IndexedNamespace's sorted array S.
type Entry struct {
	// Name is the entry's full dotted name.
	Name string
	// Kind distinguishes a real element entry from a synthetic FAKE
	// directory entry.
	Kind EntryKind
	// ElementIndex is the owning Router's element index; valid only
	// when Kind == KindElement.
	ElementIndex int
	// Skip is the count of immediately following entries in S whose
	// name begins with Name + ".": spec.md §4.J rule 3, the field that
	// makes child listing an O(k) scan rather than a search.
	Skip int
}

// IsDir reports whether entry behaves as a directory in the filesystem
// view: every FAKE entry is a directory, and so is any element entry
// that has children (Skip > 0) — an element named "a" and an element
// named "a.b" both exist, so "a" is simultaneously a leaf (its own
// handlers) and a directory (its descendants).
func (e Entry) IsDir() bool { return e.Kind == KindFake || e.Skip > 0 }

// Namespace is spec.md §4.J's IndexedNamespace: the sorted entry array S
// plus the inverse elementno -> position-in-S map.
type Namespace struct {
	entries []Entry
	// byElement maps a Router element index to its position in entries;
	// spec.md §4.J rule 4's inverse map.
	byElement map[int]int
}

// Build constructs a Namespace from r's current element set. Elements
// are assumed not to change identity or name after this call; a
// Router hot-swap (spec.md §4.C) requires building a fresh Namespace for
// the new Router.
func Build(r *router.Router) *Namespace {
	elems := r.Elements()
	entries := make([]Entry, 0, len(elems))
	seen := make(map[string]bool, len(elems))
	for _, el := range elems {
		entries = append(entries, Entry{Name: el.Name(), Kind: KindElement, ElementIndex: el.Index()})
		seen[el.Name()] = true
	}

	// spec.md §4.J rule 2: insert a synthetic FAKE entry for every
	// prefix-directory implied by a dotted name that has no element of
	// its own (e.g. element "a.b.c" with no element named "a" or "a.b").
	for _, el := range elems {
		name := el.Name()
		for {
			i := strings.LastIndexByte(name, '.')
			if i < 0 {
				break
			}
			name = name[:i]
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			entries = append(entries, Entry{Name: name, Kind: KindFake, ElementIndex: -1})
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	for i := range entries {
		prefix := entries[i].Name + "."
		skip := 0
		for j := i + 1; j < len(entries) && strings.HasPrefix(entries[j].Name, prefix); j++ {
			skip++
		}
		entries[i].Skip = skip
	}

	byElement := make(map[int]int, len(elems))
	for i, e := range entries {
		if e.Kind == KindElement {
			byElement[e.ElementIndex] = i
		}
	}

	return &Namespace{entries: entries, byElement: byElement}
}

// Entries returns the full sorted entry array S.
func (n *Namespace) Entries() []Entry { return append([]Entry(nil), n.entries...) }

// Lookup returns the position of name in S, and whether it was found.
func (n *Namespace) Lookup(name string) (int, bool) {
	i := sort.Search(len(n.entries), func(i int) bool { return n.entries[i].Name >= name })
	if i < len(n.entries) && n.entries[i].Name == name {
		return i, true
	}
	return 0, false
}

// PositionOfElement returns the position in S of the element with the
// given Router index, via the inverse map (spec.md §4.J rule 4).
func (n *Namespace) PositionOfElement(elementIndex int) (int, bool) {
	pos, ok := n.byElement[elementIndex]
	return pos, ok
}

// Children returns the immediate children of the entry at pos: the
// contiguous slice S[pos+1 .. pos+skip(pos)] restricted to entries one
// name-segment below pos (not grandchildren), per spec.md §4.J rule 3.
func (n *Namespace) Children(pos int) []Entry {
	if pos < 0 || pos >= len(n.entries) {
		return nil
	}
	parent := n.entries[pos]
	end := pos + 1 + parent.Skip
	var out []Entry
	for i := pos + 1; i < end; i++ {
		rel := n.entries[i].Name[len(parent.Name)+1:]
		if !strings.Contains(rel, ".") {
			out = append(out, n.entries[i])
		}
	}
	return out
}

// Directory-kind bits occupy the high bits of an inode; the element or
// handler index occupies the low bits. Kinds are disjoint so a caller
// can tell, from the inode alone, which readdir offset region and entry
// table an inode number came from.
const (
	kindShift = 48

	kindGlobal    uint64 = 1 << kindShift // ".h": Router-global handlers
	kindEnumerate uint64 = 2 << kindShift // ".e": numeric element index view
	kindNamed     uint64 = 3 << kindShift // named element/FAKE directory
	kindHandler   uint64 = 4 << kindShift // a handler file within an element
)

const indexMask = (uint64(1) << kindShift) - 1

// Inode encodes a stable inode number for an entry in the named
// (dotted-name) namespace view. Stable means: the same (pos) always
// encodes to the same inode across calls, for the lifetime of this
// Namespace.
func (n *Namespace) Inode(pos int) uint64 {
	return kindNamed | (uint64(pos) & indexMask)
}

// InodeElement encodes the ".e/<index>" numeric view's inode for the
// element with the given Router index.
func InodeElement(elementIndex int) uint64 {
	return kindEnumerate | (uint64(elementIndex) & indexMask)
}

// InodeGlobalHandler encodes the ".h/<handler>" inode for the
// Router-global handler at the given position in its handler list.
func InodeGlobalHandler(handlerIndex int) uint64 {
	return kindGlobal | (uint64(handlerIndex) & indexMask)
}

// InodeHandler encodes a handler file's inode within element entry pos.
func InodeHandler(pos int, handlerIndex int) uint64 {
	return kindHandler | (uint64(pos)&0xFFFFFF)<<24 | (uint64(handlerIndex) & 0xFFFFFF)
}

// Fixed readdir offset regions, per spec.md §4.J's table. A readdir
// implementation resumes a partial listing by remembering the last
// offset returned, so these regions must never be renumbered once
// exposed to a client.
const (
	OffsetDotDot        = 0x000000 // ".."
	OffsetDot           = 0x000001 // "."
	OffsetHandlersBase  = 0x100000 // handler names of the current element
	OffsetHandlersEnd   = 0x1FFFFF
	OffsetNumericBase   = 0x200000 // numeric subdirectories under .e
	OffsetNumericEnd    = 0x2FFFFF
	OffsetNamedBase     = 0x300000 // named children under the current namespace
	OffsetNamedEnd      = 0x3FFFFF
	OffsetSpecial       = 0x400000 // special entries: .e, .h
)
