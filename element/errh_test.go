package element

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorHandlerCollectsReports(t *testing.T) {
	errh := NewErrorHandler("conf:3", nil)
	errh.Message("starting up")
	errh.Warning("deprecated option %q", "foo")
	err := errh.Error("bad port count")
	require.Error(t, err)

	reports := errh.Reports()
	require.Len(t, reports, 3)
	assert.Equal(t, SeverityMessage, reports[0].Severity)
	assert.Equal(t, SeverityWarning, reports[1].Severity)
	assert.Equal(t, SeverityError, reports[2].Severity)
	assert.Equal(t, "conf:3", reports[2].Landmark)
	assert.True(t, errh.HasErrors())
}

func TestErrorHandlerWithLandmarkIsIndependent(t *testing.T) {
	base := NewErrorHandler("a.b", nil)
	derived := base.WithLandmark("c.d")

	base.Message("on base")
	derived.Message("on derived")

	assert.Len(t, base.Reports(), 1)
	assert.Len(t, derived.Reports(), 1)
	assert.Equal(t, "a.b", base.Reports()[0].Landmark)
	assert.Equal(t, "c.d", derived.Reports()[0].Landmark)
}

func TestErrorHandlerNoErrorsByDefault(t *testing.T) {
	errh := NewErrorHandler("x", nil)
	errh.Message("hi")
	assert.False(t, errh.HasErrors())
}
