package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowPushEvictsOldest(t *testing.T) {
	w := NewWindow(3)
	for _, v := range []float64{1, 2, 3, 4} {
		w.Push(v)
	}
	assert.Equal(t, []float64{2, 3, 4}, w.Values())
	assert.Equal(t, 3, w.Len())

	latest, ok := w.Latest()
	require.True(t, ok)
	assert.Equal(t, 4.0, latest)
}

func TestWindowFillKeepsTrailingSamples(t *testing.T) {
	w := NewWindow(3)
	w.Fill([]float64{1, 2, 3, 4, 5})
	assert.Equal(t, []float64{3, 4, 5}, w.Values())
}

func TestWindowStats(t *testing.T) {
	w := NewWindow(10)
	w.Fill([]float64{10, 20, 10, 20})
	assert.InDelta(t, 15.0, w.Mean(), 1e-9)
	assert.InDelta(t, 5.0, w.StdDev(), 1e-9)
}

func TestWindowResize(t *testing.T) {
	w := NewWindow(5)
	w.Fill([]float64{1, 2, 3, 4, 5})
	w.Resize(2)
	assert.Equal(t, []float64{4, 5}, w.Values())
	w.Push(6)
	assert.Equal(t, []float64{5, 6}, w.Values())
}

func TestPearson(t *testing.T) {
	r, ok := pearson([]float64{1, 2, 3, 4}, []float64{2, 4, 6, 8})
	require.True(t, ok)
	assert.InDelta(t, 1.0, r, 1e-9)

	r, ok = pearson([]float64{1, 2, 3, 4}, []float64{8, 6, 4, 2})
	require.True(t, ok)
	assert.InDelta(t, -1.0, r, 1e-9)

	_, ok = pearson([]float64{1, 2, 3}, []float64{5, 5, 5})
	assert.False(t, ok)
}
