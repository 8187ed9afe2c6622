package cropcanvas

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRectIntersect(t *testing.T) {
	tests := []struct {
		name string
		a, b Rect
		want Rect
	}{
		{"overlap", Rect{0, 0, 10, 10}, Rect{5, 5, 10, 10}, Rect{5, 5, 5, 5}},
		{"inside", Rect{2, 2, 3, 3}, Rect{0, 0, 10, 10}, Rect{2, 2, 3, 3}},
		{"disjoint", Rect{0, 0, 10, 10}, Rect{20, 0, 5, 5}, Rect{}},
		{"touching edge", Rect{0, 0, 10, 10}, Rect{10, 0, 5, 5}, Rect{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.a.Intersect(tt.b)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Empty(), got.Empty())
		})
	}
}

func TestGhostResetCentersOnCanvasHeight(t *testing.T) {
	g := NewGhost(1600.0 / 900.0)
	g.Reset(1067, 600)

	assert.InDelta(t, 600, g.H, 1e-9)
	assert.InDelta(t, 1066.6667, g.W, 1e-3)
	assert.InDelta(t, 0.1667, g.X, 1e-3)
	assert.Equal(t, 0.0, g.Y)
}

func TestGhostResizeKeepsAspectAndFloor(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	g := NewGhost(3.0 / 2.0)
	g.Reset(600, 600)

	for i := 0; i < 500; i++ {
		g.ResizeBy(rng.Float64()*800 - 450)
		assert.GreaterOrEqual(t, g.H, MinHeight)
		assert.InDelta(t, g.Aspect, g.W/g.H, 1e-9)
	}
}

func TestGhostSetHeightClamps(t *testing.T) {
	g := NewGhost(2)
	g.SetHeight(-40)
	assert.Equal(t, MinHeight, g.H)
	assert.Equal(t, 2*MinHeight, g.W)
}

func TestGhostHitTestPrefersHandle(t *testing.T) {
	g := NewGhost(1)
	g.Rect = Rect{X: 10, Y: 10, W: 200, H: 200}

	assert.Equal(t, HitHandle, g.HitTest(Point{205, 205}, 20))
	assert.Equal(t, HitBody, g.HitTest(Point{50, 50}, 20))
	assert.Equal(t, HitNone, g.HitTest(Point{5, 5}, 20))
	assert.Equal(t, HitNone, g.HitTest(Point{215, 215}, 20))
}

func TestNewGhostRejectsBadAspect(t *testing.T) {
	assert.Equal(t, 1.0, NewGhost(0).Aspect)
	assert.Equal(t, 1.0, NewGhost(-3).Aspect)
}

func TestParsePreset(t *testing.T) {
	p, err := ParsePreset("Square")
	assert.NoError(t, err)
	assert.Equal(t, PresetSquare, p)

	p, err = ParsePreset("")
	assert.NoError(t, err)
	assert.Equal(t, PresetWidescreen, p)

	_, err = ParsePreset("panorama")
	assert.Error(t, err)

	w, h := PresetWidescreen.Size()
	assert.Equal(t, [2]int{1067, 600}, [2]int{w, h})
	assert.Equal(t, PresetSquare, PresetWidescreen.Next())
}
