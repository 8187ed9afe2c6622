package cropcanvas

import "math"

const (
	MinHeight  = 100.0
	HandleSize = 20.0
)

type Point struct {
	X, Y float64
}

type Rect struct {
	X, Y, W, H float64
}

func (r Rect) Right() float64  { return r.X + r.W }
func (r Rect) Bottom() float64 { return r.Y + r.H }

func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.Right() && p.Y >= r.Y && p.Y <= r.Bottom()
}

// Intersect returns the axis-aligned overlap of r and o. A non-overlapping
// pair yields an empty rect.
func (r Rect) Intersect(o Rect) Rect {
	x0 := math.Max(r.X, o.X)
	y0 := math.Max(r.Y, o.Y)
	x1 := math.Min(r.Right(), o.Right())
	y1 := math.Min(r.Bottom(), o.Bottom())
	if x1 <= x0 || y1 <= y0 {
		return Rect{}
	}
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

type Hit int

const (
	HitNone Hit = iota
	HitHandle
	HitBody
)

// Ghost is the crop region laid over the source image. Its width/height ratio
// always equals Aspect and its height never drops below MinHeight.
type Ghost struct {
	Rect
	Aspect float64
}

func NewGhost(aspect float64) *Ghost {
	if aspect <= 0 || math.IsNaN(aspect) || math.IsInf(aspect, 0) {
		aspect = 1
	}
	return &Ghost{Aspect: aspect}
}

// Reset sizes the ghost to the canvas height and centers it horizontally.
func (g *Ghost) Reset(canvasW, canvasH float64) {
	g.H = math.Max(canvasH, MinHeight)
	g.W = g.H * g.Aspect
	g.X = (canvasW - g.W) / 2
	g.Y = 0
}

func (g *Ghost) MoveTo(x, y float64) {
	g.X = x
	g.Y = y
}

func (g *Ghost) Translate(dx, dy float64) {
	g.X += dx
	g.Y += dy
}

// SetHeight resizes around the top-left corner, keeping the aspect ratio.
func (g *Ghost) SetHeight(h float64) {
	if h < MinHeight || math.IsNaN(h) {
		h = MinHeight
	}
	g.H = h
	g.W = h * g.Aspect
}

// ResizeBy grows (or shrinks) the height by dh.
func (g *Ghost) ResizeBy(dh float64) {
	g.SetHeight(g.H + dh)
}

func (g *Ghost) HandleRect(size float64) Rect {
	return Rect{X: g.Right() - size, Y: g.Bottom() - size, W: size, H: size}
}

// HitTest checks the resize handle before the body.
func (g *Ghost) HitTest(p Point, handleSize float64) Hit {
	if g.HandleRect(handleSize).Contains(p) {
		return HitHandle
	}
	if g.Rect.Contains(p) {
		return HitBody
	}
	return HitNone
}

// Scale is the number of source-image pixels per canvas unit.
func (g *Ghost) Scale(naturalH float64) float64 {
	if g.H <= 0 {
		return 1
	}
	return naturalH / g.H
}
