// Package cropcanvas keeps a fixed-aspect crop rectangle over a source image
// and renders the visible crop onto a fixed-size raster surface.
//
// A Controller is not safe for concurrent use; the host drives it from a
// single goroutine (the bubbletea update loop).
package cropcanvas

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"time"

	"github.com/fogleman/gg"
	"go.uber.org/zap"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

var (
	ErrNoImage   = errors.New("cropcanvas: no image loaded")
	ErrDestroyed = errors.New("cropcanvas: controller destroyed")
)

var DefaultBackground = color.RGBA{R: 24, G: 24, B: 27, A: 255}

type Options struct {
	Preset      Preset
	Background  color.Color
	HandleSize  float64
	GracePeriod time.Duration
	// Scaler is used when the crop maps to a different pixel size than the
	// output region. Defaults to xdraw.ApproxBiLinear.
	Scaler xdraw.Scaler
	Logger *zap.Logger
	Now    func() time.Time
}

type interaction int

const (
	interactionNone interaction = iota
	interactionDrag
	interactionResize
)

type session struct {
	mode   interaction
	anchor Point
}

type Controller struct {
	opts   Options
	logger *zap.Logger

	width, height int
	preset        Preset
	rgba          *image.RGBA
	dc            *gg.Context

	img   image.Image
	ghost *Ghost

	session session
	hLock   bool

	animating    bool
	stopAt       time.Time
	dirty        bool
	pendingReset bool
	destroyed    bool
}

func New(opts Options) *Controller {
	if opts.Background == nil {
		opts.Background = DefaultBackground
	}
	if opts.HandleSize <= 0 {
		opts.HandleSize = HandleSize
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = 150 * time.Millisecond
	}
	if opts.Scaler == nil {
		opts.Scaler = xdraw.ApproxBiLinear
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Controller{opts: opts, logger: opts.Logger}
	w, h := opts.Preset.Size()
	c.resize(w, h, opts.Preset)
	return c
}

func (c *Controller) resize(w, h int, preset Preset) {
	c.width, c.height, c.preset = w, h, preset
	c.rgba = image.NewRGBA(image.Rect(0, 0, w, h))
	c.dc = gg.NewContextForRGBA(c.rgba)
	c.fillBackground()
}

func (c *Controller) fillBackground() {
	c.dc.SetColor(c.opts.Background)
	c.dc.Clear()
}

// Decode reads a png, jpeg or webp image.
func Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("decode image: empty bounds %v", b)
	}
	return img, nil
}

// LoadImage decodes r and installs it as the source image. On failure the
// current image and ghost rectangle are left untouched.
func (c *Controller) LoadImage(r io.Reader) error {
	if c.destroyed {
		return ErrDestroyed
	}
	img, err := Decode(r)
	if err != nil {
		c.logger.Warn("image decode failed", zap.Error(err))
		return err
	}
	c.SetImage(img)
	return nil
}

// SetImage installs an already decoded image, resets the ghost rectangle and
// runs the render loop until the first frame is drawn.
func (c *Controller) SetImage(img image.Image) {
	if c.destroyed || img == nil {
		return
	}
	b := img.Bounds()
	c.img = img
	c.ghost = NewGhost(float64(b.Dx()) / float64(b.Dy()))
	c.ghost.Reset(float64(c.width), float64(c.height))
	c.session = session{}
	c.pendingReset = false
	c.dirty = true
	c.runOnce()
	c.logger.Debug("image loaded",
		zap.Int("width", b.Dx()),
		zap.Int("height", b.Dy()),
		zap.Float64("aspect", c.ghost.Aspect))
}

// SetCanvasDimensions clears and resizes the surface. The ghost rectangle is
// re-centered on the next frame, once the new dimensions have settled.
func (c *Controller) SetCanvasDimensions(w, h int, preset Preset) {
	if c.destroyed || w <= 0 || h <= 0 {
		return
	}
	c.resize(w, h, preset)
	if c.img != nil {
		c.pendingReset = true
	}
	c.dirty = true
	c.runOnce()
}

func (c *Controller) SetPreset(p Preset) {
	w, h := p.Size()
	c.SetCanvasDimensions(w, h, p)
}

func (c *Controller) Preset() Preset       { return c.preset }
func (c *Controller) Size() (int, int)     { return c.width, c.height }
func (c *Controller) HasImage() bool       { return c.img != nil }
func (c *Controller) Surface() image.Image { return c.rgba }
func (c *Controller) Dirty() bool          { return c.dirty }

// SetHandleSize sets the side of the square resize handle, in canvas units.
// Hosts with coarse pointers should pass at least their pointer resolution.
func (c *Controller) SetHandleSize(size float64) {
	if size > 0 {
		c.opts.HandleSize = size
	}
}

// Ghost returns a copy of the crop rectangle, or false if no image is loaded.
func (c *Controller) Ghost() (Ghost, bool) {
	if c.ghost == nil {
		return Ghost{}, false
	}
	return *c.ghost, true
}

// SetGhost replaces the crop rectangle geometry. The aspect ratio of the
// loaded image wins over the one in g.
func (c *Controller) SetGhost(g Ghost) {
	if c.ghost == nil || c.destroyed {
		return
	}
	c.ghost.MoveTo(g.X, g.Y)
	c.ghost.SetHeight(g.H)
	c.dirty = true
	c.runOnce()
}

// Nudge moves the ghost by a delta, honoring the horizontal lock.
func (c *Controller) Nudge(dx, dy float64) {
	if c.ghost == nil || c.destroyed {
		return
	}
	if c.hLock {
		dy = 0
	}
	c.ghost.Translate(dx, dy)
	c.dirty = true
	c.runOnce()
}

func (c *Controller) ResizeBy(dh float64) {
	if c.ghost == nil || c.destroyed {
		return
	}
	c.ghost.ResizeBy(dh)
	c.dirty = true
	c.runOnce()
}

// SetHorizontalLock latches the modifier that pins vertical position while
// dragging.
func (c *Controller) SetHorizontalLock(on bool) { c.hLock = on }

func (c *Controller) Interacting() bool { return c.session.mode != interactionNone }
func (c *Controller) Dragging() bool    { return c.session.mode == interactionDrag }
func (c *Controller) Resizing() bool    { return c.session.mode == interactionResize }

// PointerDown starts a resize when p hits the corner handle, a drag when it
// hits the body, and nothing otherwise.
func (c *Controller) PointerDown(p Point) Hit {
	if c.ghost == nil || c.destroyed {
		return HitNone
	}
	hit := c.ghost.HitTest(p, c.opts.HandleSize)
	switch hit {
	case HitHandle:
		c.session = session{
			mode:   interactionResize,
			anchor: Point{X: p.X - c.ghost.Right(), Y: p.Y - c.ghost.Bottom()},
		}
	case HitBody:
		c.session = session{
			mode:   interactionDrag,
			anchor: Point{X: p.X - c.ghost.X, Y: p.Y - c.ghost.Y},
		}
	default:
		return HitNone
	}
	c.startLoop()
	return hit
}

func (c *Controller) PointerMove(p Point) {
	if c.ghost == nil || c.destroyed {
		return
	}
	switch c.session.mode {
	case interactionDrag:
		y := p.Y - c.session.anchor.Y
		if c.hLock {
			y = c.ghost.Y
		}
		c.ghost.MoveTo(p.X-c.session.anchor.X, y)
	case interactionResize:
		c.ghost.SetHeight(p.Y - c.session.anchor.Y - c.ghost.Y)
	default:
		return
	}
	c.dirty = true
}

// PointerUp ends the interaction; the loop keeps running for the grace period
// to absorb trailing move events.
func (c *Controller) PointerUp() {
	if c.session.mode == interactionNone {
		return
	}
	c.session = session{}
	if c.animating {
		c.stopAt = c.opts.Now().Add(c.opts.GracePeriod)
	}
}

func (c *Controller) PointerLeave() {
	if c.session.mode == interactionNone {
		return
	}
	c.session = session{}
	if c.dirty && !c.destroyed {
		c.Draw()
	}
	c.stopLoop()
}

func (c *Controller) startLoop() {
	c.animating = true
	c.stopAt = time.Time{}
}

// runOnce keeps the loop alive for exactly one more frame unless an
// interaction already holds it open.
func (c *Controller) runOnce() {
	if c.session.mode != interactionNone {
		return
	}
	c.animating = true
	c.stopAt = c.opts.Now()
}

func (c *Controller) stopLoop() {
	c.animating = false
	c.stopAt = time.Time{}
}

func (c *Controller) Animating() bool { return c.animating && !c.destroyed }

// Tick runs one frame of the render loop. It returns whether the surface was
// redrawn and whether the host should schedule another frame.
func (c *Controller) Tick(now time.Time) (redrawn, more bool) {
	if c.destroyed || !c.animating {
		return false, false
	}
	if c.dirty || c.pendingReset {
		c.Draw()
		redrawn = true
	}
	if c.session.mode == interactionNone && !c.stopAt.IsZero() && !now.Before(c.stopAt) {
		c.stopLoop()
		return redrawn, false
	}
	return redrawn, true
}

// Draw paints the background and copies the part of the source image under
// the ghost rectangle that falls inside the canvas.
func (c *Controller) Draw() {
	if c.destroyed {
		return
	}
	if c.pendingReset && c.ghost != nil {
		c.ghost.Reset(float64(c.width), float64(c.height))
	}
	c.pendingReset = false
	c.dirty = false
	c.fillBackground()

	if c.img == nil {
		c.drawPlaceholder()
		return
	}
	canvas := Rect{W: float64(c.width), H: float64(c.height)}
	inter := c.ghost.Intersect(canvas)
	if inter.Empty() {
		return
	}

	b := c.img.Bounds()
	scale := c.ghost.Scale(float64(b.Dy()))
	src := image.Rect(
		b.Min.X+round((inter.X-c.ghost.X)*scale),
		b.Min.Y+round((inter.Y-c.ghost.Y)*scale),
		b.Min.X+round((inter.Right()-c.ghost.X)*scale),
		b.Min.Y+round((inter.Bottom()-c.ghost.Y)*scale),
	).Intersect(b)
	dst := image.Rect(round(inter.X), round(inter.Y), round(inter.Right()), round(inter.Bottom())).
		Intersect(c.rgba.Bounds())
	if src.Empty() || dst.Empty() {
		return
	}
	if src.Dx() == dst.Dx() && src.Dy() == dst.Dy() {
		xdraw.Copy(c.rgba, dst.Min, c.img, src, xdraw.Src, nil)
		return
	}
	c.opts.Scaler.Scale(c.rgba, dst, c.img, src, xdraw.Src, nil)
}

func (c *Controller) drawPlaceholder() {
	face, err := placeholderFace()
	if err != nil {
		return
	}
	c.dc.SetFontFace(face)
	c.dc.SetColor(color.RGBA{R: 113, G: 113, B: 122, A: 255})
	c.dc.DrawStringAnchored("no image loaded", float64(c.width)/2, float64(c.height)/2, 0.5, 0.5)
}

// ExportPNG encodes the current surface losslessly.
func (c *Controller) ExportPNG(w io.Writer) error {
	if c.destroyed {
		return ErrDestroyed
	}
	if c.img == nil {
		return ErrNoImage
	}
	if c.dirty || c.pendingReset {
		c.Draw()
	}
	if err := c.dc.EncodePNG(w); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

func (c *Controller) ExportedImage() ([]byte, error) {
	var buf bytes.Buffer
	if err := c.ExportPNG(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Clear drops the source image and crop rectangle and blanks the surface.
func (c *Controller) Clear() {
	if c.destroyed {
		return
	}
	c.img = nil
	c.ghost = nil
	c.session = session{}
	c.pendingReset = false
	c.dirty = true
	c.runOnce()
}

// Destroy halts the render loop and releases the surface. Safe to call more
// than once.
func (c *Controller) Destroy() {
	if c.destroyed {
		return
	}
	c.stopLoop()
	c.session = session{}
	c.img = nil
	c.ghost = nil
	c.destroyed = true
}

func round(f float64) int {
	return int(math.Round(f))
}
