package cropcanvas

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	xdraw "golang.org/x/image/draw"
)

const halfBlock = "▀"

// Viewport maps terminal cells onto canvas space. Every cell shows two
// vertically stacked canvas samples using an upper half block.
type Viewport struct {
	Cols, Rows       int
	CanvasW, CanvasH int
}

// FitViewport picks the largest cell grid inside maxCols x maxRows that keeps
// the canvas aspect ratio.
func FitViewport(maxCols, maxRows, canvasW, canvasH int) Viewport {
	v := Viewport{CanvasW: canvasW, CanvasH: canvasH}
	if maxCols < 1 || maxRows < 1 || canvasW < 1 || canvasH < 1 {
		return v
	}
	aspect := float64(canvasW) / float64(canvasH)
	cols := maxCols
	rows := int(math.Ceil(float64(cols) / aspect / 2))
	if rows > maxRows {
		rows = maxRows
		cols = int(math.Round(float64(rows*2) * aspect))
	}
	v.Cols, v.Rows = max(cols, 1), max(rows, 1)
	return v
}

func (v Viewport) Valid() bool {
	return v.Cols > 0 && v.Rows > 0 && v.CanvasW > 0 && v.CanvasH > 0
}

// CellSize is the canvas area covered by a single cell.
func (v Viewport) CellSize() (w, h float64) {
	if !v.Valid() {
		return 0, 0
	}
	return float64(v.CanvasW) / float64(v.Cols), float64(v.CanvasH) / float64(v.Rows)
}

// ToCanvas returns the canvas point at the center of a cell and whether the
// cell lies inside the viewport.
func (v Viewport) ToCanvas(col, row int) (Point, bool) {
	cw, ch := v.CellSize()
	p := Point{X: (float64(col) + 0.5) * cw, Y: (float64(row) + 0.5) * ch}
	inside := v.Valid() && col >= 0 && row >= 0 && col < v.Cols && row < v.Rows
	return p, inside
}

// Render samples img down to the cell grid.
func (v Viewport) Render(img image.Image) []string {
	if !v.Valid() || img == nil {
		return nil
	}
	small := image.NewRGBA(image.Rect(0, 0, v.Cols, v.Rows*2))
	xdraw.ApproxBiLinear.Scale(small, small.Bounds(), img, img.Bounds(), xdraw.Src, nil)

	styles := make(map[[2]color.RGBA]lipgloss.Style)
	lines := make([]string, v.Rows)
	for row := 0; row < v.Rows; row++ {
		var sb strings.Builder
		for col := 0; col < v.Cols; col++ {
			key := [2]color.RGBA{small.RGBAAt(col, row*2), small.RGBAAt(col, row*2+1)}
			style, ok := styles[key]
			if !ok {
				style = lipgloss.NewStyle().
					Foreground(lipgloss.Color(hexColor(key[0]))).
					Background(lipgloss.Color(hexColor(key[1])))
				styles[key] = style
			}
			sb.WriteString(style.Render(halfBlock))
		}
		lines[row] = sb.String()
	}
	return lines
}

func hexColor(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
