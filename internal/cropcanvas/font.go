package cropcanvas

import (
	"fmt"
	"sync"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
)

var (
	faceOnce sync.Once
	faceVal  font.Face
	faceErr  error
)

func placeholderFace() (font.Face, error) {
	faceOnce.Do(func() {
		ttf, err := truetype.Parse(gomono.TTF)
		if err != nil {
			faceErr = fmt.Errorf("failed to parse font: %v", err)
			return
		}
		faceVal = truetype.NewFace(ttf, &truetype.Options{
			Size:    24,
			DPI:     72,
			Hinting: font.HintingFull,
		})
	})
	return faceVal, faceErr
}
