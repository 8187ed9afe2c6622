package cropcanvas

import (
	"fmt"
	"strings"
)

type Preset int

const (
	PresetWidescreen Preset = iota
	PresetSquare
)

var presetSizes = map[Preset][2]int{
	PresetWidescreen: {1067, 600},
	PresetSquare:     {600, 600},
}

// Size returns the canvas pixel dimensions for the preset.
func (p Preset) Size() (int, int) {
	s, ok := presetSizes[p]
	if !ok {
		s = presetSizes[PresetWidescreen]
	}
	return s[0], s[1]
}

func (p Preset) String() string {
	switch p {
	case PresetWidescreen:
		return "widescreen"
	case PresetSquare:
		return "square"
	default:
		return fmt.Sprintf("preset(%d)", int(p))
	}
}

// Next cycles to the following preset.
func (p Preset) Next() Preset {
	if p == PresetWidescreen {
		return PresetSquare
	}
	return PresetWidescreen
}

func ParsePreset(s string) (Preset, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "widescreen", "wide", "16:9":
		return PresetWidescreen, nil
	case "square", "1:1":
		return PresetSquare, nil
	}
	return PresetWidescreen, fmt.Errorf("unknown canvas preset %q", s)
}
