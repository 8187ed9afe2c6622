package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// pngName swaps the extension of an image file name for .png.
func pngName(name string) string {
	return baseName(name) + ".png"
}

func baseName(name string) string {
	name = filepath.Base(name)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// exportPair writes the current crop as <base>.png and the caption as
// <base>.txt into the save directory. Without overwrite it fails with an
// error wrapping os.ErrExist if either file is already there.
func (m *model) exportPair(overwrite bool) (string, string, error) {
	if !m.canvas.HasImage() {
		return "", "", errors.New("no image loaded")
	}
	base := baseName(m.current)
	pngPath, err := m.config.GetSavePath(base + ".png")
	if err != nil {
		return "", "", err
	}
	txtPath, err := m.config.GetSavePath(base + ".txt")
	if err != nil {
		return "", "", err
	}
	if !overwrite {
		for _, p := range []string{pngPath, txtPath} {
			if _, err := os.Stat(p); err == nil {
				return pngPath, txtPath, fmt.Errorf("%s: %w", p, os.ErrExist)
			}
		}
	}

	file, err := os.Create(pngPath)
	if err != nil {
		return "", "", err
	}
	if err := m.canvas.ExportPNG(file); err != nil {
		file.Close()
		return "", "", err
	}
	if err := file.Close(); err != nil {
		return "", "", err
	}

	caption := strings.TrimSpace(m.caption.Value())
	if err := os.WriteFile(txtPath, []byte(caption+"\n"), 0o644); err != nil {
		return "", "", err
	}
	return pngPath, txtPath, nil
}
