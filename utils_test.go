package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanClipboardText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain multi-line", "a woman\n  standing on\ta pier\n", "a woman standing on a pier"},
		{"control characters", "a cat\x00\x07 asleep", "a cat asleep"},
		{"rtf", `{\rtf1\ansi two women \par on a pier}`, "two women on a pier"},
		{"rtf escapes", `{\rtf1 a \{braced\} word}`, "a {braced} word"},
		{"html", "<html><body><p>a dog</p><p>in the <b>snow</b></p></body></html>", "a dog in the snow"},
		{"html script", `<div><script>var x = 1;</script>a red car</div>`, "a red car"},
		{"html entities", "<p>salt &amp; pepper</p>", "salt & pepper"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanClipboardText(tt.in))
		})
	}
}

func TestRichTextDetection(t *testing.T) {
	assert.True(t, isRTF(`{\rtf1\ansi hello}`))
	assert.False(t, isRTF("plain {braces}"))
	assert.True(t, isHTML("  <div>hi</div>"))
	assert.False(t, isHTML("a < b and c > d"))
}

func TestPNGName(t *testing.T) {
	assert.Equal(t, "photo.png", pngName("photo.jpg"))
	assert.Equal(t, "my.photo.png", pngName("dir/my.photo.webp"))
	assert.Equal(t, "noext", baseName("noext"))
}
