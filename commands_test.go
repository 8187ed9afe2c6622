package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fluxcrop/internal/api"
	"fluxcrop/internal/api/apitest"
)

// execute runs the command tree against a config file pointing at b.
func execute(t *testing.T, b *apitest.Backend, args ...string) (string, error) {
	t.Helper()
	path := writeConfig(t, "server: "+b.URL+"\n")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", path}, args...))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		watchImport, dryRun, concurrency = false, false, 0
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestImportCommandUploadsFolder(t *testing.T) {
	b := apitest.NewBackend()
	t.Cleanup(b.Close)

	dir := t.TempDir()
	data := encodePNG(t, testImage(8, 8))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.png"), data, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), data, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	out, err := execute(t, b, "import", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 2 images, skipped 0")
	assert.Equal(t, []string{"a.png", "b.png"}, b.RawNames())
	assert.Equal(t, dir, b.SourceFolder())
}

func TestImportCommandEmptyFolder(t *testing.T) {
	b := apitest.NewBackend()
	t.Cleanup(b.Close)

	_, err := execute(t, b, "import", t.TempDir())
	assert.Error(t, err)
}

func TestSetsCommandListsTable(t *testing.T) {
	b := apitest.NewBackend()
	t.Cleanup(b.Close)
	b.AddSet("001", []byte("png"), "a cat on a wall")
	b.AddSet("002", []byte("png"), "a dog in the snow")

	out, err := execute(t, b, "sets")
	require.NoError(t, err)
	assert.Contains(t, out, "SET")
	assert.Contains(t, out, "001")
	assert.Contains(t, out, "a dog in the snow")
}

func TestRecaptionCommandDryRun(t *testing.T) {
	b := apitest.NewBackend()
	t.Cleanup(b.Close)
	b.AddSet("001", []byte("png"), "old caption")

	out, err := execute(t, b, "recaption", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Recaptioned 1 of 1 sets")

	set, ok := b.Set("001")
	require.True(t, ok)
	assert.Equal(t, "old caption", set.Caption)
}

func TestSetsTableTruncatesCaption(t *testing.T) {
	long := "a very long caption that keeps going well past the width of the caption column"
	table := setsTable([]api.ProcessedSet{{BaseName: "001", ImageFile: "001.png", Caption: long}})
	assert.Contains(t, table, "001.png")
	assert.NotContains(t, table, long)
	assert.Contains(t, table, "…")
}
