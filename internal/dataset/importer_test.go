package dataset

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fluxcrop/internal/api"
	"fluxcrop/internal/api/apitest"
)

func newBackendClient(t *testing.T) (*api.Client, *apitest.Backend) {
	t.Helper()
	b := apitest.NewBackend()
	t.Cleanup(b.Close)
	c, err := api.New(b.URL)
	require.NoError(t, err)
	return c, b
}

func TestImportReplacesWorkspace(t *testing.T) {
	client, b := newBackendClient(t)
	b.AddRaw("old.png", []byte("old"))
	dir := t.TempDir()
	writeFiles(t, dir, "one.png", "two.jpg")

	res, err := NewImporter(client, nil).Import(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 2, res.ImportedCount)
	assert.Equal(t, []string{"one.png", "two.jpg"}, b.RawNames())
	assert.Equal(t, dir, b.SourceFolder())
}

func TestImportEmptyFolder(t *testing.T) {
	client, b := newBackendClient(t)
	_, err := NewImporter(client, nil).Import(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, ErrNoImages)
	assert.Empty(t, b.Uploads())
}
