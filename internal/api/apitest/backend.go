// Package apitest provides an in-memory dataset backend for tests.
package apitest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
)

type Set struct {
	Image   []byte
	Caption string
}

// Backend serves the dataset HTTP routes from memory.
type Backend struct {
	*httptest.Server

	mu        sync.Mutex
	raw       map[string][]byte
	sets      map[string]*Set
	uploads   []string
	source    string
	processed []string

	// Caption answers /api/generate-caption. A non-nil error becomes a 500.
	Caption func(filename string, image []byte) (string, error)
}

func NewBackend() *Backend {
	b := &Backend{
		raw:  make(map[string][]byte),
		sets: make(map[string]*Set),
		Caption: func(filename string, _ []byte) (string, error) {
			return "a photo of " + filename, nil
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", b.health)
	mux.HandleFunc("GET /api/raw-images", b.listRaw)
	mux.HandleFunc("GET /api/raw-image/{filename}", b.getRaw)
	mux.HandleFunc("DELETE /api/raw-image/{filename}", b.deleteRaw)
	mux.HandleFunc("DELETE /api/raw-images/clear", b.clearRaw)
	mux.HandleFunc("POST /api/import-upload", b.importUpload)
	mux.HandleFunc("GET /api/processed-images", b.listSets)
	mux.HandleFunc("GET /api/processed-image/{filename}", b.getProcessed)
	mux.HandleFunc("GET /api/processed-caption/{base}", b.getCaption)
	mux.HandleFunc("PUT /api/processed-caption/{base}", b.putCaption)
	mux.HandleFunc("DELETE /api/processed-set/{base}", b.deleteSet)
	mux.HandleFunc("POST /api/process", b.process)
	mux.HandleFunc("POST /api/generate-caption", b.generate)
	b.Server = httptest.NewServer(mux)
	return b
}

func (b *Backend) AddRaw(name string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.raw[name] = data
}

func (b *Backend) AddSet(base string, image []byte, caption string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sets[base] = &Set{Image: image, Caption: caption}
}

func (b *Backend) RawNames() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return sortedKeys(b.raw)
}

func (b *Backend) Set(base string) (Set, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sets[base]
	if !ok {
		return Set{}, false
	}
	return *s, true
}

// Uploads lists every file name received by import-upload, in arrival order.
func (b *Backend) Uploads() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.uploads...)
}

func (b *Backend) SourceFolder() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.source
}

// Processed lists the original filenames submitted to /api/process.
func (b *Backend) Processed() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.processed...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func fail(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, map[string]string{"detail": detail})
}

func (b *Backend) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "version": "0.1.0", "sse_clients": 0})
}

func (b *Backend) listRaw(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"files": b.RawNames()})
}

func (b *Backend) getRaw(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	data, ok := b.raw[r.PathValue("filename")]
	b.mu.Unlock()
	if !ok {
		fail(w, http.StatusNotFound, "Image not found")
		return
	}
	_, _ = w.Write(data)
}

func (b *Backend) deleteRaw(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")
	b.mu.Lock()
	_, ok := b.raw[name]
	delete(b.raw, name)
	b.mu.Unlock()
	if !ok {
		fail(w, http.StatusNotFound, "File not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Deleted " + name})
}

func (b *Backend) clearRaw(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	n := len(b.raw)
	b.raw = make(map[string][]byte)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": fmt.Sprintf("Cleared %d images from workspace", n),
	})
}

func (b *Backend) importUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	imported, skipped := 0, 0
	b.mu.Lock()
	defer b.mu.Unlock()
	b.source = r.FormValue("source_folder")
	b.raw = make(map[string][]byte)
	for _, fh := range r.MultipartForm.File["files"] {
		b.uploads = append(b.uploads, fh.Filename)
		if !strings.HasPrefix(fh.Header.Get("Content-Type"), "image/") {
			skipped++
			continue
		}
		f, err := fh.Open()
		if err != nil {
			skipped++
			continue
		}
		data, _ := io.ReadAll(f)
		f.Close()
		b.raw[fh.Filename] = data
		imported++
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "success",
		"imported_count": imported,
		"skipped_count":  skipped,
	})
}

func (b *Backend) listSets(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sets := []map[string]string{}
	for _, base := range sortedKeys(b.sets) {
		sets = append(sets, map[string]string{
			"base_name":    base,
			"image_file":   base + ".png",
			"caption_file": base + ".txt",
			"caption":      b.sets[base].Caption,
			"created":      "2026-01-02T03:04:05",
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sets": sets, "count": len(sets)})
}

func (b *Backend) getProcessed(w http.ResponseWriter, r *http.Request) {
	base := strings.TrimSuffix(r.PathValue("filename"), ".png")
	b.mu.Lock()
	s, ok := b.sets[base]
	b.mu.Unlock()
	if !ok {
		fail(w, http.StatusNotFound, "Processed image not found")
		return
	}
	_, _ = w.Write(s.Image)
}

func (b *Backend) getCaption(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	s, ok := b.sets[r.PathValue("base")]
	b.mu.Unlock()
	if !ok {
		fail(w, http.StatusNotFound, "Caption file not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"caption": s.Caption})
}

func (b *Backend) putCaption(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Caption string `json:"caption"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		fail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	base := r.PathValue("base")
	b.mu.Lock()
	if s, ok := b.sets[base]; ok {
		s.Caption = body.Caption
	} else {
		b.sets[base] = &Set{Caption: body.Caption}
	}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Caption updated"})
}

func (b *Backend) deleteSet(w http.ResponseWriter, r *http.Request) {
	base := r.PathValue("base")
	b.mu.Lock()
	_, ok := b.sets[base]
	delete(b.sets, base)
	b.mu.Unlock()
	if !ok {
		fail(w, http.StatusNotFound, "Set not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "success",
		"message":       "Deleted set " + base,
		"deleted_files": []string{base + ".png", base + ".txt"},
	})
}

func (b *Backend) process(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	f, _, err := r.FormFile("file")
	if err != nil {
		fail(w, http.StatusUnprocessableEntity, "file is required")
		return
	}
	data, _ := io.ReadAll(f)
	f.Close()

	b.mu.Lock()
	base := fmt.Sprintf("%03d", len(b.sets)+1)
	b.sets[base] = &Set{Image: data, Caption: r.FormValue("caption")}
	b.processed = append(b.processed, r.FormValue("original_filename"))
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{
		"status":          "success",
		"output_filename": base + ".png",
		"message":         "Image processed successfully",
	})
}

func (b *Backend) generate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	f, fh, err := r.FormFile("file")
	if err != nil {
		fail(w, http.StatusUnprocessableEntity, "file is required")
		return
	}
	data, _ := io.ReadAll(f)
	f.Close()
	caption, err := b.Caption(fh.Filename, data)
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "caption": caption})
}
