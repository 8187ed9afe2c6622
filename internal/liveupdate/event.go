package liveupdate

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind names an event type published by the dataset backend.
type Kind string

const (
	KindConnected Kind = "connected"
	KindKeepalive Kind = "keepalive"

	KindImportStart    Kind = "import.start"
	KindImportClearing Kind = "import.clearing"
	KindImportFound    Kind = "import.found"
	KindImportProgress Kind = "import.progress"
	KindImportComplete Kind = "import.complete"
	KindImportError    Kind = "import.error"

	KindFileDeleted      Kind = "file.deleted"
	KindFileProcessed    Kind = "file.processed"
	KindWorkspaceCleared Kind = "workspace.cleared"
	KindWorkspaceError   Kind = "workspace.error"
	KindProcessedDeleted Kind = "processed.deleted"
	KindCaptionUpdated   Kind = "caption.updated"

	KindCaptionGenerateStart      Kind = "caption.generate.start"
	KindCaptionGenerateProcessing Kind = "caption.generate.processing"
	KindCaptionGenerateSuccess    Kind = "caption.generate.success"
	KindCaptionGenerateError      Kind = "caption.generate.error"

	KindProcessStart    Kind = "process.start"
	KindProcessProgress Kind = "process.progress"
	KindProcessError    Kind = "process.error"
)

// Event is a decoded push message.
type Event struct {
	ID   string
	Type string
	Data map[string]any
}

func (e Event) Kind() Kind { return Kind(e.Type) }

// String returns a data field rendered as text, or "" when it is absent.
func (e Event) String(key string) string {
	v, ok := e.Data[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// ParseEvent decodes the JSON payload of a frame. Payloads shaped as
// {"event": ..., "data": ...} carry their own type; any other object takes
// its type from the frame's event field. Anything that is not a JSON object,
// including an envelope whose data is not an object, is rejected.
func ParseEvent(f Frame) (Event, error) {
	var raw any
	if err := json.Unmarshal([]byte(f.Data), &raw); err != nil {
		return Event{}, fmt.Errorf("malformed payload: %w", err)
	}
	evt := Event{ID: f.ID, Type: f.Event}
	obj, ok := raw.(map[string]any)
	if !ok {
		return Event{}, errors.New("malformed payload: not a JSON object")
	}
	if typ, ok := obj["event"].(string); ok {
		evt.Type = typ
		switch data := obj["data"].(type) {
		case map[string]any:
			evt.Data = data
		case nil:
			evt.Data = map[string]any{}
		default:
			return Event{}, errors.New("malformed payload: data is not a JSON object")
		}
		return evt, nil
	}
	evt.Data = obj
	if evt.Type == "" {
		return Event{}, errors.New("malformed payload: missing event type")
	}
	return evt, nil
}
