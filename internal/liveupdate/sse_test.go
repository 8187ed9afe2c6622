package liveupdate

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoderFrames(t *testing.T) {
	stream := strings.Join([]string{
		": comment",
		"id: 1",
		"event: import.progress",
		`data: {"current": 3,`,
		`data:  "total": 10}`,
		"",
		"",
		"retry: 2500",
		"data: plain",
		"",
		"event: ignored-without-data",
		"",
		"event: keepalive",
		"data: {}",
		"",
		"",
	}, "\n")

	dec := NewDecoder(strings.NewReader(stream))

	f, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, Frame{ID: "1", Event: "import.progress", Data: "{\"current\": 3,\n \"total\": 10}"}, f)

	f, err = dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "message", f.Event)
	assert.Equal(t, "plain", f.Data)
	assert.Equal(t, 2500*time.Millisecond, f.Retry)

	f, err = dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "keepalive", f.Event)

	_, err = dec.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoderIncompleteFrameAtEOF(t *testing.T) {
	dec := NewDecoder(strings.NewReader("event: x\ndata: {}\n"))
	_, err := dec.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestParseEventEnvelope(t *testing.T) {
	evt, err := ParseEvent(Frame{Event: "message", Data: `{"event":"import.progress","data":{"current":3,"total":10,"filename":"a.jpg"}}`})
	require.NoError(t, err)
	assert.Equal(t, "import.progress", evt.Type)
	assert.Equal(t, "3", evt.String("current"))
	assert.Equal(t, "a.jpg", evt.String("filename"))
}

func TestParseEventBarePayload(t *testing.T) {
	evt, err := ParseEvent(Frame{ID: "9", Event: "file.deleted", Data: `{"filename":"b.png"}`})
	require.NoError(t, err)
	assert.Equal(t, Event{ID: "9", Type: "file.deleted", Data: map[string]any{"filename": "b.png"}}, evt)
}

func TestParseEventMalformed(t *testing.T) {
	_, err := ParseEvent(Frame{Event: "x", Data: `{"event":`})
	assert.Error(t, err)

	_, err = ParseEvent(Frame{Data: `{"a":1}`})
	assert.Error(t, err)

	for _, data := range []string{`[1,2]`, `"x"`, `42`, `null`, `{"event":"image_processed","data":[1]}`} {
		_, err = ParseEvent(Frame{Event: "x", Data: data})
		if assert.Error(t, err, data) {
			assert.Contains(t, err.Error(), "malformed payload", data)
		}
	}
}
