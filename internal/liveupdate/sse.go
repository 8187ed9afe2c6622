package liveupdate

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
	"strings"
	"time"
)

const maxFrameSize = 1 << 20

// Frame is one dispatched server-sent event.
type Frame struct {
	ID    string
	Event string
	Data  string
	Retry time.Duration
}

// Decoder splits a text/event-stream body into frames.
type Decoder struct {
	sc *bufio.Scanner
}

func NewDecoder(r io.Reader) *Decoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	return &Decoder{sc: sc}
}

// Next returns the next frame that carries data. It returns io.EOF once the
// stream ends.
func (d *Decoder) Next() (Frame, error) {
	var (
		frame Frame
		data  bytes.Buffer
		seen  bool
	)
	for d.sc.Scan() {
		line := d.sc.Text()
		if line == "" {
			if !seen {
				frame = Frame{}
				continue
			}
			frame.Data = strings.TrimSuffix(data.String(), "\n")
			if frame.Event == "" {
				frame.Event = "message"
			}
			return frame, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			frame.Event = value
		case "data":
			data.WriteString(value)
			data.WriteByte('\n')
			seen = true
		case "id":
			frame.ID = value
		case "retry":
			if ms, err := strconv.Atoi(value); err == nil {
				frame.Retry = time.Duration(ms) * time.Millisecond
			}
		}
	}
	if err := d.sc.Err(); err != nil {
		return Frame{}, err
	}
	return Frame{}, io.EOF
}
