package liveupdate

import (
	"fmt"
	"sync"
	"time"
)

const MaxLogLines = 100

type Line struct {
	Seq      int
	Category Category
	Message  string
	Time     time.Time
}

func (l Line) String() string {
	return fmt.Sprintf("%04d [%s] %s  %s", l.Seq, l.Category.Tag(), l.Message, FormatTimestamp(l.Time))
}

// FormatTimestamp renders YYYY.MM.DD:hh:mm:ss:mmm.
func FormatTimestamp(t time.Time) string {
	return fmt.Sprintf("%04d.%02d.%02d:%02d:%02d:%02d:%03d",
		t.Year(), int(t.Month()), t.Day(),
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond()/int(time.Millisecond))
}

// LogBuffer keeps the most recent lines, evicting the oldest on overflow.
type LogBuffer struct {
	mu    sync.Mutex
	lines []Line
	seq   int
	max   int
	now   func() time.Time
}

func NewLogBuffer(max int, now func() time.Time) *LogBuffer {
	if max <= 0 {
		max = MaxLogLines
	}
	if now == nil {
		now = time.Now
	}
	return &LogBuffer{max: max, now: now}
}

func (b *LogBuffer) Append(message string, cat Category) Line {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	line := Line{Seq: b.seq, Category: cat, Message: message, Time: b.now()}
	b.lines = append(b.lines, line)
	if over := len(b.lines) - b.max; over > 0 {
		b.lines = append(b.lines[:0:0], b.lines[over:]...)
	}
	return line
}

func (b *LogBuffer) Lines() []Line {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Line, len(b.lines))
	copy(out, b.lines)
	return out
}

func (b *LogBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}
