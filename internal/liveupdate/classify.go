package liveupdate

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

type Category int

const (
	CategoryEvent Category = iota
	CategoryInfo
	CategoryDebug
	CategoryError
)

// Tag is the fixed-width label shown in rendered log lines.
func (c Category) Tag() string {
	switch c {
	case CategoryError:
		return "ERR"
	case CategoryInfo:
		return "INF"
	case CategoryDebug:
		return "DBG"
	default:
		return "EVT"
	}
}

func (c Category) String() string { return c.Tag() }

func (c Category) Level() zapcore.Level {
	switch c {
	case CategoryError:
		return zapcore.ErrorLevel
	case CategoryDebug:
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

const unknownErrorText = "Unknown error"

// kindCategories covers every backend event kind. Names outside this table
// fall back to classifyName.
var kindCategories = map[Kind]Category{
	KindConnected: CategoryEvent,
	KindKeepalive: CategoryDebug,

	KindImportStart:    CategoryInfo,
	KindImportClearing: CategoryEvent,
	KindImportFound:    CategoryEvent,
	KindImportProgress: CategoryInfo,
	KindImportComplete: CategoryInfo,
	KindImportError:    CategoryError,

	KindFileDeleted:      CategoryEvent,
	KindFileProcessed:    CategoryEvent,
	KindWorkspaceCleared: CategoryEvent,
	KindWorkspaceError:   CategoryError,
	KindProcessedDeleted: CategoryEvent,
	KindCaptionUpdated:   CategoryEvent,

	KindCaptionGenerateStart:      CategoryInfo,
	KindCaptionGenerateProcessing: CategoryEvent,
	KindCaptionGenerateSuccess:    CategoryEvent,
	KindCaptionGenerateError:      CategoryError,

	KindProcessStart:    CategoryInfo,
	KindProcessProgress: CategoryInfo,
	KindProcessError:    CategoryError,
}

// classifyName applies the ordered name rules: "error" first, then
// progress/start/complete, then the keepalive type. The first match wins.
func classifyName(typ string) Category {
	switch {
	case strings.Contains(typ, "error"):
		return CategoryError
	case strings.Contains(typ, "progress"),
		strings.Contains(typ, "start"),
		strings.Contains(typ, "complete"):
		return CategoryInfo
	case typ == string(KindKeepalive):
		return CategoryDebug
	default:
		return CategoryEvent
	}
}

func CategoryOf(typ string) Category {
	if c, ok := kindCategories[Kind(typ)]; ok {
		return c
	}
	return classifyName(typ)
}

// Classify picks the log category and display text for an event.
func Classify(evt Event) (Category, string) {
	cat := CategoryOf(evt.Type)
	switch cat {
	case CategoryError:
		if msg := evt.String("error"); msg != "" {
			return cat, msg
		}
		if msg := evt.String("message"); msg != "" {
			return cat, msg
		}
		return cat, unknownErrorText
	case CategoryInfo:
		if msg := evt.String("message"); msg != "" {
			return cat, msg
		}
		switch evt.Kind() {
		case KindImportProgress:
			return cat, fmt.Sprintf("Import progress: %s/%s - %s",
				evt.String("current"), evt.String("total"), evt.String("filename"))
		case KindImportComplete:
			count := evt.String("imported_count")
			if count == "" {
				count = evt.String("count")
			}
			return cat, fmt.Sprintf("Import complete: %s images", count)
		}
		return cat, "Event: " + evt.Type
	case CategoryDebug:
		return cat, "Keepalive ping"
	default:
		return cat, "Event: " + evt.Type
	}
}
