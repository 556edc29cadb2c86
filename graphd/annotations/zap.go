package annotations

import (
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewZapHandler returns a handler that writes each event as one structured
// log line. Error events log at error level, recoveries at warn, the rest
// at debug.
func NewZapHandler(logger *zap.Logger) Handler {
	if logger == nil {
		return nil
	}
	return func(event Event) {
		fields := make([]zap.Field, 0, len(event.Data)+1)
		if event.Latency > 0 {
			fields = append(fields, zap.Duration("latency", event.Latency))
		}

		keys := make([]string, 0, len(event.Data))
		for k := range event.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fields = append(fields, zap.Any(k, event.Data[k]))
		}

		if ce := logger.Check(levelFor(event.Name), event.Name); ce != nil {
			ce.Write(fields...)
		}
	}
}

func levelFor(name string) zapcore.Level {
	switch {
	case strings.HasPrefix(name, "error/"):
		return zapcore.ErrorLevel
	case name == CursorRecovered || name == IsaDupSwitch:
		return zapcore.WarnLevel
	default:
		return zapcore.DebugLevel
	}
}
