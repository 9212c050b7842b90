package sublogging

import (
	"github.com/reifydb/reifydb/pkg/log"
	"github.com/rs/zerolog"
)

// ZerologBackend writes flushed batches through pkg/log's global
// logger, so records queued here ultimately land on the same sinks
// (console or JSON) as every synchronous log call.
type ZerologBackend struct{}

func NewZerologBackend() *ZerologBackend { return &ZerologBackend{} }

func (*ZerologBackend) Name() string { return "zerolog" }

func (*ZerologBackend) Write(records []Record) error {
	for _, r := range records {
		event := logEvent(r.Level)
		for k, v := range r.Fields {
			event = event.Interface(k, v)
		}
		event.Msg(r.Message)
	}
	return nil
}

func logEvent(level Level) *zerolog.Event {
	switch level {
	case LevelDebug:
		return log.Logger.Debug()
	case LevelWarn:
		return log.Logger.Warn()
	case LevelError:
		return log.Logger.Error()
	default:
		return log.Logger.Info()
	}
}
