package replay

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/hazyhaar/replay/sink"
	"github.com/hazyhaar/replay/store"
)

// Sink is the output interface for snapshots and batches.
type Sink = sink.Sink

// NewStdoutSink creates a JSON-lines sink on w (os.Stdout when nil).
func NewStdoutSink(w io.Writer) Sink {
	return sink.NewStdout(w)
}

// NewWebhookSink creates a webhook sink with retry.
func NewWebhookSink(url string, retries int, logger *slog.Logger) Sink {
	return sink.NewWebhook(url, sink.WithWebhookRetries(retries), sink.WithWebhookLogger(logger))
}

// NewCallbackSink creates an in-process sink. Either function may be nil.
func NewCallbackSink(onSnapshot sink.SnapshotFunc, onBatch sink.BatchFunc) Sink {
	return sink.NewCallback(onSnapshot, onBatch)
}

// OpenSinks builds the sinks listed in cfg. The store is returned when a
// sqlite sink is configured, so the HTTP API can read from it; it is also
// among the returned sinks and is closed with them.
func OpenSinks(cfg *Config, logger *slog.Logger) ([]Sink, *store.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var sinks []Sink
	var st *store.Store
	for _, sc := range cfg.Sinks {
		switch sc.Type {
		case "stdout":
			sinks = append(sinks, NewStdoutSink(nil))
		case "webhook":
			sinks = append(sinks, NewWebhookSink(sc.URL, sc.Retries, logger))
		case "sqlite":
			if st != nil {
				continue
			}
			var err error
			st, err = store.Open(cfg.Store.Path)
			if err != nil {
				for _, s := range sinks {
					s.Close()
				}
				return nil, nil, fmt.Errorf("replay: open store: %w", err)
			}
			sinks = append(sinks, st)
		default:
			logger.Warn("replay: unknown sink type", "type", sc.Type)
		}
	}
	if len(sinks) == 0 {
		sinks = append(sinks, NewStdoutSink(nil))
	}
	return sinks, st, nil
}
