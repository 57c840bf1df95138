package sink

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/hazyhaar/replay/diff"
)

// Stdout writes one JSON envelope per line.
type Stdout struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewStdout creates a Stdout sink writing to w, or os.Stdout when w is nil.
func NewStdout(w io.Writer) *Stdout {
	if w == nil {
		w = os.Stdout
	}
	return &Stdout{enc: json.NewEncoder(w)}
}

func (s *Stdout) SendSnapshot(_ context.Context, snap diff.Snapshot) error {
	return s.write(snapshotEnvelope(snap))
}

func (s *Stdout) SendBatch(_ context.Context, batch diff.Batch) error {
	return s.write(batchEnvelope(batch))
}

func (s *Stdout) Close() error { return nil }

func (s *Stdout) write(e Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(e)
}
