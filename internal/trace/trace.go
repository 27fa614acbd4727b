// Package trace implements the --trace PATH diagnostic dump: one canonical
// JSON object per line as each job completes. It is observational only and
// never affects scheduling or staleness decisions.
//
// Adapted from the teacher's internal/trace canonical-JSON idiom (fixed key
// order via a custom MarshalJSON, optional fields omitted when empty),
// narrowed from the teacher's GraphHash/Events-batch model to one event per
// completed job, written as it happens rather than assembled and flushed at
// the end of a run.
package trace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Event records the outcome of a single job's completion.
type Event struct {
	Target     string
	Executed   bool
	DurationMs int64
	Error      string
}

// MarshalJSON fixes the field order (target, executed, durationMs, error)
// and omits Error when it is empty.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Target == "" {
		return nil, errors.New("trace: target is required")
	}

	var buf bytes.Buffer
	buf.WriteByte('{')

	buf.WriteString(`"target":`)
	tb, err := json.Marshal(e.Target)
	if err != nil {
		return nil, err
	}
	buf.Write(tb)

	buf.WriteString(`,"executed":`)
	if e.Executed {
		buf.WriteString("true")
	} else {
		buf.WriteString("false")
	}

	buf.WriteString(fmt.Sprintf(`,"durationMs":%d`, e.DurationMs))

	if e.Error != "" {
		buf.WriteString(`,"error":`)
		eb, err := json.Marshal(e.Error)
		if err != nil {
			return nil, err
		}
		buf.Write(eb)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Writer appends one Event per line to an underlying io.Writer. Safe for
// concurrent use by multiple worker goroutines.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter wraps w (typically the file opened for --trace PATH).
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write emits e as one JSON line, preceded by acquiring the writer's lock so
// concurrent job completions never interleave partial lines.
func (tw *Writer) Write(e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	b = append(b, '\n')

	tw.mu.Lock()
	defer tw.mu.Unlock()
	_, err = tw.w.Write(b)
	return err
}
