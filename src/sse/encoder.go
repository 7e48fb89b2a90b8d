package sse

import (
	"fmt"
	"io"
	"net/http"
)

// Encoder writes events as `data: <json>\n\n` frames, flushing after each
// one when the underlying writer supports it.
type Encoder struct {
	w io.Writer
	f http.Flusher
}

// NewEncoder wraps w. When w is an http.ResponseWriter the encoder flushes
// after every frame so clients see events as they happen.
func NewEncoder(w io.Writer) *Encoder {
	f, _ := w.(http.Flusher)
	return &Encoder{w: w, f: f}
}

// Emit writes one event frame.
func (e *Encoder) Emit(ev Event) error {
	payload, err := ev.Marshal()
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := fmt.Fprintf(e.w, "%s%s\n\n", dataPrefix, payload); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	if e.f != nil {
		e.f.Flush()
	}
	return nil
}
