package hub

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// SSEWriter provides Server-Sent Events writing capabilities.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter creates a new SSE writer.
func NewSSEWriter(w http.ResponseWriter, flusher http.Flusher) *SSEWriter {
	return &SSEWriter{
		w:       w,
		flusher: flusher,
	}
}

// SendEvent sends an SSE event whose data is the JSON encoding of v.
// Format: event: <name>\ndata: <json>\n\n
func (s *SSEWriter) SendEvent(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", name, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// SendRetry tells the client to wait the specified milliseconds before reconnecting.
func (s *SSEWriter) SendRetry(milliseconds int) error {
	if _, err := fmt.Fprintf(s.w, "retry: %d\n\n", milliseconds); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
