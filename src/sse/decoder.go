package sse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const dataPrefix = "data: "

// Decode consumes r incrementally and dispatches each well-formed
// `data: <json>` frame to h. Chunk boundaries are arbitrary; the last
// incomplete line is carried over between reads. Lines that are not frames,
// frames that fail to parse and unknown event types are ignored.
//
// A mid-stream read error is reported through h.OnError exactly once and
// returned. Plain EOF ends decoding without error whether or not a done
// event was seen.
func Decode(r io.Reader, h Handler) error {
	buf := make([]byte, 4096)
	var carry []byte
	for {
		n, err := r.Read(buf)
		if n > 0 {
			carry = append(carry, buf[:n]...)
			for {
				i := bytes.IndexByte(carry, '\n')
				if i < 0 {
					break
				}
				line := carry[:i]
				carry = carry[i+1:]
				decodeLine(line, h)
			}
		}
		if err == io.EOF {
			// Flush a final unterminated line, then finish.
			if len(carry) > 0 {
				decodeLine(carry, h)
			}
			return nil
		}
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			return err
		}
	}
}

func decodeLine(line []byte, h Handler) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if !bytes.HasPrefix(line, []byte(dataPrefix)) {
		return
	}
	payload := bytes.TrimPrefix(line, []byte(dataPrefix))
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return
	}
	h.dispatch(ev)
}

// Stream POSTs body as JSON to url and decodes the SSE response into h.
// Transport-level failures (request error, non-2xx status, missing body)
// invoke h.OnError exactly once; h.OnDone is not invoked in that case.
func Stream(ctx context.Context, client *http.Client, url string, body any, h Handler) error {
	if client == nil {
		client = http.DefaultClient
	}

	fail := func(err error) error {
		if h.OnError != nil {
			h.OnError(err)
		}
		return err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fail(fmt.Errorf("encode request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fail(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		return fail(fmt.Errorf("start stream: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fail(fmt.Errorf("stream request: unexpected status %d", resp.StatusCode))
	}
	if resp.Body == nil {
		return fail(errors.New("stream request: missing response body"))
	}

	// Decode reports its own read errors through h.OnError.
	return Decode(resp.Body, h)
}
