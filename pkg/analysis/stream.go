package analysis

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
)

// Stream event classification. Exactly one terminal event (success or
// failure) ends the protocol for a request id; heartbeats and steps
// never do.
type eventKind int

const (
	eventHeartbeat eventKind = iota
	eventStep
	eventSuccess
	eventFailure
)

type streamEvent struct {
	kind   eventKind
	step   int
	result map[string]any
	err    error
}

// errStreamClosed reports a connection that ended without a terminal
// message: network drop, proxy cut, or server crash mid-pipeline.
var errStreamClosed = errors.New("connection to the analysis server failed")

// progressStream consumes the server-sent event channel for one request
// id. It never reconnects; a single connectivity failure is terminal.
type progressStream struct {
	events chan streamEvent
	cancel context.CancelFunc
	body   interface{ Close() error }
	once   sync.Once
	logger *slog.Logger
}

// openProgressStream subscribes to {base}/progress/{id}. The returned
// stream owns the response body; Close is idempotent and safe to call
// from every exit path.
func openProgressStream(ctx context.Context, client *http.Client, url string, logger *slog.Logger) (*progressStream, error) {
	ctx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := client.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("progress subscription refused with status %d", resp.StatusCode)
	}

	s := &progressStream{
		events: make(chan streamEvent, 8),
		cancel: cancel,
		body:   resp.Body,
		logger: logger,
	}
	go s.readLoop(ctx, resp)
	return s, nil
}

// Events delivers classified stream events in server-send order.
func (s *progressStream) Events() <-chan streamEvent {
	return s.events
}

// Close tears down the connection. Calling it twice is a no-op.
func (s *progressStream) Close() {
	s.once.Do(func() {
		s.cancel()
		s.body.Close()
	})
}

func (s *progressStream) readLoop(ctx context.Context, resp *http.Response) {
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var data []byte
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			if len(data) > 0 {
				if terminal := s.dispatch(ctx, data); terminal {
					return
				}
				data = nil
			}
			continue
		}
		if rest, ok := bytes.CutPrefix(line, []byte("data:")); ok {
			// Multiple data lines of one event join with a newline.
			if len(data) > 0 {
				data = append(data, '\n')
			}
			data = append(data, bytes.TrimSpace(rest)...)
		}
		// Other SSE fields (event:, id:, comments) carry nothing here.
	}

	// A final event may arrive without a trailing blank line when the
	// server closes right after sending it.
	if len(data) > 0 {
		if terminal := s.dispatch(ctx, data); terminal {
			return
		}
	}

	// Server closed the channel, or the local side cancelled. Either
	// way no terminal message arrived on this path.
	if ctx.Err() != nil {
		return
	}
	s.emit(ctx, streamEvent{kind: eventFailure, err: errStreamClosed})
}

// dispatch classifies one event payload, reporting whether it was
// terminal.
func (s *progressStream) dispatch(ctx context.Context, data []byte) bool {
	var msg struct {
		Heartbeat bool           `json:"heartbeat"`
		Step      *int           `json:"step"`
		IsFinal   bool           `json:"is_final"`
		Result    map[string]any `json:"result"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		// Protocol desync is terminal, not retried.
		s.logger.Error("progress_message_unparseable",
			slog.String("payload", string(data)),
			slog.String("error", err.Error()))
		s.emit(ctx, streamEvent{kind: eventFailure, err: errors.New("failed to parse server message")})
		return true
	}

	switch {
	case msg.Heartbeat:
		// Keep-alive only, no business effect.
		return false

	case msg.Result != nil && msg.Result["error"] != nil:
		s.emit(ctx, streamEvent{kind: eventFailure, err: errors.New(fmt.Sprint(msg.Result["error"]))})
		return true

	case msg.Step != nil && !msg.IsFinal:
		s.emit(ctx, streamEvent{kind: eventStep, step: *msg.Step})
		return false

	case msg.IsFinal && msg.Result != nil:
		s.emit(ctx, streamEvent{kind: eventSuccess, result: msg.Result})
		return true
	}
	return false
}

func (s *progressStream) emit(ctx context.Context, ev streamEvent) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}
