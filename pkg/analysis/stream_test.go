package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func openTestStream(t *testing.T, handler http.HandlerFunc) *progressStream {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	s, err := openProgressStream(context.Background(), srv.Client(), srv.URL+"/progress/test-1", slog.Default())
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func nextEvent(t *testing.T, s *progressStream) streamEvent {
	t.Helper()
	select {
	case ev := <-s.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for stream event")
		return streamEvent{}
	}
}

func TestStreamClassifiesEventsInOrder(t *testing.T) {
	s := openTestStream(t, func(w http.ResponseWriter, r *http.Request) {
		sendEvent(w, `{"heartbeat": true}`)
		sendEvent(w, `{"step": 0, "is_final": false}`)
		sendEvent(w, `{"step": 3, "is_final": false}`)
		sendEvent(w, `{"is_final": true, "result": {"riskLevel": "low"}}`)
	})

	ev := nextEvent(t, s)
	if ev.kind != eventStep || ev.step != 0 {
		t.Fatalf("expected step 0 first (heartbeat skipped), got %+v", ev)
	}
	ev = nextEvent(t, s)
	if ev.kind != eventStep || ev.step != 3 {
		t.Fatalf("expected step 3, got %+v", ev)
	}
	ev = nextEvent(t, s)
	if ev.kind != eventSuccess {
		t.Fatalf("expected terminal success, got %+v", ev)
	}
	if ev.result["riskLevel"] != "low" {
		t.Fatalf("unexpected result map: %v", ev.result)
	}
}

func TestStreamServerErrorFieldIsTerminalFailure(t *testing.T) {
	s := openTestStream(t, func(w http.ResponseWriter, r *http.Request) {
		sendEvent(w, `{"result": {"error": "Audio unintelligible"}}`)
	})

	ev := nextEvent(t, s)
	if ev.kind != eventFailure || ev.err.Error() != "Audio unintelligible" {
		t.Fatalf("expected terminal failure, got %+v", ev)
	}
}

func TestStreamFinalWithoutTrailingBlankLine(t *testing.T) {
	s := openTestStream(t, func(w http.ResponseWriter, r *http.Request) {
		// No blank line after the final event; the server hangs up.
		fmt.Fprint(w, `data: {"is_final": true, "result": {"riskLevel": "high"}}`)
	})

	ev := nextEvent(t, s)
	if ev.kind != eventSuccess {
		t.Fatalf("expected terminal success, got %+v", ev)
	}
}

func TestStreamJoinsMultiLineDataFields(t *testing.T) {
	s := openTestStream(t, func(w http.ResponseWriter, r *http.Request) {
		// One event split across two data lines; the fragments join
		// with a newline, which is whitespace inside JSON.
		fmt.Fprint(w, "data: {\"is_final\": true,\n")
		fmt.Fprint(w, "data: \"result\": {\"riskLevel\": \"high\"}}\n\n")
		w.(http.Flusher).Flush()
	})

	ev := nextEvent(t, s)
	if ev.kind != eventSuccess {
		t.Fatalf("expected terminal success, got %+v", ev)
	}
	if ev.result["riskLevel"] != "high" {
		t.Fatalf("unexpected result %+v", ev.result)
	}
}

func TestStreamCloseIsIdempotent(t *testing.T) {
	s := openTestStream(t, func(w http.ResponseWriter, r *http.Request) {
		sendEvent(w, `{"heartbeat": true}`)
		<-r.Context().Done()
	})

	s.Close()
	s.Close()

	// After close no connectivity failure gets delivered; the context
	// is already cancelled.
	select {
	case ev := <-s.Events():
		t.Fatalf("unexpected event after close: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStreamRefusedSubscription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := openProgressStream(context.Background(), srv.Client(), srv.URL+"/progress/x", slog.Default())
	if err == nil {
		t.Fatalf("expected subscription error")
	}
}
