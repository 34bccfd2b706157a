package analysis

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cognivoice/cognivoice-go/pkg/api"
	"github.com/cognivoice/cognivoice-go/pkg/errorsx"
	"github.com/cognivoice/cognivoice-go/pkg/metrics"
)

// fakeBackend serves /predict and /progress/{id} for one scenario.
type fakeBackend struct {
	t *testing.T

	mu        sync.Mutex
	requestID string

	// progress drives the SSE handler; predict drives the upload.
	progress func(w http.ResponseWriter, r *http.Request)
	predict  func(w http.ResponseWriter, r *http.Request)

	srv *httptest.Server
}

func newFakeBackend(t *testing.T) *fakeBackend {
	b := &fakeBackend{t: t}
	mux := http.NewServeMux()
	mux.HandleFunc("/progress/", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.requestID = strings.TrimPrefix(r.URL.Path, "/progress/")
		b.mu.Unlock()
		w.Header().Set("Content-Type", "text/event-stream")
		b.progress(w, r)
	})
	mux.HandleFunc("/predict", func(w http.ResponseWriter, r *http.Request) {
		b.predict(w, r)
	})
	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBackend) analyzer(cfg Config) *Analyzer {
	cfg.Gateway = api.New(api.Config{BaseURL: b.srv.URL}, nil)
	return New(cfg)
}

func (b *fakeBackend) seenRequestID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requestID
}

func sendEvent(w http.ResponseWriter, payload string) {
	fmt.Fprintf(w, "data: %s\n\n", payload)
	w.(http.Flusher).Flush()
}

func ackPredict(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"message":"started"}`))
}

func TestSubmitSuccessForwardsStepsAndBuildsRecord(t *testing.T) {
	final := `{"is_final": true, "result": {"fileName": "recording.wav", "finalPrediction": "Dementia", "confidence": 0.72, "voteCounts": {"Control": 1, "Dementia": 4}, "speechfeatures": {"pauseFrequency": 0.45, "speechRate": 0.65, "vocabularyComplexity": 0.55, "semanticFluency": 0.62}, "riskLevel": "moderate"}}`

	b := newFakeBackend(t)
	b.predict = ackPredict
	b.progress = func(w http.ResponseWriter, r *http.Request) {
		sendEvent(w, `{"step": 0, "is_final": false}`)
		sendEvent(w, `{"step": 1, "is_final": false}`)
		sendEvent(w, `{"heartbeat": true}`)
		sendEvent(w, final)
	}

	mem := metrics.NewMemoryObserver()
	a := b.analyzer(Config{Metrics: mem})

	var mu sync.Mutex
	var steps []int
	a.Relay().Bind(func(step int) {
		mu.Lock()
		steps = append(steps, step)
		mu.Unlock()
	})

	rec, err := a.Submit(context.Background(), strings.NewReader("RIFFdata"), "recording.wav")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if want := "analysis_" + b.seenRequestID(); rec.ID != want {
		t.Fatalf("expected id %q, got %q", want, rec.ID)
	}
	if rec.RiskLevel != RiskModerate {
		t.Fatalf("expected moderate risk, got %q", rec.RiskLevel)
	}
	if len(rec.Recommendations) != 3 {
		t.Fatalf("expected 3 recommendations, got %d", len(rec.Recommendations))
	}
	if _, err := time.Parse(time.RFC3339, rec.Timestamp); err != nil {
		t.Fatalf("bad timestamp %q: %v", rec.Timestamp, err)
	}

	got := rec.BackendData
	if got.FinalPrediction != "Dementia" || got.Confidence != 0.72 || got.FileName != "recording.wav" {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if got.VoteCounts.Dementia != 4 || got.SpeechFeatures.PauseFrequency != 0.45 {
		t.Fatalf("unexpected payload detail: %+v", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(steps) != 2 || steps[0] != 0 || steps[1] != 1 {
		t.Fatalf("expected steps [0 1], got %v (heartbeats must not reach the relay)", steps)
	}

	if counts := mem.CountByOutcome(); counts["success"] != 1 {
		t.Fatalf("expected one success submit metric, got %v", counts)
	}
}

func TestSubmitUploadRejectionSettlesAndClosesStream(t *testing.T) {
	streamDone := make(chan struct{})

	b := newFakeBackend(t)
	b.predict = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"message":"The AI analysis service is currently unavailable. Please try again later."}`))
	}
	b.progress = func(w http.ResponseWriter, r *http.Request) {
		sendEvent(w, `{"heartbeat": true}`)
		<-r.Context().Done()
		close(streamDone)
	}

	a := b.analyzer(Config{})
	_, err := a.Submit(context.Background(), strings.NewReader("x"), "a.wav")
	if err == nil {
		t.Fatalf("expected failure")
	}
	if !strings.Contains(err.Error(), "currently unavailable") {
		t.Fatalf("expected upload error message, got %q", err.Error())
	}
	if !errorsx.HasReason(err, errorsx.ReasonUpload) {
		t.Fatalf("expected upload reason, got %s", errorsx.Reason(err))
	}

	select {
	case <-streamDone:
	case <-time.After(2 * time.Second):
		t.Fatalf("stream connection was not closed after settlement")
	}
}

func TestSubmitStreamErrorWinsOverLateUploadAck(t *testing.T) {
	b := newFakeBackend(t)
	b.predict = func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		ackPredict(w, r)
	}
	b.progress = func(w http.ResponseWriter, r *http.Request) {
		sendEvent(w, `{"result": {"error": "Audio unintelligible"}}`)
	}

	a := b.analyzer(Config{})
	_, err := a.Submit(context.Background(), strings.NewReader("x"), "a.wav")
	if err == nil || err.Error() != "Audio unintelligible" {
		t.Fatalf("expected server-reported error, got %v", err)
	}
	if !errorsx.HasReason(err, errorsx.ReasonAnalysis) {
		t.Fatalf("expected analysis reason, got %s", errorsx.Reason(err))
	}
}

func TestSubmitMalformedStreamMessageIsTerminal(t *testing.T) {
	b := newFakeBackend(t)
	b.predict = ackPredict
	b.progress = func(w http.ResponseWriter, r *http.Request) {
		sendEvent(w, `{"step": 0, "is_final": false}`)
		sendEvent(w, `this is not json`)
	}

	a := b.analyzer(Config{})
	_, err := a.Submit(context.Background(), strings.NewReader("x"), "a.wav")
	if err == nil || !strings.Contains(err.Error(), "parse server message") {
		t.Fatalf("expected parse failure, got %v", err)
	}
}

func TestSubmitConnectionDropWithoutTerminalFails(t *testing.T) {
	b := newFakeBackend(t)
	b.predict = ackPredict
	b.progress = func(w http.ResponseWriter, r *http.Request) {
		sendEvent(w, `{"step": 0, "is_final": false}`)
		// Handler returns: server severs the channel mid-pipeline.
	}

	a := b.analyzer(Config{})
	_, err := a.Submit(context.Background(), strings.NewReader("x"), "a.wav")
	if err == nil || !strings.Contains(err.Error(), "connection to the analysis server failed") {
		t.Fatalf("expected connectivity failure, got %v", err)
	}
	if !errorsx.HasReason(err, errorsx.ReasonAnalysis) {
		t.Fatalf("expected analysis reason, got %s", errorsx.Reason(err))
	}
}

func TestSubmitTimesOutWhenStreamNeverTerminates(t *testing.T) {
	b := newFakeBackend(t)
	b.predict = ackPredict
	b.progress = func(w http.ResponseWriter, r *http.Request) {
		sendEvent(w, `{"heartbeat": true}`)
		<-r.Context().Done()
	}

	a := b.analyzer(Config{SubmitTimeout: 100 * time.Millisecond})
	start := time.Now()
	_, err := a.Submit(context.Background(), strings.NewReader("x"), "a.wav")
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("expected timeout failure, got %v", err)
	}
	if !errorsx.HasReason(err, errorsx.ReasonAborted) {
		t.Fatalf("expected aborted reason, got %s", errorsx.Reason(err))
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("timeout took too long")
	}
}

func TestSubmitAbortViaContextCancellation(t *testing.T) {
	b := newFakeBackend(t)
	b.predict = ackPredict
	b.progress = func(w http.ResponseWriter, r *http.Request) {
		sendEvent(w, `{"heartbeat": true}`)
		<-r.Context().Done()
	}

	a := b.analyzer(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := a.Submit(ctx, strings.NewReader("x"), "a.wav")
	if err == nil || !strings.Contains(err.Error(), "aborted") {
		t.Fatalf("expected abort failure, got %v", err)
	}
}

func TestSubmitStreamSubscriptionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	a := New(Config{Gateway: api.New(api.Config{BaseURL: srv.URL}, nil)})
	_, err := a.Submit(context.Background(), strings.NewReader("x"), "a.wav")
	if err == nil {
		t.Fatalf("expected failure")
	}
	if !errorsx.HasReason(err, errorsx.ReasonStreamConnect) {
		t.Fatalf("expected stream connect reason, got %s", errorsx.Reason(err))
	}
}

func TestSubmitErrorsIgnoreErrorsAfterSettlement(t *testing.T) {
	// The terminal error settles the submission; the trailing garbage
	// must not reach anyone.
	b := newFakeBackend(t)
	b.predict = ackPredict
	b.progress = func(w http.ResponseWriter, r *http.Request) {
		sendEvent(w, `{"result": {"error": "first"}}`)
		sendEvent(w, `{"result": {"error": "second"}}`)
		sendEvent(w, `garbage`)
	}

	a := b.analyzer(Config{})
	_, err := a.Submit(context.Background(), strings.NewReader("x"), "a.wav")
	if err == nil || err.Error() != "first" {
		t.Fatalf("expected first terminal error to win, got %v", err)
	}
}
