package analysis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cognivoice/cognivoice-go/pkg/api"
	"github.com/cognivoice/cognivoice-go/pkg/errorsx"
	"github.com/cognivoice/cognivoice-go/pkg/logging"
	"github.com/cognivoice/cognivoice-go/pkg/metrics"
)

// DefaultSubmitTimeout bounds a submission whose stream never produces
// a terminal event (server crash mid-pipeline). The original protocol
// had no client-side bound and could hang indefinitely.
const DefaultSubmitTimeout = 5 * time.Minute

// Config configures an Analyzer.
type Config struct {
	Gateway *api.Client
	Relay   *StepRelay
	Metrics metrics.Observer
	Logger  *slog.Logger

	// SubmitTimeout caps one whole submission. Zero means
	// DefaultSubmitTimeout; negative disables the bound.
	SubmitTimeout time.Duration

	// Started, when set, is called with the request id as soon as a
	// submission begins, before the progress subscription opens.
	Started func(requestID string)

	// StreamClient issues the long-lived progress subscription. It must
	// not carry a global timeout; heartbeats keep the connection open
	// for however long the pipeline runs.
	StreamClient *http.Client
}

// Analyzer submits audio for analysis and reduces the progress stream
// plus the upload outcome into a single settled result.
type Analyzer struct {
	gateway       *api.Client
	relay         *StepRelay
	observer      metrics.Observer
	logger        *slog.Logger
	submitTimeout time.Duration
	streamClient  *http.Client
	started       func(string)
}

// New creates an Analyzer. Gateway is required.
func New(cfg Config) *Analyzer {
	relay := cfg.Relay
	if relay == nil {
		relay = NewStepRelay()
	}
	observer := cfg.Metrics
	if observer == nil {
		observer = metrics.NoopObserver{}
	}
	base := cfg.Logger
	if base == nil {
		base = slog.Default()
	}
	timeout := cfg.SubmitTimeout
	if timeout == 0 {
		timeout = DefaultSubmitTimeout
	}
	streamClient := cfg.StreamClient
	if streamClient == nil {
		streamClient = &http.Client{}
	}
	return &Analyzer{
		gateway:       cfg.Gateway,
		relay:         relay,
		observer:      observer,
		logger:        logging.NewComponentLogger(base, "analyzer"),
		submitTimeout: timeout,
		streamClient:  streamClient,
		started:       cfg.Started,
	}
}

// Relay returns the step relay consumers bind their progress callback
// to. Rebinding is safe at any time, including mid-submission.
func (a *Analyzer) Relay() *StepRelay {
	return a.relay
}

// Submit uploads audio and blocks until the submission settles: the
// stream delivers a terminal event, the upload is rejected, or ctx is
// cancelled — whichever happens first wins. It settles exactly once and
// the progress stream is closed on every path. Cancelling ctx aborts
// the submission and releases the stream.
func (a *Analyzer) Submit(ctx context.Context, audio io.Reader, fileName string) (*Record, error) {
	requestID := NewRequestID()
	logger := a.logger.With(slog.String("request_id", requestID))
	start := time.Now()

	if a.started != nil {
		a.started(requestID)
	}

	if a.submitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.submitTimeout)
		defer cancel()
	}

	// The stream must be listening before anything can produce a
	// terminal event for this id.
	streamURL := a.gateway.BaseURL() + "/progress/" + requestID
	stream, err := openProgressStream(ctx, a.streamClient, streamURL, logger)
	if err != nil {
		logger.Error("progress_subscription_failed", slog.String("error", err.Error()))
		a.record("failure", requestID, start)
		return nil, errorsx.Wrap(err, errorsx.ReasonStreamConnect)
	}
	defer stream.Close()
	logger.Debug("progress_stream_opened", slog.String("url", streamURL))

	// The upload only starts server-side work; its 2xx ack is not the
	// result. It races the stream to the first terminal signal.
	uploadErr := make(chan error, 1)
	go func() {
		var ack struct {
			Message string `json:"message"`
		}
		err := a.gateway.DoMultipart(ctx, "/predict",
			map[string]string{"requestId": requestID},
			"audio", fileName, audio, &ack)
		if err == nil {
			logger.Debug("analysis_job_started", slog.String("ack", ack.Message))
		}
		uploadErr <- err
	}()

	for {
		select {
		case ev := <-stream.Events():
			switch ev.kind {
			case eventStep:
				logger.Debug("progress_step",
					slog.Int("step", ev.step),
					slog.String("label", StepLabel(ev.step)))
				a.relay.Notify(ev.step)
				a.observer.RecordEvent(metrics.MetricsEvent{
					Name:  metrics.EventStep,
					Time:  time.Now(),
					Value: float64(ev.step),
					Tags:  map[string]string{"request_id": requestID},
				})

			case eventSuccess:
				var payload ResultPayload
				if err := decodeResult(ev.result, &payload); err != nil {
					logger.Error("result_decode_failed", slog.String("error", err.Error()))
					a.record("failure", requestID, start)
					return nil, errorsx.Wrap(err, errorsx.ReasonStreamDecode)
				}
				rec := &Record{
					ID:              "analysis_" + requestID,
					RiskLevel:       payload.RiskLevel,
					Recommendations: DefaultRecommendations(),
					Timestamp:       time.Now().UTC().Format(time.RFC3339),
					BackendData:     payload,
				}
				logger.Info("submission_completed",
					slog.String("risk_level", rec.RiskLevel),
					slog.Duration("elapsed", time.Since(start)))
				a.record("success", requestID, start)
				return rec, nil

			case eventFailure:
				logger.Error("submission_failed", slog.String("error", ev.err.Error()))
				a.record("failure", requestID, start)
				return nil, errorsx.Wrap(ev.err, errorsx.ReasonAnalysis)
			}

		case err := <-uploadErr:
			if err != nil {
				logger.Error("upload_rejected", slog.String("error", err.Error()))
				a.record("failure", requestID, start)
				// The gateway has already tagged the transport-level
				// reason; at this boundary the failure is the upload.
				return nil, errorsx.Override(err, errorsx.ReasonUpload)
			}
			// Acknowledged; the result still comes over the stream.
			uploadErr = nil

		case <-ctx.Done():
			logger.Warn("submission_aborted", slog.String("cause", ctx.Err().Error()))
			a.record("aborted", requestID, start)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, errorsx.Wrap(errors.New("analysis timed out waiting for a result"), errorsx.ReasonAborted)
			}
			return nil, errorsx.Wrap(errors.New("analysis submission aborted"), errorsx.ReasonAborted)
		}
	}
}

func (a *Analyzer) record(outcome, requestID string, start time.Time) {
	a.observer.RecordEvent(metrics.MetricsEvent{
		Name:  metrics.EventSubmit,
		Time:  time.Now(),
		Value: time.Since(start).Seconds(),
		Tags: map[string]string{
			"outcome":    outcome,
			"request_id": requestID,
		},
	})
}
