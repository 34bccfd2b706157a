// Package cognivoice wires the gateway, session, services and the
// analyzer into one client a caller can drive from configuration.
package cognivoice

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/cognivoice/cognivoice-go/pkg/admin"
	"github.com/cognivoice/cognivoice-go/pkg/analysis"
	"github.com/cognivoice/cognivoice-go/pkg/api"
	"github.com/cognivoice/cognivoice-go/pkg/auth"
	"github.com/cognivoice/cognivoice-go/pkg/dashboard"
	"github.com/cognivoice/cognivoice-go/pkg/logging"
	"github.com/cognivoice/cognivoice-go/pkg/metrics"
	"github.com/cognivoice/cognivoice-go/pkg/redact"
	"github.com/cognivoice/cognivoice-go/pkg/resilience"
	"github.com/cognivoice/cognivoice-go/pkg/session"
	"github.com/cognivoice/cognivoice-go/pkg/store"
	"github.com/cognivoice/cognivoice-go/pkg/user"
)

// Client bundles every service the CLI exposes. Optional pieces
// (store, dashboard, metrics sink) are nil when not configured.
type Client struct {
	cfg      Config
	logger   *slog.Logger
	sess     *session.Session
	gateway  *api.Client
	analyzer *analysis.Analyzer

	Auth  *auth.Service
	User  *user.Service
	Admin *admin.Service

	Store     *store.Store
	Dashboard *dashboard.Dashboard

	asyncObs    *metrics.AsyncObserver
	metricsFile *os.File
}

// NewClient assembles a Client from cfg. The session file is loaded if
// present; a missing file just starts unauthenticated.
func NewClient(cfg Config) (*Client, error) {
	logger := logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	redact.SetEnabled(cfg.Privacy.RedactPII)

	sess := session.New(cfg.Session.Path)
	if err := sess.Load(); err != nil {
		return nil, err
	}

	gateway := api.New(api.Config{
		BaseURL: cfg.Server.BaseURL,
		Timeout: cfg.ServerTimeout(),
		Logger:  logger,
		Retry:   resilience.RetryPolicy{MaxRetries: cfg.Server.Retries, Backoff: cfg.RetryBackoff()},
		Breaker: resilience.NewCircuitBreaker(3, 30*time.Second),
	}, sess)

	c := &Client{
		cfg:     cfg,
		logger:  logger,
		sess:    sess,
		gateway: gateway,
		Auth:    auth.New(gateway, sess, logger),
		User:    user.New(gateway, logger),
		Admin:   admin.New(gateway, logger),
	}

	observer, err := c.buildObserver()
	if err != nil {
		c.Close()
		return nil, err
	}

	if cfg.Dashboard.Enabled {
		c.Dashboard = dashboard.New(logger)
	}

	var started func(string)
	if c.Dashboard != nil {
		started = c.Dashboard.SubmissionStarted
	}
	c.analyzer = analysis.New(analysis.Config{
		Gateway:       gateway,
		Metrics:       observer,
		Logger:        logger,
		SubmitTimeout: cfg.SubmitTimeout(),
		Started:       started,
		StreamClient:  &http.Client{},
	})

	if cfg.Store.Path != "" {
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.Store = st
	}

	return c, nil
}

// Session exposes the credential state for callers that need to branch
// on authentication.
func (c *Client) Session() *session.Session { return c.sess }

// Analyzer returns the submission engine.
func (c *Client) Analyzer() *analysis.Analyzer { return c.analyzer }

// Logger returns the root logger.
func (c *Client) Logger() *slog.Logger { return c.logger }

// Analyze submits audio, mirrors progress on the dashboard when one is
// running, and persists the settled record to the local store. onStep,
// when non-nil, receives every forwarded progress step. The relay holds
// one consumer, so the dashboard and onStep share a single binding.
func (c *Client) Analyze(ctx context.Context, audio *os.File, fileName string, onStep func(step int)) (*analysis.Record, error) {
	relay := c.analyzer.Relay()

	if c.Dashboard != nil || onStep != nil {
		dash := c.Dashboard
		relay.Bind(func(step int) {
			if dash != nil {
				dash.StepChanged(step)
			}
			if onStep != nil {
				onStep(step)
			}
		})
		defer relay.Unbind()
	}

	rec, err := c.analyzer.Submit(ctx, audio, fileName)
	if c.Dashboard != nil {
		if err != nil {
			c.Dashboard.SubmissionFailed(err.Error())
		} else {
			c.Dashboard.SubmissionCompleted(rec.RiskLevel)
		}
	}
	if err != nil {
		return nil, err
	}

	if c.Store != nil {
		if serr := c.Store.Save(rec); serr != nil {
			c.logger.Warn("store_save_failed", slog.String("error", serr.Error()))
		}
	}
	return rec, nil
}

func (c *Client) buildObserver() (metrics.Observer, error) {
	if c.cfg.Metrics.Path == "" {
		return metrics.NoopObserver{}, nil
	}
	f, err := os.OpenFile(c.cfg.Metrics.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	c.metricsFile = f
	c.asyncObs = metrics.NewAsyncObserver(metrics.NewJSONLObserver(f), c.cfg.Metrics.Buffer)
	return c.asyncObs, nil
}

// Close flushes metrics and releases the store.
func (c *Client) Close() error {
	var firstErr error
	if c.asyncObs != nil {
		c.asyncObs.Close()
		c.asyncObs = nil
	}
	if c.metricsFile != nil {
		if err := c.metricsFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		c.metricsFile = nil
	}
	if c.Store != nil {
		if err := c.Store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		c.Store = nil
	}
	return firstErr
}
