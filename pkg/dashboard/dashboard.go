package dashboard

import (
	"context"
	"embed"
	"encoding/json"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cognivoice/cognivoice-go/pkg/analysis"
	"github.com/cognivoice/cognivoice-go/pkg/logging"
)

//go:embed templates/*
var templates embed.FS

const writeWait = 10 * time.Second

// Stats is the live submission state pushed to connected pages.
type Stats struct {
	ActiveRequestID string    `json:"activeRequestId,omitempty"`
	CurrentStep     int       `json:"currentStep"`
	StepLabel       string    `json:"stepLabel,omitempty"`
	Completed       int       `json:"completed"`
	Failed          int       `json:"failed"`
	LastRiskLevel   string    `json:"lastRiskLevel,omitempty"`
	LastError       string    `json:"lastError,omitempty"`
	StartTime       time.Time `json:"startTime"`
}

// Dashboard serves a small local page that mirrors submission progress
// over a websocket. It is a second consumer of the step relay: the CLI
// binds the relay to StepChanged while a submission runs.
type Dashboard struct {
	mu      sync.Mutex
	stats   Stats
	clients map[*websocket.Conn]bool

	upgrader websocket.Upgrader
	logger   *slog.Logger
	srv      *http.Server
}

func New(logger *slog.Logger) *Dashboard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dashboard{
		stats:   Stats{StartTime: time.Now()},
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			// Local-only server; the page is served from the same addr.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logging.NewComponentLogger(logger, "dashboard"),
	}
}

// Start serves the dashboard on addr until Shutdown.
func (d *Dashboard) Start(addr string) error {
	mux := http.NewServeMux()

	pages, err := fs.Sub(templates, "templates")
	if err != nil {
		return err
	}
	mux.Handle("/", http.FileServer(http.FS(pages)))
	mux.HandleFunc("/api/stats", d.handleStats)
	mux.HandleFunc("/ws", d.handleWS)

	d.srv = &http.Server{Addr: addr, Handler: mux}
	d.logger.Info("dashboard_listening", slog.String("addr", addr))

	if err := d.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server and drops all websocket clients.
func (d *Dashboard) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	for conn := range d.clients {
		conn.Close()
	}
	d.clients = make(map[*websocket.Conn]bool)
	srv := d.srv
	d.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// SubmissionStarted resets the live view for a new request id.
func (d *Dashboard) SubmissionStarted(requestID string) {
	d.update(func(s *Stats) {
		s.ActiveRequestID = requestID
		s.CurrentStep = 0
		s.StepLabel = ""
		s.LastError = ""
	})
}

// StepChanged mirrors a forwarded progress step.
func (d *Dashboard) StepChanged(step int) {
	d.update(func(s *Stats) {
		s.CurrentStep = step
		s.StepLabel = analysis.StepLabel(step)
	})
}

// SubmissionCompleted records a settled success.
func (d *Dashboard) SubmissionCompleted(riskLevel string) {
	d.update(func(s *Stats) {
		s.Completed++
		s.LastRiskLevel = riskLevel
		s.ActiveRequestID = ""
		s.StepLabel = "Complete"
	})
}

// SubmissionFailed records a settled failure.
func (d *Dashboard) SubmissionFailed(message string) {
	d.update(func(s *Stats) {
		s.Failed++
		s.LastError = message
		s.ActiveRequestID = ""
	})
}

// Snapshot returns a copy of the current stats.
func (d *Dashboard) Snapshot() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func (d *Dashboard) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := d.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

func (d *Dashboard) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		d.logger.Warn("ws_upgrade_failed", slog.String("error", err.Error()))
		return
	}

	// Writes go through d.mu; the initial snapshot must not race a
	// broadcast on the same conn.
	d.mu.Lock()
	d.clients[conn] = true
	data, _ := json.Marshal(d.stats)
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.TextMessage, data)
	d.mu.Unlock()

	// Reader loop only detects the client going away.
	go func() {
		defer func() {
			d.mu.Lock()
			delete(d.clients, conn)
			d.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (d *Dashboard) update(apply func(*Stats)) {
	d.mu.Lock()
	apply(&d.stats)
	data, err := json.Marshal(d.stats)
	if err != nil {
		d.mu.Unlock()
		return
	}
	for conn := range d.clients {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			delete(d.clients, conn)
		}
	}
	d.mu.Unlock()
}
