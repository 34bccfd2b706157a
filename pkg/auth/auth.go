package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/cognivoice/cognivoice-go/pkg/api"
	"github.com/cognivoice/cognivoice-go/pkg/errorsx"
	"github.com/cognivoice/cognivoice-go/pkg/logging"
	"github.com/cognivoice/cognivoice-go/pkg/redact"
	"github.com/cognivoice/cognivoice-go/pkg/session"
)

// RegisterData is the payload for account creation.
type RegisterData struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type tokenPayload struct {
	Token string        `json:"token"`
	User  *session.User `json:"user"`
}

// Service authenticates against the backend and maintains the session.
type Service struct {
	gateway *api.Client
	sess    *session.Session
	logger  *slog.Logger
}

func New(gateway *api.Client, sess *session.Session, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		gateway: gateway,
		sess:    sess,
		logger:  logging.NewComponentLogger(logger, "auth"),
	}
}

// Login exchanges credentials for a bearer token and persists it.
func (s *Service) Login(ctx context.Context, email, password string) (*session.User, error) {
	var payload tokenPayload
	err := s.gateway.Do(ctx, http.MethodPost, "/login", map[string]string{
		"email":    email,
		"password": password,
	}, &payload)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonAuth)
	}
	return s.store(payload)
}

// Register creates an account; the backend logs the account in and
// returns the same token payload as login.
func (s *Service) Register(ctx context.Context, data RegisterData) (*session.User, error) {
	var payload tokenPayload
	if err := s.gateway.Do(ctx, http.MethodPost, "/register", data, &payload); err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonAuth)
	}
	return s.store(payload)
}

// Logout drops the persisted credentials. Purely client-side; the
// backend keeps no token state.
func (s *Service) Logout() error {
	s.logger.Info("session_cleared")
	return s.sess.Clear()
}

func (s *Service) store(payload tokenPayload) (*session.User, error) {
	s.sess.SetCredentials(payload.Token, payload.User)
	if err := s.sess.Save(); err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonAuth)
	}
	if payload.User != nil {
		s.logger.Info("authenticated",
			slog.String("user_id", payload.User.ID),
			slog.String("email", redact.Text(payload.User.Email)),
			slog.String("role", payload.User.Role))
	}
	return payload.User, nil
}
