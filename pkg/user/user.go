package user

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/cognivoice/cognivoice-go/pkg/analysis"
	"github.com/cognivoice/cognivoice-go/pkg/api"
	"github.com/cognivoice/cognivoice-go/pkg/logging"
)

// Profile is the editable subset of the account.
type Profile struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

// PasswordChange carries a password update request.
type PasswordChange struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

// Service exposes the account-scoped endpoints.
type Service struct {
	gateway *api.Client
	logger  *slog.Logger
}

func New(gateway *api.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		gateway: gateway,
		logger:  logging.NewComponentLogger(logger, "user"),
	}
}

// History lists the caller's completed analyses, newest first.
func (s *Service) History(ctx context.Context) ([]analysis.Record, error) {
	var records []analysis.Record
	if err := s.gateway.Do(ctx, http.MethodGet, "/history", nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// ExportHistory streams the CSV export of the caller's history into w.
func (s *Service) ExportHistory(ctx context.Context, w io.Writer) error {
	return s.gateway.Download(ctx, "/history/export", w)
}

// UpdateProfile updates name and email.
func (s *Service) UpdateProfile(ctx context.Context, p Profile) error {
	return s.gateway.Do(ctx, http.MethodPut, "/profile", p, nil)
}

// ChangePassword rotates the account password.
func (s *Service) ChangePassword(ctx context.Context, pc PasswordChange) error {
	return s.gateway.Do(ctx, http.MethodPut, "/profile/password", pc, nil)
}

// UploadAvatar replaces the profile picture and returns its URL path.
func (s *Service) UploadAvatar(ctx context.Context, fileName string, file io.Reader) (string, error) {
	var out struct {
		Message   string `json:"message"`
		AvatarURL string `json:"avatarUrl"`
	}
	err := s.gateway.DoMultipart(ctx, "/profile/avatar", nil, "avatar", fileName, file, &out)
	if err != nil {
		return "", err
	}
	s.logger.Info("avatar_updated", slog.String("url", out.AvatarURL))
	return out.AvatarURL, nil
}
