package admin

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/cognivoice/cognivoice-go/pkg/api"
	"github.com/cognivoice/cognivoice-go/pkg/logging"
)

// User is the administrative view of an account.
type User struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	Role          string `json:"role"`
	CreatedAt     string `json:"createdAt"`
	LastLogin     string `json:"lastLogin,omitempty"`
	AnalysisCount int    `json:"analysisCount"`
	RiskLevel     string `json:"riskLevel,omitempty"`
	IsActive      bool   `json:"isActive"`
}

// Partner is a partner organization shown on the public site.
type Partner struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	Description  string `json:"description"`
	Logo         string `json:"logo"`
	Website      string `json:"website,omitempty"`
	ContactEmail string `json:"contactEmail,omitempty"`
	IsActive     bool   `json:"isActive"`
	CreatedAt    string `json:"createdAt"`
}

// DashboardStats aggregates platform usage for the admin dashboard.
type DashboardStats struct {
	TotalUsers       int `json:"totalUsers"`
	TotalAnalyses    int `json:"totalAnalyses"`
	RiskDistribution struct {
		Low      int `json:"low"`
		Moderate int `json:"moderate"`
		High     int `json:"high"`
	} `json:"riskDistribution"`
	DailyUsage []DailyUsage `json:"dailyUsage"`
}

type DailyUsage struct {
	Date     string `json:"date"`
	Analyses int    `json:"analyses"`
	Users    int    `json:"users"`
}

// ActivityItem is one entry of the recent-activity feed.
type ActivityItem struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	UserName  string `json:"user_name"`
	Timestamp string `json:"timestamp"`
	Details   string `json:"details"`
	RiskLevel string `json:"risk_level,omitempty"`
}

// Service exposes the admin CRUD endpoints. All calls require a session
// holding an admin token; the backend enforces the role.
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
		logger:  logging.NewComponentLogger(logger, "admin"),
	}
}

// Stats fetches the dashboard aggregates.
func (s *Service) Stats(ctx context.Context) (*DashboardStats, error) {
	var stats DashboardStats
	if err := s.gateway.Do(ctx, http.MethodGet, "/admin/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// RecentActivity fetches the latest registrations and analyses.
func (s *Service) RecentActivity(ctx context.Context) ([]ActivityItem, error) {
	var items []ActivityItem
	if err := s.gateway.Do(ctx, http.MethodGet, "/admin/activity/recent", nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Users lists all accounts.
func (s *Service) Users(ctx context.Context) ([]User, error) {
	var users []User
	if err := s.gateway.Do(ctx, http.MethodGet, "/admin/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// CreateUser registers an account on behalf of an administrator.
func (s *Service) CreateUser(ctx context.Context, u User) (*User, error) {
	var created User
	if err := s.gateway.Do(ctx, http.MethodPost, "/admin/users", u, &created); err != nil {
		return nil, err
	}
	s.logger.Info("user_created", slog.String("user_id", created.ID))
	return &created, nil
}

// UpdateUser applies a partial update to an account.
func (s *Service) UpdateUser(ctx context.Context, id string, fields map[string]any) error {
	return s.gateway.Do(ctx, http.MethodPut, "/admin/users/"+url.PathEscape(id), fields, nil)
}

// DeleteUser removes an account.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	return s.gateway.Do(ctx, http.MethodDelete, "/admin/users/"+url.PathEscape(id), nil, nil)
}

// ExportUsers streams the user CSV export into w.
func (s *Service) ExportUsers(ctx context.Context, w io.Writer) error {
	return s.gateway.Download(ctx, "/admin/users/export", w)
}

// Partners lists partner organizations.
func (s *Service) Partners(ctx context.Context) ([]Partner, error) {
	var partners []Partner
	if err := s.gateway.Do(ctx, http.MethodGet, "/admin/partners", nil, &partners); err != nil {
		return nil, err
	}
	return partners, nil
}

// CreatePartner adds a partner organization.
func (s *Service) CreatePartner(ctx context.Context, p Partner) (*Partner, error) {
	var created Partner
	if err := s.gateway.Do(ctx, http.MethodPost, "/admin/partners", p, &created); err != nil {
		return nil, err
	}
	s.logger.Info("partner_created", slog.String("partner_id", created.ID))
	return &created, nil
}

// UpdatePartner applies a partial update to a partner.
func (s *Service) UpdatePartner(ctx context.Context, id string, fields map[string]any) error {
	return s.gateway.Do(ctx, http.MethodPut, "/admin/partners/"+url.PathEscape(id), fields, nil)
}

// DeletePartner removes a partner.
func (s *Service) DeletePartner(ctx context.Context, id string) error {
	return s.gateway.Do(ctx, http.MethodDelete, "/admin/partners/"+url.PathEscape(id), nil, nil)
}
