package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	neturl "net/url"
	"regexp"
	"strings"
	"time"

	"github.com/containrrr/shoutrrr"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/Wikid82/gatewatch/internal/logger"
	"github.com/Wikid82/gatewatch/internal/models"
	"github.com/Wikid82/gatewatch/internal/util"
	"github.com/Wikid82/gatewatch/internal/version"
)

var ErrProviderNotFound = errors.New("notification provider not found")

// AlertStore records alert bookkeeping on patterns.
type AlertStore interface {
	MarkAlerted(ctx context.Context, id uint, at time.Time) error
}

// AlertService pushes new or changed patterns to the configured
// notification providers through shoutrrr.
type AlertService struct {
	db    *gorm.DB
	store AlertStore
	send  func(url, message string) error
	now   func() time.Time
}

func NewAlertService(db *gorm.DB, store AlertStore) *AlertService {
	return &AlertService{
		db:    db,
		store: store,
		send:  func(url, message string) error { return shoutrrr.Send(url, message) },
		now:   time.Now,
	}
}

// SetSender replaces the transport for testing.
func (s *AlertService) SetSender(send func(url, message string) error) {
	s.send = send
}

var discordWebhookRegex = regexp.MustCompile(`^https://discord(?:app)?\.com/api/webhooks/(\d+)/([a-zA-Z0-9_-]+)`)

// normalizeURL turns a pasted Discord webhook URL into shoutrrr form.
func normalizeURL(serviceType, rawURL string) string {
	if serviceType == "discord" {
		matches := discordWebhookRegex.FindStringSubmatch(rawURL)
		if len(matches) == 3 {
			return fmt.Sprintf("discord://%s@%s", matches[2], matches[1])
		}
	}
	return rawURL
}

// validateWebhookURL rejects plain HTTP(S) destinations that resolve to
// internal addresses.
func validateWebhookURL(raw string) (*neturl.URL, error) {
	u, err := neturl.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("missing host")
	}
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return u, nil
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, fmt.Errorf("dns lookup failed: %w", err)
	}
	for _, ip := range ips {
		if !util.IsPublicIP(ip) {
			return nil, fmt.Errorf("disallowed host IP: %s", ip.String())
		}
	}
	return u, nil
}

func (s *AlertService) deliver(p models.NotificationProvider, message string) error {
	url := normalizeURL(p.Type, p.URL)
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		if _, err := validateWebhookURL(url); err != nil {
			return err
		}
	}
	return s.send(url, message)
}

// FormatAlert renders the notification text for a pattern.
func FormatAlert(p *models.ThreatPattern) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s detected (confidence %.2f)\n", version.Name, p.PatternType, p.Confidence)
	if ips := p.SourceIPList(); len(ips) > 0 {
		fmt.Fprintf(&b, "Sources: %s\n", strings.Join(ips, ", "))
	}
	if p.TargetPort != nil {
		fmt.Fprintf(&b, "Target port: %d\n", *p.TargetPort)
	}
	fmt.Fprintf(&b, "Events: %d between %s and %s",
		p.EventCount, p.FirstSeen.UTC().Format(time.RFC3339), p.LastSeen.UTC().Format(time.RFC3339))
	return b.String()
}

// Notify sends every pattern that changed since its last alert to the
// providers subscribed to it. A pattern is marked alerted only when all of
// its deliveries succeed, so failed sends are retried next cycle.
// Patterns in the slice are updated in place.
func (s *AlertService) Notify(ctx context.Context, patterns []models.ThreatPattern) (int, error) {
	providers, err := s.enabledProviders(ctx)
	if err != nil {
		return 0, err
	}

	alerted := 0
	for i := range patterns {
		p := &patterns[i]
		if !p.NeedsAlert() {
			continue
		}

		message := FormatAlert(p)
		ok := true
		for _, provider := range providers {
			if !provider.Wants(p) {
				continue
			}
			if err := s.deliver(provider, message); err != nil {
				ok = false
				logger.Log().WithFields(logrus.Fields{
					"provider": util.SanitizeForLog(provider.Name),
					"pattern":  p.ID,
				}).WithError(err).Warn("alert: delivery failed")
			}
		}
		if !ok {
			continue
		}

		at := s.now().UTC()
		if err := s.store.MarkAlerted(ctx, p.ID, at); err != nil {
			return alerted, fmt.Errorf("mark pattern %d alerted: %w", p.ID, err)
		}
		p.LastAlertedAt = &at
		alerted++
	}
	return alerted, nil
}

func (s *AlertService) enabledProviders(ctx context.Context) ([]models.NotificationProvider, error) {
	var providers []models.NotificationProvider
	err := s.db.WithContext(ctx).Where("enabled = ?", true).Find(&providers).Error
	return providers, err
}

func (s *AlertService) ListProviders(ctx context.Context) ([]models.NotificationProvider, error) {
	var providers []models.NotificationProvider
	err := s.db.WithContext(ctx).Order("created_at asc").Find(&providers).Error
	return providers, err
}

func (s *AlertService) CreateProvider(ctx context.Context, provider *models.NotificationProvider) error {
	if strings.TrimSpace(provider.URL) == "" {
		return errors.New("url is required")
	}
	return s.db.WithContext(ctx).Create(provider).Error
}

func (s *AlertService) DeleteProvider(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Delete(&models.NotificationProvider{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrProviderNotFound
	}
	return nil
}

// TestProvider sends a fixed message through provider.
func (s *AlertService) TestProvider(provider models.NotificationProvider) error {
	return s.deliver(provider, "Test notification from "+version.Name)
}
