package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"gorm.io/gorm"

	"github.com/Wikid82/gatewatch/internal/models"
)

var (
	ErrNoiseFilterNotFound = errors.New("noise filter not found")
	ErrInvalidIPAddress    = errors.New("invalid IP address or CIDR")
	ErrInvalidPort         = errors.New("port must be between 1 and 65535")
)

type NoiseFilterService struct {
	db *gorm.DB
}

func NewNoiseFilterService(db *gorm.DB) *NoiseFilterService {
	return &NoiseFilterService{db: db}
}

// List returns all filters, newest first.
func (s *NoiseFilterService) List(ctx context.Context) ([]models.ThreatNoiseFilter, error) {
	var filters []models.ThreatNoiseFilter
	err := s.db.WithContext(ctx).Order("created_at desc").Order("id desc").Find(&filters).Error
	return filters, err
}

// ListEnabled returns only active filters.
func (s *NoiseFilterService) ListEnabled(ctx context.Context) ([]models.ThreatNoiseFilter, error) {
	var filters []models.ThreatNoiseFilter
	err := s.db.WithContext(ctx).Where("enabled = ?", true).Order("id asc").Find(&filters).Error
	return filters, err
}

func (s *NoiseFilterService) GetByID(ctx context.Context, id uint) (*models.ThreatNoiseFilter, error) {
	var f models.ThreatNoiseFilter
	if err := s.db.WithContext(ctx).First(&f, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoiseFilterNotFound
		}
		return nil, err
	}
	return &f, nil
}

// Create validates and stores a filter.
func (s *NoiseFilterService) Create(ctx context.Context, f *models.ThreatNoiseFilter) error {
	if err := validateNoiseFilter(f); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(f).Error
}

// Update replaces the editable fields of filter id.
func (s *NoiseFilterService) Update(ctx context.Context, id uint, updates *models.ThreatNoiseFilter) (*models.ThreatNoiseFilter, error) {
	f, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	f.Name = updates.Name
	f.Description = updates.Description
	f.SourceIP = updates.SourceIP
	f.DestIP = updates.DestIP
	f.DestPort = updates.DestPort
	f.Enabled = updates.Enabled

	if err := validateNoiseFilter(f); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Save(f).Error; err != nil {
		return nil, err
	}
	return f, nil
}

func (s *NoiseFilterService) Delete(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&models.ThreatNoiseFilter{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNoiseFilterNotFound
	}
	return nil
}

// Apply drops events matched by any enabled filter and reports how many
// were hidden.
func (s *NoiseFilterService) Apply(ctx context.Context, events []models.ThreatEvent) ([]models.ThreatEvent, int, error) {
	filters, err := s.ListEnabled(ctx)
	if err != nil {
		return nil, 0, err
	}
	kept, hidden := FilterNoise(events, filters)
	return kept, hidden, nil
}

// FilterNoise is Apply over an explicit filter set.
func FilterNoise(events []models.ThreatEvent, filters []models.ThreatNoiseFilter) ([]models.ThreatEvent, int) {
	if len(filters) == 0 {
		return events, 0
	}
	kept := make([]models.ThreatEvent, 0, len(events))
	for i := range events {
		if matchesAny(filters, &events[i]) {
			continue
		}
		kept = append(kept, events[i])
	}
	return kept, len(events) - len(kept)
}

func matchesAny(filters []models.ThreatNoiseFilter, e *models.ThreatEvent) bool {
	for i := range filters {
		if filters[i].MatchesEvent(e) {
			return true
		}
	}
	return false
}

func validateNoiseFilter(f *models.ThreatNoiseFilter) error {
	if strings.TrimSpace(f.Name) == "" {
		return errors.New("name is required")
	}
	for _, field := range []*string{f.SourceIP, f.DestIP} {
		if field == nil {
			continue
		}
		v := strings.TrimSpace(*field)
		if !isValidIPOrCIDR(v) {
			return fmt.Errorf("%w: %s", ErrInvalidIPAddress, v)
		}
		*field = v
	}
	if f.DestPort != nil && (*f.DestPort < 1 || *f.DestPort > 65535) {
		return ErrInvalidPort
	}
	return nil
}

func isValidIPOrCIDR(v string) bool {
	if net.ParseIP(v) != nil {
		return true
	}
	_, _, err := net.ParseCIDR(v)
	return err == nil
}
