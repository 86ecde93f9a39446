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
	ErrPortForwardNotFound = errors.New("port forward not found")
	ErrInvalidProtocol     = errors.New("protocol must be tcp, udp or tcp_udp")
)

var validForwardProtocols = map[string]bool{"tcp": true, "udp": true, "tcp_udp": true}

// PortForwardService stores the gateway's port-forward rules.
type PortForwardService struct {
	db *gorm.DB
}

func NewPortForwardService(db *gorm.DB) *PortForwardService {
	return &PortForwardService{db: db}
}

func (s *PortForwardService) List(ctx context.Context) ([]models.PortForward, error) {
	var rules []models.PortForward
	err := s.db.WithContext(ctx).Order("id asc").Find(&rules).Error
	return rules, err
}

func (s *PortForwardService) ListEnabled(ctx context.Context) ([]models.PortForward, error) {
	var rules []models.PortForward
	err := s.db.WithContext(ctx).Where("enabled = ?", true).Order("id asc").Find(&rules).Error
	return rules, err
}

func (s *PortForwardService) GetByID(ctx context.Context, id uint) (*models.PortForward, error) {
	var rule models.PortForward
	if err := s.db.WithContext(ctx).First(&rule, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPortForwardNotFound
		}
		return nil, err
	}
	return &rule, nil
}

// Create validates and stores a rule.
func (s *PortForwardService) Create(ctx context.Context, rule *models.PortForward) error {
	rule.Protocol = strings.ToLower(strings.TrimSpace(rule.Protocol))
	if rule.Protocol == "" {
		rule.Protocol = "tcp"
	}
	if !validForwardProtocols[rule.Protocol] {
		return ErrInvalidProtocol
	}
	if strings.TrimSpace(rule.Name) == "" {
		return errors.New("name is required")
	}
	if _, err := rule.Ports(); err != nil {
		return err
	}
	if rule.InternalIP != "" && net.ParseIP(rule.InternalIP) == nil {
		return fmt.Errorf("%w: %s", ErrInvalidIPAddress, rule.InternalIP)
	}
	if rule.InternalPort < 0 || rule.InternalPort > 65535 {
		return ErrInvalidPort
	}
	return s.db.WithContext(ctx).Create(rule).Error
}

func (s *PortForwardService) Delete(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&models.PortForward{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPortForwardNotFound
	}
	return nil
}
