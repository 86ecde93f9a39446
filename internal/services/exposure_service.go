package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Wikid82/gatewatch/internal/logger"
	"github.com/Wikid82/gatewatch/internal/models"
)

const (
	exposureSampleSize    = 500
	exposureTopSignatures = 5
	geoBlockMinThreats    = 10
	geoBlockMaxCountries  = 5
	geoBlockMinShare      = 0.05
)

// ExposureStore is the read surface the exposure report needs.
type ExposureStore interface {
	CountEvents(ctx context.Context, q EventQuery) (int64, error)
	QueryEvents(ctx context.Context, q EventQuery) ([]models.ThreatEvent, error)
	CountryDistribution(ctx context.Context, since time.Time) ([]CountryCount, error)
}

type SignatureCount struct {
	Signature string `json:"signature"`
	Count     int    `json:"count"`
}

// ExposedService summarizes the threats seen on one forwarded port.
type ExposedService struct {
	RuleID            uint             `json:"rule_id"`
	RuleName          string           `json:"rule_name"`
	Protocol          string           `json:"protocol"`
	ExternalPort      int              `json:"external_port"`
	InternalIP        string           `json:"internal_ip"`
	InternalPort      int              `json:"internal_port"`
	ThreatCount       int64            `json:"threat_count"`
	UniqueSources     int              `json:"unique_sources"`
	TopSignatures     []SignatureCount `json:"top_signatures"`
	SeverityHistogram map[int]int      `json:"severity_histogram"`
}

type CountryShare struct {
	CountryCode string  `json:"country_code"`
	Count       int64   `json:"count"`
	Percentage  float64 `json:"percentage"`
}

// GeoBlockRecommendation lists the countries that account for a large
// share of all threats in the window.
type GeoBlockRecommendation struct {
	Countries          []CountryShare `json:"countries"`
	CombinedPercentage float64        `json:"combined_percentage"`
	TotalThreats       int64          `json:"total_threats"`
}

type ExposureReport struct {
	GeneratedAt  time.Time               `json:"generated_at"`
	Since        time.Time               `json:"since"`
	RulesChecked int                     `json:"rules_checked"`
	PortsChecked int                     `json:"ports_checked"`
	Services     []ExposedService        `json:"services"`
	GeoBlock     *GeoBlockRecommendation `json:"geo_block,omitempty"`
}

// ExposureService cross-references port-forward rules with observed threats.
type ExposureService struct {
	store ExposureStore
}

func NewExposureService(store ExposureStore) *ExposureService {
	return &ExposureService{store: store}
}

// Report builds an exposure report for rules over events since the given time.
// Disabled rules and rules with an unparseable port spec are skipped.
func (s *ExposureService) Report(ctx context.Context, rules []models.PortForward, since time.Time) (*ExposureReport, error) {
	report := &ExposureReport{
		GeneratedAt: time.Now().UTC(),
		Since:       since.UTC(),
		Services:    []ExposedService{},
	}

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		ports, err := rule.Ports()
		if err != nil {
			logger.Log().WithFields(logrus.Fields{
				"rule":          rule.ID,
				"external_port": rule.ExternalPort,
			}).WithError(err).Warn("exposure: skipping port forward with invalid port")
			continue
		}
		report.RulesChecked++

		for i, port := range ports {
			report.PortsChecked++
			svc, err := s.exposedService(ctx, rule, port, since)
			if err != nil {
				return nil, fmt.Errorf("port %d: %w", port, err)
			}
			if svc == nil {
				continue
			}
			if rule.InternalPort > 0 {
				svc.InternalPort = rule.InternalPort + i
			}
			report.Services = append(report.Services, *svc)
		}
	}

	sort.SliceStable(report.Services, func(a, b int) bool {
		return report.Services[a].ThreatCount > report.Services[b].ThreatCount
	})

	geo, err := s.geoBlock(ctx, since)
	if err != nil {
		return nil, err
	}
	report.GeoBlock = geo
	return report, nil
}

func (s *ExposureService) exposedService(ctx context.Context, rule models.PortForward, port int, since time.Time) (*ExposedService, error) {
	q := EventQuery{Since: since, DestPort: &port}
	count, err := s.store.CountEvents(ctx, q)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	q.Limit = exposureSampleSize
	events, err := s.store.QueryEvents(ctx, q)
	if err != nil {
		return nil, err
	}

	sources := make(map[string]struct{})
	signatures := make(map[string]int)
	histogram := make(map[int]int, models.MaxSeverity)
	for sev := models.MinSeverity; sev <= models.MaxSeverity; sev++ {
		histogram[sev] = 0
	}
	for i := range events {
		e := &events[i]
		sources[e.SourceIP] = struct{}{}
		histogram[models.ClampSeverity(e.Severity)]++
		if name := signatureLabel(e); name != "" {
			signatures[name]++
		}
	}

	return &ExposedService{
		RuleID:            rule.ID,
		RuleName:          rule.Name,
		Protocol:          rule.Protocol,
		ExternalPort:      port,
		InternalIP:        rule.InternalIP,
		InternalPort:      port,
		ThreatCount:       count,
		UniqueSources:     len(sources),
		TopSignatures:     topSignatures(signatures, exposureTopSignatures),
		SeverityHistogram: histogram,
	}, nil
}

func signatureLabel(e *models.ThreatEvent) string {
	if e.SignatureName != "" {
		return e.SignatureName
	}
	return e.SignatureID
}

func topSignatures(counts map[string]int, n int) []SignatureCount {
	out := make([]SignatureCount, 0, len(counts))
	for sig, c := range counts {
		out = append(out, SignatureCount{Signature: sig, Count: c})
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Count != out[b].Count {
			return out[a].Count > out[b].Count
		}
		return out[a].Signature < out[b].Signature
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func (s *ExposureService) geoBlock(ctx context.Context, since time.Time) (*GeoBlockRecommendation, error) {
	total, err := s.store.CountEvents(ctx, EventQuery{Since: since})
	if err != nil {
		return nil, err
	}
	if total < geoBlockMinThreats {
		return nil, nil
	}

	countries, err := s.store.CountryDistribution(ctx, since)
	if err != nil {
		return nil, err
	}
	return recommendGeoBlock(countries, total), nil
}

// recommendGeoBlock picks up to five countries that each account for at
// least 5% of total, largest first. It returns nil when none qualify.
func recommendGeoBlock(countries []CountryCount, total int64) *GeoBlockRecommendation {
	if total < geoBlockMinThreats {
		return nil
	}
	sorted := append([]CountryCount(nil), countries...)
	sort.SliceStable(sorted, func(a, b int) bool { return sorted[a].Count > sorted[b].Count })

	rec := &GeoBlockRecommendation{TotalThreats: total}
	var combined int64
	for _, c := range sorted {
		if len(rec.Countries) == geoBlockMaxCountries {
			break
		}
		share := float64(c.Count) / float64(total)
		if share < geoBlockMinShare {
			break
		}
		combined += c.Count
		rec.Countries = append(rec.Countries, CountryShare{
			CountryCode: c.CountryCode,
			Count:       c.Count,
			Percentage:  roundPercent(share),
		})
	}
	if len(rec.Countries) == 0 {
		return nil
	}
	rec.CombinedPercentage = roundPercent(float64(combined) / float64(total))
	return rec
}

func roundPercent(ratio float64) float64 {
	return math.Round(ratio*1000) / 10
}
