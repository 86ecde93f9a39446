package geoip

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/oschwald/geoip2-golang"

	"github.com/Wikid82/gatewatch/internal/logger"
	"github.com/Wikid82/gatewatch/internal/metrics"
	"github.com/Wikid82/gatewatch/internal/models"
	"github.com/Wikid82/gatewatch/internal/util"
)

// MaxMind edition ids; each is stored as <edition>.mmdb in the data dir.
const (
	CityEdition = "GeoLite2-City"
	ASNEdition  = "GeoLite2-ASN"
)

// CityReader is the subset of *geoip2.Reader used for city lookups.
type CityReader interface {
	City(ip net.IP) (*geoip2.City, error)
	Close() error
}

// ASNReader is the subset of *geoip2.Reader used for ASN lookups.
type ASNReader interface {
	ASN(ip net.IP) (*geoip2.ASN, error)
	Close() error
}

// Info is the result of one lookup. Nil fields mean "unknown".
type Info struct {
	CountryCode *string  `json:"country_code"`
	City        *string  `json:"city"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	ASN         *uint    `json:"asn"`
	ASNOrg      *string  `json:"asn_org"`
}

// Empty reports whether the lookup produced nothing.
func (i Info) Empty() bool {
	return i.CountryCode == nil && i.City == nil && i.ASN == nil && i.ASNOrg == nil &&
		i.Latitude == nil && i.Longitude == nil
}

// Apply writes every geo field of e in one step. CountryCode is always set
// (possibly to "") so the event is not picked up again by the backfill.
func (i Info) Apply(e *models.ThreatEvent) {
	cc := ""
	if i.CountryCode != nil {
		cc = *i.CountryCode
	}
	e.CountryCode = &cc
	e.City = i.City
	e.Latitude = i.Latitude
	e.Longitude = i.Longitude
	e.ASN = i.ASN
	e.ASNOrg = i.ASNOrg
}

// Service resolves IPs against the offline city and ASN databases. Either
// database may be absent; lookups then leave the matching fields nil.
// Readers are swapped under a write lock so in-flight lookups finish first.
type Service struct {
	dir string

	mu   sync.RWMutex
	city CityReader
	asn  ASNReader

	onReload func()
}

// NewService opens whatever databases exist under dir.
func NewService(dir string) *Service {
	s := &Service{dir: dir}
	if err := s.Reload(); err != nil {
		logger.Log().WithError(err).Warn("geoip: databases could not be loaded, geo enrichment degraded")
	}
	return s
}

// Dir returns the database directory.
func (s *Service) Dir() string { return s.dir }

// Reload reopens both databases from disk and atomically replaces the
// current readers. A missing file disables that database without error.
func (s *Service) Reload() error {
	var errs []error

	var city CityReader
	if r, err := openReader(filepath.Join(s.dir, CityEdition+".mmdb")); err != nil {
		errs = append(errs, err)
	} else if r != nil {
		city = r
	}

	var asn ASNReader
	if r, err := openReader(filepath.Join(s.dir, ASNEdition+".mmdb")); err != nil {
		errs = append(errs, err)
	} else if r != nil {
		asn = r
	}

	s.Swap(city, asn)

	logger.Log().WithField("city", city != nil).WithField("asn", asn != nil).Info("geoip: databases loaded")
	if s.onReload != nil {
		s.onReload()
	}
	return errors.Join(errs...)
}

func openReader(path string) (*geoip2.Reader, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			logger.Log().WithField("path", path).Debug("geoip: database file not present")
			return nil, nil
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	r, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return r, nil
}

// Swap installs new readers and closes the previous ones.
func (s *Service) Swap(city CityReader, asn ASNReader) {
	s.mu.Lock()
	oldCity, oldASN := s.city, s.asn
	s.city, s.asn = city, asn
	s.mu.Unlock()

	if oldCity != nil {
		_ = oldCity.Close()
	}
	if oldASN != nil {
		_ = oldASN.Close()
	}
}

// Available reports whether the city database is loaded.
func (s *Service) Available() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.city != nil
}

// Loaded reports whether at least one database is loaded, so lookups can
// fill some fields.
func (s *Service) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.city != nil || s.asn != nil
}

// Complete reports whether both databases are loaded.
func (s *Service) Complete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.city != nil && s.asn != nil
}

// Databases reports which of the two databases are loaded.
func (s *Service) Databases() (city, asn bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.city != nil, s.asn != nil
}

// Close releases both readers.
func (s *Service) Close() {
	s.Swap(nil, nil)
}

// Enrich looks up ip. Non-public addresses, cancelled contexts and lookup
// failures all yield an empty Info.
func (s *Service) Enrich(ctx context.Context, ip string) Info {
	if ctx.Err() != nil {
		return Info{}
	}
	parsed := net.ParseIP(ip)
	if !util.IsPublicIP(parsed) {
		metrics.IncGeoLookup("private")
		return Info{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var info Info
	if s.city != nil {
		if rec, err := s.city.City(parsed); err != nil {
			logger.Log().WithError(err).WithField("ip", ip).Warn("geoip: city lookup failed")
		} else if rec != nil && rec.Country.IsoCode != "" {
			cc := rec.Country.IsoCode
			lat, lon := rec.Location.Latitude, rec.Location.Longitude
			info.CountryCode = &cc
			info.Latitude = &lat
			info.Longitude = &lon
			if name := rec.City.Names["en"]; name != "" {
				info.City = &name
			}
		}
	}
	if s.asn != nil {
		if rec, err := s.asn.ASN(parsed); err != nil {
			logger.Log().WithError(err).WithField("ip", ip).Warn("geoip: asn lookup failed")
		} else if rec != nil && rec.AutonomousSystemNumber != 0 {
			num := rec.AutonomousSystemNumber
			org := rec.AutonomousSystemOrganization
			info.ASN = &num
			info.ASNOrg = &org
		}
	}

	if info.Empty() {
		metrics.IncGeoLookup("miss")
	} else {
		metrics.IncGeoLookup("hit")
	}
	return info
}

// LookupTarget returns the address worth geolocating for e: the source,
// except for traffic flows originating inside the network, where the
// externally reachable destination is used instead.
func LookupTarget(e *models.ThreatEvent) string {
	if e.EventSource == models.EventSourceTrafficFlow && !util.IsPublicIPString(e.SourceIP) {
		return e.DestIP
	}
	return e.SourceIP
}

// EnrichEvents applies geo data to every event in place, looking each
// distinct IP up once. It returns how many events received data. Without
// the city database CountryCode stays nil, leaving the events to the
// backfill once that database arrives.
func (s *Service) EnrichEvents(ctx context.Context, events []models.ThreatEvent) int {
	hasCity := s.Available()
	cache := make(map[string]Info)
	enriched := 0
	for i := range events {
		if ctx.Err() != nil {
			break
		}
		target := LookupTarget(&events[i])
		info, ok := cache[target]
		if !ok {
			info = s.Enrich(ctx, target)
			cache[target] = info
		}
		info.Apply(&events[i])
		if !hasCity {
			events[i].CountryCode = nil
		}
		if !info.Empty() {
			enriched++
		}
	}
	return enriched
}
