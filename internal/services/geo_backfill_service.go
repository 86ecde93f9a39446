package services

import (
	"context"
	"fmt"

	"github.com/Wikid82/gatewatch/internal/geoip"
	"github.com/Wikid82/gatewatch/internal/logger"
	"github.com/Wikid82/gatewatch/internal/models"
)

// GeoStore is the persistence surface of the geo backfill.
type GeoStore interface {
	EventsMissingGeo(ctx context.Context, afterID uint, limit int) ([]models.ThreatEvent, error)
	SaveGeo(ctx context.Context, e *models.ThreatEvent) error
}

// GeoBackfillService enriches stored events that were ingested while the
// geo databases were unavailable.
type GeoBackfillService struct {
	store     GeoStore
	geo       *geoip.Service
	batchSize int
}

func NewGeoBackfillService(store GeoStore, geo *geoip.Service, batchSize int) *GeoBackfillService {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &GeoBackfillService{store: store, geo: geo, batchSize: batchSize}
}

// Run walks events without geo data in id order and writes every geo field
// of each event in one update. With only the ASN database loaded the rows
// keep a nil country code, stay eligible for a later run and are written
// only when their ASN changed.
func (s *GeoBackfillService) Run(ctx context.Context) (int, error) {
	if s.geo == nil || !s.geo.Loaded() {
		logger.Log().Debug("geo backfill: no geo database loaded, skipping")
		return 0, nil
	}
	asnOnly := !s.geo.Available()

	var cursor uint
	updated := 0
	for {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		batch, err := s.store.EventsMissingGeo(ctx, cursor, s.batchSize)
		if err != nil {
			return updated, fmt.Errorf("load backfill batch: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		before := make([]*uint, len(batch))
		for i := range batch {
			before[i] = batch[i].ASN
		}
		s.geo.EnrichEvents(ctx, batch)
		for i := range batch {
			if asnOnly && sameASN(before[i], batch[i].ASN) {
				continue
			}
			if err := s.store.SaveGeo(ctx, &batch[i]); err != nil {
				return updated, fmt.Errorf("save geo for event %d: %w", batch[i].ID, err)
			}
			updated++
		}
		cursor = batch[len(batch)-1].ID
		if len(batch) < s.batchSize {
			break
		}
	}

	if updated > 0 {
		logger.Log().WithField("events", updated).Info("geo backfill complete")
	}
	return updated, nil
}

func sameASN(a, b *uint) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
