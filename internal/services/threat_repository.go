package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Wikid82/gatewatch/internal/models"
)

var (
	ErrEventNotFound   = errors.New("threat event not found")
	ErrPatternNotFound = errors.New("threat pattern not found")
)

const quotaSettingKey = "crowdsec.quota"

// EventQuery narrows event reads. Zero values are ignored.
type EventQuery struct {
	Since       time.Time
	Until       time.Time
	SourceIP    string
	DestIP      string
	DestPort    *int
	Protocol    string
	Stage       models.KillChainStage
	EventSource models.EventSource
	Limit       int
	Offset      int
}

// PatternQuery narrows pattern reads.
type PatternQuery struct {
	Since time.Time
	Type  models.PatternType
	Limit int
}

type Summary struct {
	TotalEvents   int64 `json:"total_events"`
	UniqueSources int64 `json:"unique_sources"`
	Blocked       int64 `json:"blocked"`
	HighSeverity  int64 `json:"high_severity"`
	IPSEvents     int64 `json:"ips_events"`
	FlowEvents    int64 `json:"flow_events"`
	Patterns      int64 `json:"patterns"`
}

type SourceCount struct {
	SourceIP    string    `json:"source_ip"`
	Count       int64     `json:"count"`
	CountryCode *string   `json:"country_code"`
	LastSeen    time.Time `json:"last_seen"`
}

type PortCount struct {
	Port  int   `json:"port"`
	Count int64 `json:"count"`
}

type CountryCount struct {
	CountryCode string `json:"country_code"`
	Count       int64  `json:"count"`
}

type TimelineBucket struct {
	Start time.Time `json:"start"`
	Count int64     `json:"count"`
}

type StageCount struct {
	Stage models.KillChainStage `json:"stage"`
	Count int64                 `json:"count"`
}

// ThreatRepository is the gorm-backed store for events, patterns, the
// reputation cache and the persisted quota counter.
type ThreatRepository struct {
	db *gorm.DB
}

func NewThreatRepository(db *gorm.DB) *ThreatRepository {
	return &ThreatRepository{db: db}
}

// Ping checks that the database answers.
func (r *ThreatRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// SaveEvents inserts events whose SourceID is not stored yet and returns the
// inserted ones with ids assigned.
func (r *ThreatRepository) SaveEvents(ctx context.Context, events []models.ThreatEvent) ([]models.ThreatEvent, error) {
	if len(events) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(events))
	for i := range events {
		if events[i].SourceID != "" {
			ids = append(ids, events[i].SourceID)
		}
	}

	existing := make(map[string]struct{})
	for _, chunk := range chunkStrings(ids, 500) {
		var found []string
		if err := r.db.WithContext(ctx).Model(&models.ThreatEvent{}).
			Where("source_id IN ?", chunk).Pluck("source_id", &found).Error; err != nil {
			return nil, fmt.Errorf("lookup existing events: %w", err)
		}
		for _, id := range found {
			existing[id] = struct{}{}
		}
	}

	var fresh []models.ThreatEvent
	for _, e := range events {
		if e.SourceID != "" {
			if _, dup := existing[e.SourceID]; dup {
				continue
			}
			existing[e.SourceID] = struct{}{}
		}
		fresh = append(fresh, e)
	}
	if len(fresh) == 0 {
		return nil, nil
	}

	if err := r.db.WithContext(ctx).CreateInBatches(&fresh, 200).Error; err != nil {
		return nil, fmt.Errorf("insert events: %w", err)
	}
	return fresh, nil
}

func chunkStrings(in []string, size int) [][]string {
	var out [][]string
	for len(in) > size {
		out = append(out, in[:size])
		in = in[size:]
	}
	if len(in) > 0 {
		out = append(out, in)
	}
	return out
}

func (r *ThreatRepository) eventScope(ctx context.Context, q EventQuery) *gorm.DB {
	tx := r.db.WithContext(ctx).Model(&models.ThreatEvent{})
	if !q.Since.IsZero() {
		tx = tx.Where("timestamp >= ?", q.Since.UTC())
	}
	if !q.Until.IsZero() {
		tx = tx.Where("timestamp < ?", q.Until.UTC())
	}
	if q.SourceIP != "" {
		tx = tx.Where("source_ip = ?", q.SourceIP)
	}
	if q.DestIP != "" {
		tx = tx.Where("dest_ip = ?", q.DestIP)
	}
	if q.DestPort != nil {
		tx = tx.Where("dest_port = ?", *q.DestPort)
	}
	if q.Protocol != "" {
		tx = tx.Where("LOWER(protocol) = ?", strings.ToLower(q.Protocol))
	}
	if q.Stage != "" {
		tx = tx.Where("kill_chain_stage = ?", q.Stage)
	}
	if q.EventSource != "" {
		tx = tx.Where("event_source = ?", q.EventSource)
	}
	return tx
}

// QueryEvents returns matching events, newest first.
func (r *ThreatRepository) QueryEvents(ctx context.Context, q EventQuery) ([]models.ThreatEvent, error) {
	var events []models.ThreatEvent
	tx := r.eventScope(ctx, q).Order("timestamp desc").Order("id desc")
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	if q.Offset > 0 {
		tx = tx.Offset(q.Offset)
	}
	if err := tx.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// CountEvents counts matching events, ignoring Limit and Offset.
func (r *ThreatRepository) CountEvents(ctx context.Context, q EventQuery) (int64, error) {
	var n int64
	err := r.eventScope(ctx, q).Count(&n).Error
	return n, err
}

// GetEvent loads one event by id.
func (r *ThreatRepository) GetEvent(ctx context.Context, id uint) (*models.ThreatEvent, error) {
	var e models.ThreatEvent
	if err := r.db.WithContext(ctx).First(&e, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return &e, nil
}

// EventsSince returns every event at or after since in ascending time
// order, the shape the detectors expect.
func (r *ThreatRepository) EventsSince(ctx context.Context, since time.Time) ([]models.ThreatEvent, error) {
	var events []models.ThreatEvent
	err := r.db.WithContext(ctx).Where("timestamp >= ?", since.UTC()).
		Order("timestamp asc").Order("id asc").Find(&events).Error
	return events, err
}

// AttackSequence returns the events sent by ip in chronological order.
func (r *ThreatRepository) AttackSequence(ctx context.Context, ip string, since time.Time) ([]models.ThreatEvent, error) {
	var events []models.ThreatEvent
	tx := r.db.WithContext(ctx).Where("source_ip = ?", ip)
	if !since.IsZero() {
		tx = tx.Where("timestamp >= ?", since.UTC())
	}
	err := tx.Order("timestamp asc").Order("id asc").Find(&events).Error
	return events, err
}

// Summary aggregates headline counters for events at or after since.
func (r *ThreatRepository) Summary(ctx context.Context, since time.Time) (Summary, error) {
	var s Summary
	scope := func() *gorm.DB { return r.eventScope(ctx, EventQuery{Since: since}) }

	if err := scope().Count(&s.TotalEvents).Error; err != nil {
		return s, err
	}
	if err := scope().Distinct("source_ip").Count(&s.UniqueSources).Error; err != nil {
		return s, err
	}
	if err := scope().Where("action = ?", models.ActionBlocked).Count(&s.Blocked).Error; err != nil {
		return s, err
	}
	if err := scope().Where("severity >= ?", 4).Count(&s.HighSeverity).Error; err != nil {
		return s, err
	}
	if err := scope().Where("event_source = ?", models.EventSourceIPS).Count(&s.IPSEvents).Error; err != nil {
		return s, err
	}
	if err := scope().Where("event_source = ?", models.EventSourceTrafficFlow).Count(&s.FlowEvents).Error; err != nil {
		return s, err
	}
	pq := r.db.WithContext(ctx).Model(&models.ThreatPattern{})
	if !since.IsZero() {
		pq = pq.Where("last_seen >= ?", since.UTC())
	}
	if err := pq.Count(&s.Patterns).Error; err != nil {
		return s, err
	}
	return s, nil
}

// TopSources ranks source IPs by event count.
func (r *ThreatRepository) TopSources(ctx context.Context, since time.Time, limit int) ([]SourceCount, error) {
	var rows []struct {
		SourceIP    string
		Count       int64
		CountryCode *string
		LastSeen    string
	}
	err := r.eventScope(ctx, EventQuery{Since: since}).
		Select("source_ip, COUNT(*) AS count, MAX(country_code) AS country_code, MAX(timestamp) AS last_seen").
		Group("source_ip").Order("count desc").Order("source_ip asc").
		Limit(limitOr(limit, 10)).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]SourceCount, 0, len(rows))
	for _, row := range rows {
		out = append(out, SourceCount{
			SourceIP:    row.SourceIP,
			Count:       row.Count,
			CountryCode: row.CountryCode,
			LastSeen:    parseSQLiteTime(row.LastSeen),
		})
	}
	return out, nil
}

// sqlite returns aggregated datetime columns as text.
func parseSQLiteTime(s string) time.Time {
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05.999999999",
		time.RFC3339Nano,
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// TopPorts ranks destination ports by event count.
func (r *ThreatRepository) TopPorts(ctx context.Context, since time.Time, limit int) ([]PortCount, error) {
	var out []PortCount
	err := r.eventScope(ctx, EventQuery{Since: since}).
		Select("dest_port AS port, COUNT(*) AS count").
		Group("dest_port").Order("count desc").Order("port asc").
		Limit(limitOr(limit, 10)).Scan(&out).Error
	return out, err
}

// CountryDistribution counts events per resolved country, largest first.
// Events without a country are left out.
func (r *ThreatRepository) CountryDistribution(ctx context.Context, since time.Time) ([]CountryCount, error) {
	var out []CountryCount
	err := r.eventScope(ctx, EventQuery{Since: since}).
		Select("country_code, COUNT(*) AS count").
		Where("country_code IS NOT NULL AND country_code <> ''").
		Group("country_code").Order("count desc").Order("country_code asc").
		Scan(&out).Error
	return out, err
}

// KillChainDistribution counts events per stage. Every stage is present in
// the result, in escalation order.
func (r *ThreatRepository) KillChainDistribution(ctx context.Context, since time.Time) ([]StageCount, error) {
	var rows []StageCount
	err := r.eventScope(ctx, EventQuery{Since: since}).
		Select("kill_chain_stage AS stage, COUNT(*) AS count").
		Group("kill_chain_stage").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[models.KillChainStage]int64, len(rows))
	for _, row := range rows {
		counts[row.Stage] = row.Count
	}
	out := make([]StageCount, 0, len(models.KillChainStages))
	for _, stage := range models.KillChainStages {
		out = append(out, StageCount{Stage: stage, Count: counts[stage]})
	}
	return out, nil
}

// Timeline buckets events between since and until into fixed-width slots.
// Empty slots are included so the series is contiguous.
func (r *ThreatRepository) Timeline(ctx context.Context, since, until time.Time, bucket time.Duration) ([]TimelineBucket, error) {
	if bucket <= 0 {
		return nil, fmt.Errorf("bucket must be positive")
	}
	if !until.After(since) {
		return nil, nil
	}

	var events []models.ThreatEvent
	err := r.eventScope(ctx, EventQuery{Since: since, Until: until}).
		Select("id", "timestamp").Find(&events).Error
	if err != nil {
		return nil, err
	}

	start := since.UTC().Truncate(bucket)
	n := int(until.UTC().Sub(start)/bucket) + 1
	out := make([]TimelineBucket, n)
	for i := range out {
		out[i].Start = start.Add(time.Duration(i) * bucket)
	}
	for _, e := range events {
		idx := int(e.Timestamp.UTC().Sub(start) / bucket)
		if idx >= 0 && idx < n {
			out[idx].Count++
		}
	}
	return out, nil
}

func limitOr(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return limit
}

// UpsertPattern stores p, merging it into an existing row with the same
// dedup key. The returned pattern is the stored row; created reports
// whether it is new.
func (r *ThreatRepository) UpsertPattern(ctx context.Context, p *models.ThreatPattern) (stored *models.ThreatPattern, created bool, err error) {
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if p.DedupKey == nil {
			created = true
			stored = p
			return tx.Create(p).Error
		}

		var existing models.ThreatPattern
		res := tx.Where("dedup_key = ?", *p.DedupKey).Limit(1).Find(&existing)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			created = true
			stored = p
			return tx.Create(p).Error
		}

		if p.FirstSeen.Before(existing.FirstSeen) {
			existing.FirstSeen = p.FirstSeen
		}
		if p.LastSeen.After(existing.LastSeen) {
			existing.LastSeen = p.LastSeen
		}
		if p.EventCount > existing.EventCount {
			existing.EventCount = p.EventCount
		}
		if p.Confidence > existing.Confidence {
			existing.Confidence = p.Confidence
		}
		if existing.TargetPort == nil {
			existing.TargetPort = p.TargetPort
		}
		existing.DetectedAt = p.DetectedAt
		existing.MergeSourceIPs(p.SourceIPList(), maxStoredSourceIPs)
		existing.EventIDs = p.EventIDs
		stored = &existing
		return tx.Save(&existing).Error
	})
	if err != nil {
		return nil, false, fmt.Errorf("upsert pattern: %w", err)
	}
	return stored, created, nil
}

const maxStoredSourceIPs = 20

// LinkEvents points the given events at a pattern.
func (r *ThreatRepository) LinkEvents(ctx context.Context, patternID uint, eventIDs []uint) error {
	if len(eventIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Session(&gorm.Session{SkipHooks: true}).Model(&models.ThreatEvent{}).
		Where("id IN ?", eventIDs).Update("pattern_id", patternID).Error
}

// PatternEvents returns up to limit events linked to a pattern, oldest first.
func (r *ThreatRepository) PatternEvents(ctx context.Context, patternID uint, limit int) ([]models.ThreatEvent, error) {
	var events []models.ThreatEvent
	err := r.db.WithContext(ctx).Where("pattern_id = ?", patternID).
		Order("timestamp asc").Order("id asc").Limit(limitOr(limit, 100)).Find(&events).Error
	return events, err
}

// ListPatterns returns patterns ordered by most recent activity.
func (r *ThreatRepository) ListPatterns(ctx context.Context, q PatternQuery) ([]models.ThreatPattern, error) {
	tx := r.db.WithContext(ctx).Model(&models.ThreatPattern{})
	if !q.Since.IsZero() {
		tx = tx.Where("last_seen >= ?", q.Since.UTC())
	}
	if q.Type != "" {
		tx = tx.Where("pattern_type = ?", q.Type)
	}
	var patterns []models.ThreatPattern
	err := tx.Order("last_seen desc").Order("id desc").Limit(limitOr(q.Limit, 100)).Find(&patterns).Error
	return patterns, err
}

// GetPattern loads one pattern by id.
func (r *ThreatRepository) GetPattern(ctx context.Context, id uint) (*models.ThreatPattern, error) {
	var p models.ThreatPattern
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPatternNotFound
		}
		return nil, err
	}
	return &p, nil
}

// MarkAlerted records when a pattern was last notified.
func (r *ThreatRepository) MarkAlerted(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.ThreatPattern{}).
		Where("id = ?", id).Update("last_alerted_at", at).Error
}

// DeleteBefore removes patterns whose last activity and events whose
// timestamp are older than cutoff. Surviving events lose their link to a
// deleted pattern.
func (r *ThreatRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (patterns, events int64, err error) {
	cutoff = cutoff.UTC()
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stale := tx.Model(&models.ThreatPattern{}).Select("id").Where("last_seen < ?", cutoff)
		if err := tx.Session(&gorm.Session{SkipHooks: true}).Model(&models.ThreatEvent{}).Where("pattern_id IN (?)", stale).
			Update("pattern_id", nil).Error; err != nil {
			return err
		}
		res := tx.Where("last_seen < ?", cutoff).Delete(&models.ThreatPattern{})
		if res.Error != nil {
			return res.Error
		}
		patterns = res.RowsAffected

		res = tx.Where("timestamp < ?", cutoff).Delete(&models.ThreatEvent{})
		if res.Error != nil {
			return res.Error
		}
		events = res.RowsAffected
		return nil
	})
	return patterns, events, err
}

// EventsMissingGeo returns up to limit events with id > afterID that no
// enrichment pass has touched, ordered by id.
func (r *ThreatRepository) EventsMissingGeo(ctx context.Context, afterID uint, limit int) ([]models.ThreatEvent, error) {
	var events []models.ThreatEvent
	err := r.db.WithContext(ctx).
		Where("id > ? AND country_code IS NULL", afterID).
		Order("id asc").Limit(limitOr(limit, 500)).Find(&events).Error
	return events, err
}

// SaveGeo writes every geo field of e in a single update.
func (r *ThreatRepository) SaveGeo(ctx context.Context, e *models.ThreatEvent) error {
	return r.db.WithContext(ctx).Session(&gorm.Session{SkipHooks: true}).Model(&models.ThreatEvent{}).Where("id = ?", e.ID).
		Updates(map[string]any{
			"country_code": e.CountryCode,
			"city":         e.City,
			"latitude":     e.Latitude,
			"longitude":    e.Longitude,
			"asn":          e.ASN,
			"asn_org":      e.ASNOrg,
		}).Error
}

// GetReputation returns the cached entry for ip, or nil if there is none.
func (r *ThreatRepository) GetReputation(ctx context.Context, ip string) (*models.CrowdSecReputation, error) {
	var rep models.CrowdSecReputation
	res := r.db.WithContext(ctx).Where("ip = ?", ip).Limit(1).Find(&rep)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &rep, nil
}

// SaveReputation inserts or replaces the cache entry for rep.IP.
func (r *ThreatRepository) SaveReputation(ctx context.Context, rep *models.CrowdSecReputation) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "ip"}},
		UpdateAll: true,
	}).Create(rep).Error
}

// PurgeExpiredReputation deletes cache entries that expired before now.
func (r *ThreatRepository) PurgeExpiredReputation(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now.UTC()).Delete(&models.CrowdSecReputation{})
	return res.RowsAffected, res.Error
}

// LoadQuota reads the persisted reputation quota counter.
func (r *ThreatRepository) LoadQuota(ctx context.Context) (string, int, error) {
	var s models.Setting
	res := r.db.WithContext(ctx).Where("key = ?", quotaSettingKey).Limit(1).Find(&s)
	if res.Error != nil {
		return "", 0, res.Error
	}
	if res.RowsAffected == 0 {
		return "", 0, nil
	}
	day, used, ok := strings.Cut(s.Value, "|")
	if !ok {
		return "", 0, fmt.Errorf("malformed quota setting %q", s.Value)
	}
	n, err := strconv.Atoi(used)
	if err != nil {
		return "", 0, fmt.Errorf("malformed quota setting %q: %w", s.Value, err)
	}
	return day, n, nil
}

// SaveQuota persists the reputation quota counter.
func (r *ThreatRepository) SaveQuota(ctx context.Context, day string, used int) error {
	s := models.Setting{
		Key:      quotaSettingKey,
		Value:    day + "|" + strconv.Itoa(used),
		Category: "crowdsec",
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "category", "updated_at"}),
	}).Create(&s).Error
}
