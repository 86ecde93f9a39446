package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wikid82/gatewatch/internal/models"
)

func TestThreatRepository_SaveEventsDedupsBySourceID(t *testing.T) {
	repo := NewThreatRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	first := ipsEvent(now, "185.220.101.4", "192.168.1.10", 22, 3, "ET SCAN SSH")
	second := ipsEvent(now, "185.220.101.5", "192.168.1.10", 22, 3, "ET SCAN SSH")

	stored, err := repo.SaveEvents(ctx, []models.ThreatEvent{first, second, first})
	require.NoError(t, err)
	assert.Len(t, stored, 2)
	for _, e := range stored {
		assert.NotZero(t, e.ID)
		assert.NotEmpty(t, e.UUID)
	}

	stored, err = repo.SaveEvents(ctx, []models.ThreatEvent{first})
	require.NoError(t, err)
	assert.Empty(t, stored)

	n, err := repo.CountEvents(ctx, EventQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestThreatRepository_SaveEventsClampsSeverity(t *testing.T) {
	repo := NewThreatRepository(setupTestDB(t))
	ctx := context.Background()

	e := ipsEvent(time.Now(), "1.1.1.1", "10.0.0.1", 80, 9, "x")
	stored, err := repo.SaveEvents(ctx, []models.ThreatEvent{e})
	require.NoError(t, err)
	require.Len(t, stored, 1)

	got, err := repo.GetEvent(ctx, stored[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.MaxSeverity, got.Severity)

	_, err = repo.GetEvent(ctx, 9999)
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestThreatRepository_QueryEvents(t *testing.T) {
	repo := NewThreatRepository(setupTestDB(t))
	ctx := context.Background()
	base := time.Now().UTC().Add(-2 * time.Hour).Truncate(time.Second)

	events := []models.ThreatEvent{
		ipsEvent(base, "1.1.1.1", "10.0.0.1", 22, 3, "a"),
		ipsEvent(base.Add(30*time.Minute), "1.1.1.1", "10.0.0.1", 443, 3, "b"),
		ipsEvent(base.Add(90*time.Minute), "8.8.8.8", "10.0.0.2", 22, 3, "c"),
	}
	events[2].KillChainStage = models.StageReconnaissance
	_, err := repo.SaveEvents(ctx, events)
	require.NoError(t, err)

	got, err := repo.QueryEvents(ctx, EventQuery{SourceIP: "1.1.1.1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].SignatureName, "newest first")

	got, err = repo.QueryEvents(ctx, EventQuery{DestPort: intPtr(22)})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = repo.QueryEvents(ctx, EventQuery{Since: base.Add(time.Hour)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "8.8.8.8", got[0].SourceIP)

	got, err = repo.QueryEvents(ctx, EventQuery{Until: base.Add(time.Minute)})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = repo.QueryEvents(ctx, EventQuery{Stage: models.StageReconnaissance})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = repo.QueryEvents(ctx, EventQuery{Protocol: "TCP", Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	seq, err := repo.AttackSequence(ctx, "1.1.1.1", time.Time{})
	require.NoError(t, err)
	require.Len(t, seq, 2)
	assert.Equal(t, "a", seq[0].SignatureName, "oldest first")
}

func TestThreatRepository_Aggregates(t *testing.T) {
	repo := NewThreatRepository(setupTestDB(t))
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Hour)

	var events []models.ThreatEvent
	for i := 0; i < 3; i++ {
		e := ipsEvent(base.Add(time.Duration(i)*time.Minute), "185.220.101.4", "10.0.0.1", 22, 5, "ssh")
		e.CountryCode = strPtr("DE")
		e.KillChainStage = models.StageAttemptedExploitation
		events = append(events, e)
	}
	flow := ipsEvent(base.Add(20*time.Minute), "8.8.8.8", "10.0.0.1", 443, 2, "")
	flow.EventSource = models.EventSourceTrafficFlow
	flow.Action = models.ActionDetected
	flow.CountryCode = strPtr("US")
	flow.KillChainStage = models.StageReconnaissance
	events = append(events, flow)
	_, err := repo.SaveEvents(ctx, events)
	require.NoError(t, err)

	summary, err := repo.Summary(ctx, base.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(4), summary.TotalEvents)
	assert.Equal(t, int64(2), summary.UniqueSources)
	assert.Equal(t, int64(3), summary.Blocked)
	assert.Equal(t, int64(3), summary.HighSeverity)
	assert.Equal(t, int64(3), summary.IPSEvents)
	assert.Equal(t, int64(1), summary.FlowEvents)

	sources, err := repo.TopSources(ctx, time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "185.220.101.4", sources[0].SourceIP)
	assert.Equal(t, int64(3), sources[0].Count)
	require.NotNil(t, sources[0].CountryCode)
	assert.Equal(t, "DE", *sources[0].CountryCode)
	assert.WithinDuration(t, base.Add(2*time.Minute), sources[0].LastSeen, time.Second)

	ports, err := repo.TopPorts(ctx, time.Time{}, 1)
	require.NoError(t, err)
	require.Len(t, ports, 1)
	assert.Equal(t, PortCount{Port: 22, Count: 3}, ports[0])

	countries, err := repo.CountryDistribution(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []CountryCount{{CountryCode: "DE", Count: 3}, {CountryCode: "US", Count: 1}}, countries)

	stages, err := repo.KillChainDistribution(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, stages, len(models.KillChainStages))
	byStage := map[models.KillChainStage]int64{}
	for _, s := range stages {
		byStage[s.Stage] = s.Count
	}
	assert.Equal(t, int64(3), byStage[models.StageAttemptedExploitation])
	assert.Equal(t, int64(1), byStage[models.StageReconnaissance])
	assert.Equal(t, int64(0), byStage[models.StagePostExploitation])

	timeline, err := repo.Timeline(ctx, base, base.Add(30*time.Minute), 10*time.Minute)
	require.NoError(t, err)
	require.Len(t, timeline, 4)
	assert.Equal(t, int64(3), timeline[0].Count)
	assert.Equal(t, int64(0), timeline[1].Count)
	assert.Equal(t, int64(1), timeline[2].Count)
}

func TestThreatRepository_UpsertPatternMerges(t *testing.T) {
	repo := NewThreatRepository(setupTestDB(t))
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)
	key := "bf:1.2.3.4:22"

	first := &models.ThreatPattern{
		PatternType: models.PatternBruteForce,
		DetectedAt:  base,
		TargetPort:  intPtr(22),
		EventCount:  20,
		FirstSeen:   base.Add(-10 * time.Minute),
		LastSeen:    base.Add(-5 * time.Minute),
		Confidence:  0.4,
		DedupKey:    &key,
	}
	first.SetSourceIPs([]string{"1.2.3.4"})

	stored, created, err := repo.UpsertPattern(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)
	require.NoError(t, repo.MarkAlerted(ctx, stored.ID, base))

	second := &models.ThreatPattern{
		PatternType: models.PatternBruteForce,
		DetectedAt:  base.Add(time.Minute),
		TargetPort:  intPtr(22),
		EventCount:  30,
		FirstSeen:   base.Add(-8 * time.Minute),
		LastSeen:    base.Add(time.Minute),
		Confidence:  0.6,
		DedupKey:    &key,
	}
	second.SetSourceIPs([]string{"1.2.3.4", "1.2.3.5"})

	merged, created, err := repo.UpsertPattern(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, stored.ID, merged.ID)
	assert.Equal(t, 30, merged.EventCount)
	assert.InDelta(t, 0.6, merged.Confidence, 1e-9)
	assert.WithinDuration(t, base.Add(-10*time.Minute), merged.FirstSeen, time.Second)
	assert.WithinDuration(t, base.Add(time.Minute), merged.LastSeen, time.Second)
	assert.Equal(t, []string{"1.2.3.4", "1.2.3.5"}, merged.SourceIPList())
	require.NotNil(t, merged.LastAlertedAt)
	assert.True(t, merged.NeedsAlert())

	patterns, err := repo.ListPatterns(ctx, PatternQuery{})
	require.NoError(t, err)
	assert.Len(t, patterns, 1)

	saved, err := repo.SaveEvents(ctx, []models.ThreatEvent{
		ipsEvent(base, "1.2.3.4", "10.0.0.5", 22, 3, "SSH login attempt"),
		ipsEvent(base, "1.2.3.5", "10.0.0.5", 22, 3, "SSH login attempt"),
	})
	require.NoError(t, err)
	require.NoError(t, repo.LinkEvents(ctx, stored.ID, []uint{saved[0].ID}))
	linked, err := repo.PatternEvents(ctx, stored.ID, 0)
	require.NoError(t, err)
	require.Len(t, linked, 1)
	assert.Equal(t, saved[0].ID, linked[0].ID)

	_, err = repo.GetPattern(ctx, 999)
	assert.ErrorIs(t, err, ErrPatternNotFound)
}

func TestThreatRepository_DeleteBefore(t *testing.T) {
	repo := NewThreatRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	oldEvent := ipsEvent(now.Add(-100*24*time.Hour), "1.1.1.1", "10.0.0.1", 22, 3, "old")
	newEvent := ipsEvent(now.Add(-time.Hour), "1.1.1.1", "10.0.0.1", 22, 3, "new")
	stored, err := repo.SaveEvents(ctx, []models.ThreatEvent{oldEvent, newEvent})
	require.NoError(t, err)

	stale := &models.ThreatPattern{
		PatternType: models.PatternScanSweep,
		DetectedAt:  now.Add(-100 * 24 * time.Hour),
		FirstSeen:   now.Add(-100 * 24 * time.Hour),
		LastSeen:    now.Add(-99 * 24 * time.Hour),
	}
	p, _, err := repo.UpsertPattern(ctx, stale)
	require.NoError(t, err)
	require.NoError(t, repo.LinkEvents(ctx, p.ID, []uint{stored[1].ID}))

	patterns, events, err := repo.DeleteBefore(ctx, now.Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), patterns)
	assert.Equal(t, int64(1), events)

	survivor, err := repo.GetEvent(ctx, stored[1].ID)
	require.NoError(t, err)
	assert.Nil(t, survivor.PatternID)
}

func TestThreatRepository_ReputationCache(t *testing.T) {
	repo := NewThreatRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	missing, err := repo.GetReputation(ctx, "8.8.8.8")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, repo.SaveReputation(ctx, &models.CrowdSecReputation{
		IP: "8.8.8.8", NotFound: true, FetchedAt: now, ExpiresAt: now.Add(time.Hour),
	}))
	require.NoError(t, repo.SaveReputation(ctx, &models.CrowdSecReputation{
		IP: "8.8.8.8", Payload: `{"ip":"8.8.8.8"}`, FetchedAt: now, ExpiresAt: now.Add(2 * time.Hour),
	}))
	require.NoError(t, repo.SaveReputation(ctx, &models.CrowdSecReputation{
		IP: "1.1.1.1", NotFound: true, FetchedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	}))

	got, err := repo.GetReputation(ctx, "8.8.8.8")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.NotFound)
	assert.Equal(t, `{"ip":"8.8.8.8"}`, got.Payload)

	purged, err := repo.PurgeExpiredReputation(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}

func TestThreatRepository_QuotaPersistence(t *testing.T) {
	repo := NewThreatRepository(setupTestDB(t))
	ctx := context.Background()

	day, used, err := repo.LoadQuota(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", day)
	assert.Zero(t, used)

	require.NoError(t, repo.SaveQuota(ctx, "2024-03-10", 12))
	require.NoError(t, repo.SaveQuota(ctx, "2024-03-10", 13))

	day, used, err = repo.LoadQuota(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-10", day)
	assert.Equal(t, 13, used)
}

func TestThreatRepository_GeoBackfillCursor(t *testing.T) {
	repo := NewThreatRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	var events []models.ThreatEvent
	for i := 0; i < 3; i++ {
		events = append(events, ipsEvent(now, "8.8.8.8", "10.0.0.1", 22, 3, "x"))
	}
	events[1].CountryCode = strPtr("US")
	stored, err := repo.SaveEvents(ctx, events)
	require.NoError(t, err)

	missing, err := repo.EventsMissingGeo(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, missing, 2)
	assert.Equal(t, stored[0].ID, missing[0].ID)
	assert.Equal(t, stored[2].ID, missing[1].ID)

	missing, err = repo.EventsMissingGeo(ctx, stored[0].ID, 10)
	require.NoError(t, err)
	require.Len(t, missing, 1)

	e := missing[0]
	e.CountryCode = strPtr("")
	require.NoError(t, repo.SaveGeo(ctx, &e))

	missing, err = repo.EventsMissingGeo(ctx, 0, 10)
	require.NoError(t, err)
	assert.Len(t, missing, 1)
}
