package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wikid82/gatewatch/internal/models"
	"github.com/Wikid82/gatewatch/internal/services"
)

type eventList struct {
	Events   []models.ThreatEvent `json:"events"`
	Count    int                  `json:"count"`
	Filtered int                  `json:"filtered"`
}

func setupEventRouter(t *testing.T) (*gin.Engine, *services.ThreatRepository, *services.NoiseFilterService) {
	t.Helper()
	db := setupTestDB(t)
	repo := services.NewThreatRepository(db)
	noise := services.NewNoiseFilterService(db)
	h := NewEventHandler(repo, noise)

	r := newRouter()
	r.GET("/events", h.List)
	r.GET("/events/:id", h.Get)
	r.GET("/attack-sequence/:ip", h.AttackSequence)
	return r, repo, noise
}

func TestEventHandler_ListAppliesNoiseFilters(t *testing.T) {
	r, repo, noise := setupEventRouter(t)
	now := time.Now().UTC()
	seed(t, repo,
		ipsEvent(now.Add(-time.Hour), "203.0.113.10", "10.0.0.5", 22, 3, "SSH brute force attempt"),
		ipsEvent(now.Add(-30*time.Minute), "198.51.100.7", "10.0.0.5", 443, 2, "TLS anomaly"),
		ipsEvent(now.Add(-48*time.Hour), "203.0.113.10", "10.0.0.5", 22, 3, "SSH brute force attempt"),
	)
	require.NoError(t, noise.Create(context.Background(), &models.ThreatNoiseFilter{
		Name: "scanner", SourceIP: strPtr("198.51.100.0/24"), Enabled: true,
	}))

	w := doJSON(t, r, http.MethodGet, "/events", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp eventList
	decode(t, w, &resp)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, 1, resp.Filtered)
	assert.Equal(t, "203.0.113.10", resp.Events[0].SourceIP)

	w = doJSON(t, r, http.MethodGet, "/events?include_filtered=true", nil)
	decode(t, w, &resp)
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, 0, resp.Filtered)

	w = doJSON(t, r, http.MethodGet, "/events?since=72h&dest_port=22", nil)
	decode(t, w, &resp)
	assert.Equal(t, 2, resp.Count)
}

func TestEventHandler_ListRejectsBadParams(t *testing.T) {
	r, _, _ := setupEventRouter(t)
	for _, q := range []string{
		"?since=yesterday",
		"?dest_port=70000",
		"?source_ip=not-an-ip",
		"?stage=pwned",
		"?event_source=syslog",
		"?limit=-1",
		"?offset=-5",
		"?since=1h&until=2h",
	} {
		w := doJSON(t, r, http.MethodGet, "/events"+q, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestEventHandler_Get(t *testing.T) {
	r, repo, _ := setupEventRouter(t)
	seed(t, repo, ipsEvent(time.Now().UTC(), "203.0.113.10", "10.0.0.5", 22, 3, "SSH login"))
	events, err := repo.QueryEvents(context.Background(), services.EventQuery{})
	require.NoError(t, err)
	require.Len(t, events, 1)

	w := doJSON(t, r, http.MethodGet, "/events/"+uintStr(events[0].ID), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/events/9999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, r, http.MethodGet, "/events/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEventHandler_AttackSequence(t *testing.T) {
	r, repo, _ := setupEventRouter(t)
	now := time.Now().UTC()
	first := ipsEvent(now.Add(-2*time.Hour), "203.0.113.10", "10.0.0.5", 22, 2, "port scan")
	second := ipsEvent(now.Add(-time.Hour), "203.0.113.10", "10.0.0.5", 22, 5, "remote code execution exploit")
	seed(t, repo, second, first)

	w := doJSON(t, r, http.MethodGet, "/attack-sequence/203.0.113.10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Events       []models.ThreatEvent    `json:"events"`
		Progression  []models.KillChainStage `json:"progression"`
		HighestStage models.KillChainStage   `json:"highest_stage"`
	}
	decode(t, w, &resp)
	require.Len(t, resp.Events, 2)
	assert.True(t, resp.Events[0].Timestamp.Before(resp.Events[1].Timestamp))
	assert.NotEmpty(t, resp.Progression)
	assert.Equal(t, resp.Events[1].KillChainStage, resp.Progression[len(resp.Progression)-1])
	assert.GreaterOrEqual(t, stageRank(resp.HighestStage), stageRank(resp.Events[0].KillChainStage))

	w = doJSON(t, r, http.MethodGet, "/attack-sequence/garbage", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }
