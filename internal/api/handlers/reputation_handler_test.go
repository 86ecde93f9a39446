package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wikid82/gatewatch/internal/crowdsec"
	"github.com/Wikid82/gatewatch/internal/services"
)

const smokeBody = `{
  "ip": "185.220.101.4",
  "as_name": "Example Hosting",
  "classifications": {"false_positives": [], "classifications": []},
  "scores": {"overall": {"aggressiveness": 5, "threat": 4, "trust": 5, "anomaly": 1, "total": 4}}
}`

func TestReputationHandler(t *testing.T) {
	var calls int32
	cti := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/v2/smoke/185.220.101.4" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(smokeBody))
	}))
	defer cti.Close()

	repo := services.NewThreatRepository(setupTestDB(t))
	quota := crowdsec.NewQuotaCounter(context.Background(), 50, 5, repo)
	h := NewReputationHandler(crowdsec.NewService(crowdsec.NewClient(cti.URL, "key"), repo, quota))
	r := newRouter()
	r.GET("/reputation/quota", h.Quota)
	r.GET("/reputation/:ip", h.Get)

	type lookup struct {
		Result    crowdsec.LookupResult `json:"result"`
		Malicious bool                  `json:"malicious"`
	}

	w := doJSON(t, r, http.MethodGet, "/reputation/185.220.101.4", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got lookup
	decode(t, w, &got)
	assert.Equal(t, crowdsec.StatusFound, got.Result.Status)
	assert.True(t, got.Malicious)
	assert.Equal(t, "Example Hosting", got.Result.Reputation.ASName)

	w = doJSON(t, r, http.MethodGet, "/reputation/185.220.101.4", nil)
	decode(t, w, &got)
	assert.True(t, got.Result.FromCache)

	w = doJSON(t, r, http.MethodGet, "/reputation/198.51.100.1", nil)
	got = lookup{}
	decode(t, w, &got)
	assert.Equal(t, crowdsec.StatusNotFound, got.Result.Status)
	assert.False(t, got.Malicious)

	w = doJSON(t, r, http.MethodGet, "/reputation/10.0.0.1", nil)
	decode(t, w, &got)
	assert.Equal(t, crowdsec.StatusSkipped, got.Result.Status)

	w = doJSON(t, r, http.MethodGet, "/reputation/nope", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	w = doJSON(t, r, http.MethodGet, "/reputation/quota", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status crowdsec.QuotaStatus
	decode(t, w, &status)
	assert.Equal(t, 2, status.Used)
	assert.Equal(t, 50, status.Limit)
}
