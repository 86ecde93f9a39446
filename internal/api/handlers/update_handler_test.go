package handlers

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Wikid82/gatewatch/internal/services"
)

func TestUpdateHandler_Check(t *testing.T) {
	var hits int32
	gh := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(`{"tag_name":"v9.9.9","html_url":"https://github.com/Wikid82/gatewatch/releases/tag/v9.9.9"}`))
	}))
	defer gh.Close()

	svc := services.NewUpdateService()
	svc.SetAPIURL(gh.URL)
	h := NewUpdateHandler(svc)
	r := newRouter()
	r.GET("/system/updates", h.Check)

	w := doJSON(t, r, http.MethodGet, "/system/updates", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var info services.UpdateInfo
	decode(t, w, &info)
	assert.True(t, info.Available)
	assert.Equal(t, "v9.9.9", info.LatestVersion)

	w = doJSON(t, r, http.MethodGet, "/system/updates", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	w = doJSON(t, r, http.MethodGet, "/system/updates?refresh=true", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))

	w = doJSON(t, r, http.MethodGet, "/system/updates?refresh=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	gh.Close()
	w = doJSON(t, r, http.MethodGet, "/system/updates?refresh=1", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}
