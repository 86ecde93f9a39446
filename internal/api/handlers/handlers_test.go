package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Wikid82/gatewatch/internal/database"
	"github.com/Wikid82/gatewatch/internal/models"
	"github.com/Wikid82/gatewatch/internal/services"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Connect(filepath.Join(t.TempDir(), "handlers.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func doJSON(t *testing.T, r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

var eventSeq int

func ipsEvent(ts time.Time, src, dst string, port, severity int, signature string) models.ThreatEvent {
	eventSeq++
	return models.ThreatEvent{
		SourceID:      fmt.Sprintf("h-%d", eventSeq),
		Timestamp:     ts,
		SourceIP:      src,
		SourcePort:    40000 + eventSeq,
		DestIP:        dst,
		DestPort:      port,
		Protocol:      "tcp",
		SignatureName: signature,
		EventSource:   models.EventSourceIPS,
		Severity:      severity,
		Action:        models.ActionBlocked,
	}
}

// seed ingests events through the real pipeline so stages are assigned.
func seed(t *testing.T, repo *services.ThreatRepository, events ...models.ThreatEvent) {
	t.Helper()
	_, err := services.NewIngestService(repo, nil, nil).IngestEvents(context.Background(), events)
	require.NoError(t, err)
}

func uintStr(id uint) string {
	return fmt.Sprintf("%d", id)
}
