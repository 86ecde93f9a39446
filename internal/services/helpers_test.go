package services

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Wikid82/gatewatch/internal/database"
	"github.com/Wikid82/gatewatch/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Connect(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }

var seq int

// ipsEvent builds a stored-shape IPS event with a unique source id.
func ipsEvent(ts time.Time, src, dst string, port, severity int, signature string) models.ThreatEvent {
	seq++
	return models.ThreatEvent{
		SourceID:      fmt.Sprintf("evt-%d", seq),
		Timestamp:     ts,
		SourceIP:      src,
		SourcePort:    40000 + seq%20000,
		DestIP:        dst,
		DestPort:      port,
		Protocol:      "tcp",
		SignatureName: signature,
		EventSource:   models.EventSourceIPS,
		Severity:      severity,
		Action:        models.ActionBlocked,
	}
}
