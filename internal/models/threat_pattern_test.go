package models_test

import (
	"testing"
	"time"

	"github.com/Wikid82/gatewatch/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestThreatPattern_SourceIPs(t *testing.T) {
	p := models.ThreatPattern{}
	assert.Empty(t, p.SourceIPList())

	p.SetSourceIPs([]string{"1.1.1.1", "2.2.2.2"})
	assert.Equal(t, `["1.1.1.1","2.2.2.2"]`, p.SourceIPs)

	p.MergeSourceIPs([]string{"2.2.2.2", "0.0.0.1"}, 2)
	assert.Equal(t, []string{"0.0.0.1", "1.1.1.1"}, p.SourceIPList())

	p.SourceIPs = "{not json"
	assert.Nil(t, p.SourceIPList())
}

func TestThreatPattern_NeedsAlert(t *testing.T) {
	now := time.Now()
	p := models.ThreatPattern{LastSeen: now}
	assert.True(t, p.NeedsAlert())

	alerted := now
	p.LastAlertedAt = &alerted
	assert.False(t, p.NeedsAlert())

	p.LastSeen = now.Add(time.Minute)
	assert.True(t, p.NeedsAlert())
}

func TestClampSeverity(t *testing.T) {
	assert.Equal(t, 1, models.ClampSeverity(0))
	assert.Equal(t, 1, models.ClampSeverity(-3))
	assert.Equal(t, 3, models.ClampSeverity(3))
	assert.Equal(t, 5, models.ClampSeverity(9))
}
