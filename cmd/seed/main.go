package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Wikid82/gatewatch/internal/analysis"
	"github.com/Wikid82/gatewatch/internal/config"
	"github.com/Wikid82/gatewatch/internal/database"
	"github.com/Wikid82/gatewatch/internal/logger"
	"github.com/Wikid82/gatewatch/internal/models"
	"github.com/Wikid82/gatewatch/internal/services"
)

// seed writes a demo dataset: a brute force, a scan sweep, an exploit
// campaign, some background noise and a few traffic flows, then runs one
// analysis cycle so patterns are populated.
func main() {
	logger.Init(false, os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		logger.Log().WithError(err).Fatal("load config")
	}
	db, err := database.Connect(cfg.DatabasePath)
	if err != nil {
		logger.Log().WithError(err).Fatal("connect database")
	}

	ctx := context.Background()
	repo := services.NewThreatRepository(db)
	ingest := services.NewIngestService(repo, nil, nil)
	rng := rand.New(rand.NewSource(42))
	now := time.Now().UTC()

	events := demoEvents(rng, now)
	res, err := ingest.IngestEvents(ctx, events)
	if err != nil {
		logger.Log().WithError(err).Fatal("ingest events")
	}
	logger.Log().WithFields(logrus.Fields{"stored": res.Stored, "duplicates": res.Duplicates}).Info("seeded IPS events")

	flowRes, err := ingest.IngestFlows(ctx, demoFlows(now))
	if err != nil {
		logger.Log().WithError(err).Fatal("ingest flows")
	}
	logger.Log().WithFields(logrus.Fields{"stored": flowRes.Stored, "dropped": flowRes.Dropped}).Info("seeded traffic flows")

	forwards := services.NewPortForwardService(db)
	for _, pf := range []models.PortForward{
		{Name: "SSH", ExternalPort: "22", InternalIP: "192.168.1.10", InternalPort: 22, Enabled: true},
		{Name: "Web", ExternalPort: "443", InternalIP: "192.168.1.20", InternalPort: 443, Enabled: true},
		{Name: "Game server", ExternalPort: "27015-27017", InternalIP: "192.168.1.30", InternalPort: 27015, Protocol: "udp", Enabled: true},
	} {
		pf := pf
		if err := forwards.Create(ctx, &pf); err != nil {
			logger.Log().WithError(err).WithField("name", pf.Name).Warn("skip port forward")
		}
	}

	noise := services.NewNoiseFilterService(db)
	monitor := "198.51.100.50"
	if err := noise.Create(ctx, &models.ThreatNoiseFilter{
		Name:        "Uptime monitor",
		Description: "External health checks",
		SourceIP:    &monitor,
		Enabled:     true,
	}); err != nil {
		logger.Log().WithError(err).Warn("skip noise filter")
	}

	cycle, err := services.NewAnalysisService(repo, analysis.NewOrchestrator(), nil, 3*time.Hour).RunCycle(ctx)
	if err != nil {
		logger.Log().WithError(err).Fatal("analysis cycle")
	}
	logger.Log().WithFields(logrus.Fields{"detected": cycle.Detected, "created": cycle.Created}).Info("analysis complete")
}

func demoEvents(rng *rand.Rand, now time.Time) []models.ThreatEvent {
	var events []models.ThreatEvent
	add := func(ts time.Time, src string, port, severity int, sigID, sig string) {
		events = append(events, models.ThreatEvent{
			SourceID:      fmt.Sprintf("seed-%d", len(events)+1),
			Timestamp:     ts,
			SourceIP:      src,
			SourcePort:    30000 + rng.Intn(30000),
			DestIP:        "192.168.1.10",
			DestPort:      port,
			Protocol:      "tcp",
			SignatureID:   sigID,
			SignatureName: sig,
			EventSource:   models.EventSourceIPS,
			Severity:      severity,
			Action:        models.ActionBlocked,
		})
	}

	// Brute force: one source hammering SSH.
	bf := now.Add(-90 * time.Minute)
	for i := 0; i < 30; i++ {
		add(bf.Add(time.Duration(i)*15*time.Second), "185.220.101.4", 22, 3, "2001219", "ET SCAN Potential SSH Scan")
	}

	// Scan sweep: one source probing many ports.
	ss := now.Add(-70 * time.Minute)
	for i, port := range []int{21, 22, 23, 25, 80, 110, 143, 443, 445, 3306, 3389, 5432, 5900, 8080, 8443} {
		add(ss.Add(time.Duration(i)*10*time.Second), "45.155.205.233", port, 2, "2100615", "GPL SCAN port sweep")
	}

	// Exploit campaign: many sources firing the same signature.
	ec := now.Add(-50 * time.Minute)
	for i := 0; i < 14; i++ {
		src := fmt.Sprintf("203.0.113.%d", 10+i)
		add(ec.Add(time.Duration(i)*time.Minute), src, 443, 4, "2031502", "ET EXPLOIT Apache Log4j RCE Attempt")
	}

	// Background noise over the last day.
	for i := 0; i < 40; i++ {
		ts := now.Add(-time.Duration(rng.Intn(24*60)) * time.Minute)
		src := fmt.Sprintf("198.51.100.%d", 1+rng.Intn(60))
		add(ts, src, 80+rng.Intn(2)*363, 1+rng.Intn(3), "2013028", "ET POLICY curl User-Agent Outbound")
	}
	return events
}

func demoFlows(now time.Time) []models.FlowRecord {
	return []models.FlowRecord{
		{SourceID: "flow-1", Timestamp: now.Add(-30 * time.Minute), SourceIP: "92.118.39.12", DestIP: "192.168.1.10", DestPort: 3389, Protocol: "tcp", Action: "blocked", Direction: models.DirectionIncoming},
		{SourceID: "flow-2", Timestamp: now.Add(-25 * time.Minute), SourceIP: "192.168.1.44", DestIP: "45.9.148.108", DestPort: 4444, Protocol: "tcp", Action: "allowed", RiskLevel: models.RiskHigh, Direction: models.DirectionOutgoing},
		{SourceID: "flow-3", Timestamp: now.Add(-20 * time.Minute), SourceIP: "192.168.1.44", DestIP: "93.184.216.34", DestPort: 443, Protocol: "tcp", Action: "allowed", RiskLevel: models.RiskLow, Direction: models.DirectionOutgoing},
	}
}
