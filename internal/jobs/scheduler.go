package jobs

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/Wikid82/gatewatch/internal/logger"
)

// cronLogger routes cron's internal logging through logrus.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Log().WithFields(kvFields(keysAndValues)).Debug("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Log().WithFields(kvFields(keysAndValues)).WithError(err).Error("cron: " + msg)
}

func kvFields(kv []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}

// Scheduler runs named background jobs on cron schedules in UTC. A run that
// is still in progress when its next tick fires causes that tick to be
// skipped.
type Scheduler struct {
	Cron *cron.Cron

	ctx     context.Context
	cancel  context.CancelFunc
	entries map[string]cron.EntryID
}

func NewScheduler() *Scheduler {
	l := cronLogger{}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		Cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(l),
			cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
		),
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]cron.EntryID),
	}
}

// Add registers fn under name. An empty spec leaves the job disabled.
func (s *Scheduler) Add(name, spec string, fn func(ctx context.Context) error) error {
	if spec == "" {
		logger.Log().WithField("job", name).Info("job disabled, no schedule configured")
		return nil
	}
	id, err := s.Cron.AddFunc(spec, func() { s.run(name, fn) })
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	s.entries[name] = id
	return nil
}

func (s *Scheduler) run(name string, fn func(ctx context.Context) error) {
	start := time.Now()
	err := fn(s.ctx)
	entry := logger.Log().WithFields(logrus.Fields{
		"job":      name,
		"duration": time.Since(start).String(),
	})
	if err != nil {
		entry.WithError(err).Warn("job failed")
		return
	}
	entry.Debug("job finished")
}

// RunNow executes a registered job immediately in the caller's goroutine.
func (s *Scheduler) RunNow(name string) bool {
	id, ok := s.entries[name]
	if !ok {
		return false
	}
	s.Cron.Entry(id).WrappedJob.Run()
	return true
}

// Trigger starts a registered job in the background.
func (s *Scheduler) Trigger(name string) bool {
	id, ok := s.entries[name]
	if !ok {
		return false
	}
	go s.Cron.Entry(id).WrappedJob.Run()
	return true
}

// Jobs returns the registered job names in order.
func (s *Scheduler) Jobs() []string {
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Scheduler) Start() {
	s.Cron.Start()
}

// Stop cancels running jobs' context and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.Cron.Stop().Done()
}
