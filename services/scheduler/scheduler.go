package schedulersvc

import (
	"context"
	"fmt"
	"sync"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/timetable"
)

// Generator commits the active timetable templates.
type Generator interface {
	GenerateActive(ctx context.Context) ([]timetable.Generation, error)
}

// Service runs the timetable auto generation on a cron schedule. Runs never overlap.
type Service struct {
	conf   *core.Config
	gen    Generator
	logger core.Logger
	parser cron.Parser

	mu     sync.Mutex
	c      *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

func NewService(conf *core.Config, gen Generator, logger core.Logger) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(conf, "conf"),
		vala.IsNotNil(gen, "gen"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &Service{
		conf:   conf,
		gen:    gen,
		logger: logger,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Enabled reports whether a schedule is configured.
func (s *Service) Enabled() bool {
	return s.conf.Scheduler.Spec != ""
}

// Start schedules the job. It does nothing when no schedule is configured.
func (s *Service) Start(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}

	loc, err := s.conf.Scheduler.Location()
	if err != nil {
		return err
	}
	cl := cronLogger{s.logger}
	c := cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	s.ctx, s.cancel = context.WithCancel(ctx)
	if _, err = c.AddFunc(s.conf.Scheduler.Spec, func() { s.RunOnce(s.ctx) }); err != nil {
		s.cancel()
		return errors.Wrapf(err, "scheduling %q", s.conf.Scheduler.Spec)
	}
	c.Start()
	s.c = c
	s.logger.Info(fmt.Sprintf("timetable auto generation scheduled: %q (%s)", s.conf.Scheduler.Spec, loc))
	return nil
}

// Stop cancels a running job and waits for it to return, or for ctx to be done.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return
	}
	s.cancel()
	select {
	case <-s.c.Stop().Done():
	case <-ctx.Done():
	}
	s.c = nil
	s.logger.Info("timetable auto generation stopped")
}

// RunOnce commits the active templates and logs a summary.
func (s *Service) RunOnce(ctx context.Context) {
	gens, err := s.gen.GenerateActive(ctx)
	if err != nil {
		s.logger.Error(fmt.Sprintf("auto generation: %v", err), err)
	}
	created, conflicting := 0, 0
	for _, g := range gens {
		created += g.Created
		conflicting += g.Conflicting
	}
	s.logger.Info(fmt.Sprintf("auto generation: %d templates, %d sessions created, %d conflicting dates skipped",
		len(gens), created, conflicting))
}

// cronLogger adapts core.Logger to cron.Logger.
type cronLogger struct {
	logger core.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, kvMap(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(fmt.Sprintf("cron: %s: %v", msg, err), err, kvMap(keysAndValues))
}

func kvMap(keysAndValues []interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		m[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return m
}
