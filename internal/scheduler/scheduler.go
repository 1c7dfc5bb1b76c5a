package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/restopos/internal/domain/models"
)

const (
	sweepTimeout  = 30 * time.Second
	exportTimeout = 2 * time.Minute
)

// Sweeper fails print jobs left pending past their timeout.
type Sweeper interface {
	Channel() models.Channel
	SweepStale(ctx context.Context) (int64, error)
}

// Exporter writes the sales of a day to the report sheet.
type Exporter interface {
	ExportDailySales(ctx context.Context, ts time.Time) (models.DailySales, error)
}

// Config selects the schedules. An empty schedule disables its task.
type Config struct {
	SweepSchedule  string
	ReportSchedule string
	Location       *time.Location
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron     *cron.Cron
	cfg      Config
	sweepers []Sweeper
	exporter Exporter
	logger   *zap.Logger
}

// NewScheduler creates a new scheduler instance. A nil exporter disables the
// sales export.
func NewScheduler(cfg Config, sweepers []Sweeper, exporter Exporter, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	return &Scheduler{
		cron:     cron.New(cron.WithLocation(cfg.Location)),
		cfg:      cfg,
		sweepers: sweepers,
		exporter: exporter,
		logger:   logger,
	}
}

// Register adds the configured tasks to the cron table.
func (s *Scheduler) Register() error {
	if s.cfg.SweepSchedule != "" && len(s.sweepers) > 0 {
		if _, err := s.cron.AddFunc(s.cfg.SweepSchedule, s.sweepStaleJobs); err != nil {
			return fmt.Errorf("schedule stale job sweep: %w", err)
		}
	}

	if s.cfg.ReportSchedule != "" && s.exporter != nil {
		if _, err := s.cron.AddFunc(s.cfg.ReportSchedule, s.exportDailySales); err != nil {
			return fmt.Errorf("schedule daily sales export: %w", err)
		}
	}
	return nil
}

// Entries returns the number of registered tasks.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// Start registers the tasks and starts the scheduler.
func (s *Scheduler) Start() error {
	if err := s.Register(); err != nil {
		return err
	}
	s.logger.Info("starting scheduler", zap.Int("entries", s.Entries()))
	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for running tasks.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) sweepStaleJobs() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	s.SweepNow(ctx)
}

// SweepNow runs the stale job sweep once on every channel.
func (s *Scheduler) SweepNow(ctx context.Context) int64 {
	var total int64
	for _, sw := range s.sweepers {
		n, err := sw.SweepStale(ctx)
		if err != nil {
			s.logger.Error("stale job sweep failed", zap.String("channel", string(sw.Channel())), zap.Error(err))
			continue
		}
		total += n
	}
	return total
}

func (s *Scheduler) exportDailySales() {
	s.logger.Info("exporting daily sales")
	ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
	defer cancel()

	if _, err := s.exporter.ExportDailySales(ctx, time.Now().In(s.cfg.Location)); err != nil {
		s.logger.Error("failed to export daily sales", zap.Error(err))
		return
	}
	s.logger.Info("daily sales exported successfully")
}
