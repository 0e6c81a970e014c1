package sweeper

import (
	"context"
	"time"

	"ecofusion-backend/internal/pkg/metrics"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const defaultInterval = time.Minute

// Job does one pass of background work and reports how many rows it changed.
type Job func(ctx context.Context) (int, error)

type Config struct {
	Name     string
	Interval time.Duration
	Job      Job
	Logger   zerolog.Logger
}

// Sweeper runs one Job on a ticker until its context ends.
type Sweeper struct {
	name     string
	interval time.Duration
	job      Job
	logger   zerolog.Logger
}

func New(cfg Config) *Sweeper {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Sweeper{
		name:     cfg.Name,
		interval: interval,
		job:      cfg.Job,
		logger:   cfg.Logger.With().Str("component", cfg.Name).Logger(),
	}
}

func (s *Sweeper) Name() string { return s.name }

// Start begins the background loop.
func (s *Sweeper) Start(ctx context.Context) {
	go s.run(ctx)
}

func (s *Sweeper) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn().Err(err).Msg("sweep failed")
			}
		}
	}
}

// RunOnce runs the job immediately. A panic in the job is reported as an error.
func (s *Sweeper) RunOnce(ctx context.Context) (swept int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("%s panicked: %v", s.name, r)
		}
	}()

	started := time.Now()
	swept, err = s.job(ctx)
	if err != nil {
		return swept, errors.Wrapf(err, "%s", s.name)
	}
	if swept > 0 {
		metrics.Swept.WithLabelValues(s.name).Add(float64(swept))
		s.logger.Info().
			Int("swept", swept).
			Dur("took", time.Since(started)).
			Msg("sweep complete")
	}
	return swept, nil
}
