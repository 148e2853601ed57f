package schedule

import (
	"context"
	"fmt"
	"time"

	"pricestate/internal/price"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// CronReset emits a reset every time Spec fires, e.g. "0 0 * * *" for a
// session boundary at midnight in Location.
type CronReset struct {
	Spec     string
	Location *time.Location
	Logger   *zap.Logger
}

func NewCronReset(spec, timezone string, logger *zap.Logger) (*CronReset, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("parse reset schedule %q: %w", spec, err)
	}
	return &CronReset{Spec: spec, Location: loc, Logger: logger}, nil
}

// Subscribe starts a scheduler that lives until ctx ends.
func (c *CronReset) Subscribe(ctx context.Context) (<-chan price.Reset, <-chan error) {
	out := make(chan price.Reset)
	errs := make(chan error, 1)

	sched, err := cron.ParseStandard(c.Spec)
	if err != nil {
		errs <- fmt.Errorf("parse reset schedule %q: %w", c.Spec, err)
		return out, errs
	}

	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	runner := cron.New(cron.WithLocation(loc))
	runner.Schedule(sched, cron.FuncJob(func() {
		c.Logger.Info("scheduled price reset", zap.String("spec", c.Spec))
		select {
		case out <- price.Reset{}:
		case <-ctx.Done():
		}
	}))
	runner.Start()

	go func() {
		<-ctx.Done()
		<-runner.Stop().Done()
	}()

	return out, errs
}
