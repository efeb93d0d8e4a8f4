// Package janitor runs periodic housekeeping: expiring stale call sessions
// and pruning rate-limit state.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	robfigcron "github.com/robfig/cron/v3"
)

// Task is one housekeeping job.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Janitor fires every task on a single cron schedule.
type Janitor struct {
	robfig   *robfigcron.Cron
	schedule robfigcron.Schedule
	expr     string
	tasks    []Task
}

// New parses expr (standard five-field cron or a descriptor such as "@every 1m").
func New(expr string, tasks ...Task) (*Janitor, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errors.New("janitor schedule must not be empty")
	}
	schedule, err := robfigcron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parse janitor schedule %q: %w", expr, err)
	}

	logger := robfigcron.DefaultLogger
	return &Janitor{
		robfig: robfigcron.New(robfigcron.WithChain(
			robfigcron.Recover(logger),
			robfigcron.SkipIfStillRunning(logger),
		)),
		schedule: schedule,
		expr:     expr,
		tasks:    tasks,
	}, nil
}

// Start blocks until ctx is done, then waits for a running pass to finish.
func (j *Janitor) Start(ctx context.Context) error {
	j.robfig.Schedule(j.schedule, robfigcron.FuncJob(func() { j.RunOnce(ctx) }))
	j.robfig.Start()
	slog.Info("janitor started", "schedule", j.expr, "tasks", len(j.tasks))

	<-ctx.Done()

	<-j.robfig.Stop().Done()
	slog.Info("janitor stopped")
	return ctx.Err()
}

// RunOnce runs every task in order. A failing task does not stop the others.
func (j *Janitor) RunOnce(ctx context.Context) {
	for _, task := range j.tasks {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		if err := task.Run(ctx); err != nil {
			slog.Warn("janitor task failed", "task", task.Name, "error", err)
			continue
		}
		slog.Debug("janitor task done", "task", task.Name, "elapsed", time.Since(start))
	}
}
