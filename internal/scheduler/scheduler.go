// Package scheduler runs the three background loops: the due/overdue sweep,
// the daily recurrence sweep, and the weekly automation-log prune. Each loop
// is an independent cron entry; a failure inside one task's processing is
// logged and the sweep moves on.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"taskboard/internal/config"
	"taskboard/internal/domain"
	"taskboard/internal/engine"
	"taskboard/internal/recurrence"
)

type Scheduler struct {
	Engine engine.Engine
	Config *config.Config
	Logger zerolog.Logger

	// Now is overridable for tests.
	Now func() time.Time

	cron *cron.Cron
}

func New(eng engine.Engine, cfg *config.Config, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		Engine: eng,
		Config: cfg,
		Logger: logger.With().Str("component", "scheduler").Logger(),
		Now:    time.Now,
	}
}

// Start registers the three loops and begins ticking. Specs come from
// configuration; the defaults are every minute, daily at midnight, and
// weekly on Sunday midnight.
func (s *Scheduler) Start() error {
	s.cron = cron.New()
	jobs := []struct {
		spec string
		name string
		run  func(context.Context)
	}{
		{s.Config.Scheduler.DueSweepSpec, "due sweep", s.SweepDue},
		{s.Config.Scheduler.RecurrenceSpec, "recurrence sweep", s.SweepRecurring},
		{s.Config.Scheduler.LogPruneSpec, "log prune", s.PruneLogs},
	}
	for _, job := range jobs {
		job := job
		if _, err := s.cron.AddFunc(job.spec, func() {
			defer func() {
				if r := recover(); r != nil {
					s.Logger.Error().Any("panic", r).Str("job", job.name).Msg("scheduler job panicked")
				}
			}()
			job.run(context.Background())
		}); err != nil {
			return fmt.Errorf("schedule %s: %w", job.name, err)
		}
	}
	s.cron.Start()
	s.Logger.Info().Msg("scheduler started")
	return nil
}

// Stop halts the timers and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.Logger.Info().Msg("scheduler stopped")
}

// SweepDue classifies every task whose due date falls at or before one hour
// from now. Exactly one classification applies per task: overdue when more
// than an hour past due, due at or after the due instant, otherwise due soon.
func (s *Scheduler) SweepDue(ctx context.Context) {
	now := s.Now().UTC()
	cutoff := now.Add(time.Hour).Format(time.RFC3339)
	tasks, err := s.Engine.Repo.TasksDueBefore(ctx, cutoff)
	if err != nil {
		s.Logger.Error().Err(err).Msg("load due tasks")
		return
	}
	for _, task := range tasks {
		if err := s.classifyDue(ctx, task, now); err != nil {
			s.Logger.Error().Err(err).Int64("task_id", task.ID).Msg("due sweep task failed")
		}
	}
}

func (s *Scheduler) classifyDue(ctx context.Context, task domain.Task, now time.Time) error {
	if task.DueDate == nil {
		return nil
	}
	due, err := parseDue(*task.DueDate)
	if err != nil {
		return fmt.Errorf("parse due date: %w", err)
	}

	var kind string
	switch {
	case now.Sub(due) > time.Hour:
		kind = "overdue"
	case !now.Before(due):
		kind = "due"
	case due.Sub(now) <= time.Hour:
		kind = "due_soon"
	default:
		return nil
	}

	data := map[string]any{
		"taskId":   task.ID,
		"columnId": task.ColumnID,
		"priority": task.Priority,
		"dueDate":  *task.DueDate,
	}
	s.Engine.Events.Publish("task", kind, data)
	s.Engine.Automation.Trigger(ctx, "task_"+kind, data)
	s.notify(ctx, "task_"+kind, task, data)
	return nil
}

// notify broadcasts a due-state notification to the enabled webhooks,
// best-effort.
func (s *Scheduler) notify(ctx context.Context, eventType string, task domain.Task, data map[string]any) {
	cfg, err := json.Marshal(map[string]string{
		"title":   fmt.Sprintf("Task %s: %s", label(eventType), task.Title),
		"message": fmt.Sprintf("Task %d is %s", task.ID, label(eventType)),
	})
	if err != nil {
		return
	}
	result := s.Engine.Automation.Exec.Execute(ctx, "notification", string(cfg), eventType, data)
	if !result.Success {
		s.Logger.Warn().Str("event_type", eventType).Str("error", result.Err).Msg("due notification failed")
	}
}

func label(eventType string) string {
	switch eventType {
	case "task_overdue":
		return "overdue"
	case "task_due_soon":
		return "due soon"
	default:
		return "due"
	}
}

// SweepRecurring creates the next instance of every recurring series whose
// next occurrence lands today. Instances copy the rule text verbatim, so the
// max-occurrence count matches on exact rule strings.
func (s *Scheduler) SweepRecurring(ctx context.Context) {
	today := s.Now().UTC()
	tasks, err := s.Engine.Repo.TasksWithRecurringRule(ctx)
	if err != nil {
		s.Logger.Error().Err(err).Msg("load recurring tasks")
		return
	}
	for _, task := range tasks {
		if err := s.generateInstance(ctx, task, today); err != nil {
			s.Logger.Error().Err(err).Int64("task_id", task.ID).Msg("recurrence sweep task failed")
		}
	}
}

func (s *Scheduler) generateInstance(ctx context.Context, task domain.Task, today time.Time) error {
	if task.RecurringRule == nil || task.DueDate == nil {
		return nil
	}
	rule, err := recurrence.ParseRule(*task.RecurringRule)
	if err != nil {
		return err
	}
	due, err := parseDue(*task.DueDate)
	if err != nil {
		return fmt.Errorf("parse due date: %w", err)
	}
	ok, err := recurrence.ShouldGenerateOn(due, rule, today)
	if err != nil || !ok {
		return err
	}
	if rule.MaxOccurrences > 0 {
		count, err := s.Engine.Repo.CountTasksByRecurringRule(ctx, *task.RecurringRule)
		if err != nil {
			return err
		}
		if count >= rule.MaxOccurrences {
			s.Logger.Debug().Int64("task_id", task.ID).Msg("recurrence series reached max occurrences")
			return nil
		}
	}
	next, err := recurrence.Next(due, rule)
	if err != nil {
		return err
	}
	instance, err := s.Engine.CreateRecurringInstance(ctx, task, next)
	if err != nil {
		return err
	}
	s.Logger.Info().Int64("task_id", task.ID).Int64("instance_id", instance.ID).Msg("recurring instance created")
	return nil
}

// PruneLogs deletes automation log rows older than the retention window.
func (s *Scheduler) PruneLogs(ctx context.Context) {
	cutoff := s.Now().UTC().Add(-s.Config.LogRetention()).Format(time.RFC3339)
	n, err := s.Engine.Repo.DeleteAutomationLogsBefore(ctx, cutoff)
	if err != nil {
		s.Logger.Error().Err(err).Msg("prune automation logs")
		return
	}
	if n > 0 {
		s.Logger.Info().Int64("deleted", n).Msg("automation logs pruned")
	}
}

func parseDue(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
