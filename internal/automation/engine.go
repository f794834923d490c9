// Package automation evaluates stored rules against domain events and runs
// their actions. Everything in here is best-effort: failures become log rows,
// never errors surfaced to the code path that published the event.
package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"taskboard/internal/domain"
	"taskboard/internal/repo"
)

// predicateKeys maps trigger-config predicate names to the event-data field
// each one is checked against.
var predicateKeys = map[string]string{
	"columnId":     "columnId",
	"priority":     "priority",
	"assignedTo":   "assignedTo",
	"fromColumnId": "oldColumnId",
	"toColumnId":   "newColumnId",
}

type Engine struct {
	Repo   repo.Repo
	Exec   Executor
	Logger zerolog.Logger

	// Now is overridable for tests.
	Now func() time.Time
}

func NewEngine(r repo.Repo, exec Executor, logger zerolog.Logger) *Engine {
	return &Engine{
		Repo:   r,
		Exec:   exec,
		Logger: logger.With().Str("component", "automation").Logger(),
		Now:    time.Now,
	}
}

// Trigger evaluates every enabled rule for eventType against eventData.
// Rules run independently in storage order: one rule's bad config or failed
// action never touches its siblings, and nothing propagates to the caller.
func (e *Engine) Trigger(ctx context.Context, eventType string, eventData map[string]any) {
	rules, err := e.Repo.EnabledRulesByTrigger(ctx, eventType)
	if err != nil {
		e.Logger.Error().Err(err).Str("event_type", eventType).Msg("load automation rules")
		return
	}
	for _, rule := range rules {
		e.evaluate(ctx, rule, eventType, eventData)
	}
}

func (e *Engine) evaluate(ctx context.Context, rule domain.AutomationRule, eventType string, eventData map[string]any) {
	var predicates map[string]any
	if err := json.Unmarshal([]byte(rule.TriggerConfig), &predicates); err != nil {
		e.record(ctx, rule, "failed", fmt.Sprintf("invalid trigger config: %v", err))
		return
	}
	if !matches(predicates, eventData) {
		return
	}
	e.RunRule(ctx, rule, eventType, eventData)
}

// RunRule executes one rule's action unconditionally and records the outcome.
// The manual trigger endpoint uses it to bypass predicate matching.
func (e *Engine) RunRule(ctx context.Context, rule domain.AutomationRule, eventType string, eventData map[string]any) (status, message string) {
	result := e.Exec.Execute(ctx, rule.ActionType, rule.ActionConfig, eventType, eventData)
	if result.Success {
		status = "success"
		message = result.Message
	} else {
		status = "failed"
		message = result.Err
	}
	if message == "" {
		message = "Triggered by " + eventType
	}
	e.record(ctx, rule, status, message)
	return status, message
}

// record appends one automation log row. A logging failure is itself
// swallowed so it cannot break sibling rules.
func (e *Engine) record(ctx context.Context, rule domain.AutomationRule, status, message string) {
	now := e.Now().UTC().Format(time.RFC3339)
	if err := e.Repo.InsertAutomationLog(ctx, rule.ID, status, message, now); err != nil {
		e.Logger.Error().Err(err).Int64("rule_id", rule.ID).Msg("write automation log")
	}
	e.Logger.Info().
		Int64("rule_id", rule.ID).
		Str("rule", rule.Name).
		Str("status", status).
		Str("message", message).
		Msg("automation rule executed")
}

// matches rejects only on a positive mismatch: a predicate is checked when
// the event actually carries the corresponding field, absence on either side
// means don't-care.
func matches(predicates, eventData map[string]any) bool {
	for cfgKey, evtKey := range predicateKeys {
		want, ok := predicates[cfgKey]
		if !ok {
			continue
		}
		got, ok := eventData[evtKey]
		if !ok {
			continue
		}
		if !valuesEqual(want, got) {
			return false
		}
	}
	return true
}

// valuesEqual compares predicate and event values across JSON and in-process
// numeric representations (float64 vs int64).
func valuesEqual(a, b any) bool {
	af, aok := asFloat64(a)
	bf, bok := asFloat64(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
