package automation_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskboard/internal/automation"
	"taskboard/internal/db"
	"taskboard/internal/domain"
	"taskboard/internal/eventlog"
	"taskboard/internal/migrate"
	"taskboard/internal/repo"
)

type testEnv struct {
	Repo   repo.Repo
	Events *eventlog.Log
	Engine *automation.Engine
	Ctx    context.Context
}

var testNow = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.Repo{DB: conn}
	events := eventlog.New(eventlog.DefaultCapacity, zerolog.Nop())
	exec := automation.Executor{
		Repo:     r,
		Events:   events,
		Webhooks: automation.NewWebhookClient(time.Second, zerolog.Nop()),
		Now:      func() time.Time { return testNow },
	}
	eng := automation.NewEngine(r, exec, zerolog.Nop())
	eng.Now = func() time.Time { return testNow }

	ctx := context.Background()
	seedBoard(t, r, ctx)
	return testEnv{Repo: r, Events: events, Engine: eng, Ctx: ctx}
}

// seedBoard creates one board with columns 1,2 and task 1 in column 1.
func seedBoard(t *testing.T, r repo.Repo, ctx context.Context) {
	t.Helper()
	now := testNow.Format(time.RFC3339)
	if _, err := r.DB.ExecContext(ctx,
		`INSERT INTO boards (id, name, created_at, updated_at) VALUES (1, 'Main', ?, ?)`, now, now); err != nil {
		t.Fatalf("seed board: %v", err)
	}
	if _, err := r.DB.ExecContext(ctx,
		`INSERT INTO columns (id, board_id, name, position) VALUES (1, 1, 'To Do', 0), (2, 1, 'Done', 1)`); err != nil {
		t.Fatalf("seed columns: %v", err)
	}
	if _, err := r.InsertTask(ctx, domain.Task{
		ID: 0, Title: "seeded", ColumnID: 1, Priority: "medium",
		CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("seed task: %v", err)
	}
}

func seedRule(t *testing.T, env testEnv, rule domain.AutomationRule) int64 {
	t.Helper()
	if rule.TriggerConfig == "" {
		rule.TriggerConfig = "{}"
	}
	if rule.ActionConfig == "" {
		rule.ActionConfig = "{}"
	}
	now := testNow.Format(time.RFC3339)
	rule.CreatedAt = now
	rule.UpdatedAt = now
	id, err := env.Repo.InsertRule(env.Ctx, rule)
	if err != nil {
		t.Fatalf("seed rule: %v", err)
	}
	return id
}

func logsFor(t *testing.T, env testEnv, ruleID int64) []domain.AutomationLogEntry {
	t.Helper()
	logs, err := env.Repo.ListAutomationLogs(env.Ctx, ruleID, 0)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	return logs
}

func TestTriggerRuleIsolation(t *testing.T) {
	env := newTestEnv(t)
	// Rule A points at a webhook integration that does not exist, rule B
	// performs a valid move. A's failure must not block B.
	ruleA := seedRule(t, env, domain.AutomationRule{
		Name: "broken webhook", TriggerType: "task_created",
		ActionType: "webhook", ActionConfig: `{"webhookId":99}`, Enabled: true,
	})
	ruleB := seedRule(t, env, domain.AutomationRule{
		Name: "move it", TriggerType: "task_created",
		ActionType: "move_task", ActionConfig: `{"columnId":2}`, Enabled: true,
	})

	env.Engine.Trigger(env.Ctx, "task_created", map[string]any{"taskId": int64(1), "columnId": int64(1)})

	logsA := logsFor(t, env, ruleA)
	require.Len(t, logsA, 1)
	assert.Equal(t, "failed", logsA[0].Status)

	logsB := logsFor(t, env, ruleB)
	require.Len(t, logsB, 1)
	assert.Equal(t, "success", logsB[0].Status)

	task, err := env.Repo.GetTask(env.Ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), task.ColumnID)
}

func TestTriggerPredicateMatching(t *testing.T) {
	env := newTestEnv(t)
	rule := seedRule(t, env, domain.AutomationRule{
		Name: "column 5 only", TriggerType: "task_created",
		TriggerConfig: `{"columnId":5}`,
		ActionType:    "notification", ActionConfig: `{"title":"hi"}`, Enabled: true,
	})

	env.Engine.Trigger(env.Ctx, "task_created", map[string]any{"columnId": int64(6)})
	assert.Empty(t, logsFor(t, env, rule), "mismatched predicate must not fire")

	env.Engine.Trigger(env.Ctx, "task_created", map[string]any{"columnId": int64(5), "priority": "high"})
	logs := logsFor(t, env, rule)
	require.Len(t, logs, 1)
	assert.Equal(t, "success", logs[0].Status)
}

func TestTriggerNoPredicatesMatchesAnyEvent(t *testing.T) {
	env := newTestEnv(t)
	rule := seedRule(t, env, domain.AutomationRule{
		Name: "catch all", TriggerType: "task_updated",
		ActionType: "notification", Enabled: true,
	})

	env.Engine.Trigger(env.Ctx, "task_updated", map[string]any{"taskId": int64(1)})
	env.Engine.Trigger(env.Ctx, "task_updated", nil)

	assert.Len(t, logsFor(t, env, rule), 2)
}

func TestTriggerMissingEventFieldIsNotAMismatch(t *testing.T) {
	env := newTestEnv(t)
	rule := seedRule(t, env, domain.AutomationRule{
		Name: "to done", TriggerType: "task_moved",
		TriggerConfig: `{"toColumnId":4}`,
		ActionType:    "notification", Enabled: true,
	})

	// Event without newColumnId: the predicate is only checked when the
	// event carries the field.
	env.Engine.Trigger(env.Ctx, "task_moved", map[string]any{"taskId": int64(1)})
	assert.Len(t, logsFor(t, env, rule), 1)
}

func TestTriggerNumericPredicateAcrossRepresentations(t *testing.T) {
	env := newTestEnv(t)
	rule := seedRule(t, env, domain.AutomationRule{
		Name: "col 5", TriggerType: "task_created",
		TriggerConfig: `{"columnId":5}`,
		ActionType:    "notification", Enabled: true,
	})

	// JSON-decoded payloads carry float64s.
	env.Engine.Trigger(env.Ctx, "task_created", map[string]any{"columnId": float64(5)})
	env.Engine.Trigger(env.Ctx, "task_created", map[string]any{"columnId": int64(5)})
	assert.Len(t, logsFor(t, env, rule), 2)
}

func TestTriggerMalformedTriggerConfig(t *testing.T) {
	env := newTestEnv(t)
	bad := seedRule(t, env, domain.AutomationRule{
		Name: "bad config", TriggerType: "task_created",
		TriggerConfig: `{not json`,
		ActionType:    "notification", Enabled: true,
	})
	good := seedRule(t, env, domain.AutomationRule{
		Name: "good", TriggerType: "task_created",
		ActionType: "notification", Enabled: true,
	})

	env.Engine.Trigger(env.Ctx, "task_created", map[string]any{"taskId": int64(1)})

	logsBad := logsFor(t, env, bad)
	require.Len(t, logsBad, 1)
	assert.Equal(t, "failed", logsBad[0].Status)
	assert.Contains(t, logsBad[0].Message, "invalid trigger config")

	logsGood := logsFor(t, env, good)
	require.Len(t, logsGood, 1)
	assert.Equal(t, "success", logsGood[0].Status)
}

func TestTriggerUnknownActionType(t *testing.T) {
	env := newTestEnv(t)
	rule := seedRule(t, env, domain.AutomationRule{
		Name: "mystery", TriggerType: "task_created",
		ActionType: "notification", Enabled: true,
	})
	_, err := env.Repo.DB.ExecContext(env.Ctx,
		`UPDATE automation_rules SET action_type = 'explode' WHERE id = ?`, rule)
	require.NoError(t, err)

	env.Engine.Trigger(env.Ctx, "task_created", nil)

	logs := logsFor(t, env, rule)
	require.Len(t, logs, 1)
	assert.Equal(t, "failed", logs[0].Status)
	assert.Contains(t, logs[0].Message, "unknown action type")
}

func TestTriggerSkipsDisabledRules(t *testing.T) {
	env := newTestEnv(t)
	rule := seedRule(t, env, domain.AutomationRule{
		Name: "off", TriggerType: "task_created",
		ActionType: "notification", Enabled: false,
	})

	env.Engine.Trigger(env.Ctx, "task_created", nil)
	assert.Empty(t, logsFor(t, env, rule))
}

func TestRunRuleBypassesPredicates(t *testing.T) {
	env := newTestEnv(t)
	id := seedRule(t, env, domain.AutomationRule{
		Name: "manual", TriggerType: "task_moved",
		TriggerConfig: `{"toColumnId":4}`,
		ActionType:    "notification", ActionConfig: `{"title":"manual"}`, Enabled: true,
	})
	rule, err := env.Repo.GetRule(env.Ctx, id)
	require.NoError(t, err)

	status, message := env.Engine.RunRule(env.Ctx, rule, "task_moved", map[string]any{"newColumnId": int64(9)})
	assert.Equal(t, "success", status)
	assert.NotEmpty(t, message)
	assert.Len(t, logsFor(t, env, id), 1)
}

func TestTriggerMovedToColumnEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	rule := seedRule(t, env, domain.AutomationRule{
		Name: "Done!", TriggerType: "task_moved",
		TriggerConfig: `{"toColumnId":4}`,
		ActionType:    "notification", ActionConfig: `{"title":"Done!"}`, Enabled: true,
	})

	env.Engine.Trigger(env.Ctx, "task_moved", map[string]any{"oldColumnId": int64(2), "newColumnId": int64(4)})
	env.Engine.Trigger(env.Ctx, "task_moved", map[string]any{"oldColumnId": int64(2), "newColumnId": int64(3)})

	logs := logsFor(t, env, rule)
	require.Len(t, logs, 1)
	assert.Equal(t, "success", logs[0].Status)
	assert.Contains(t, logs[0].Message, "Done!")
}
