package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskboard/internal/automation"
	"taskboard/internal/config"
	"taskboard/internal/db"
	"taskboard/internal/domain"
	"taskboard/internal/engine"
	"taskboard/internal/eventlog"
	"taskboard/internal/migrate"
)

type testEnv struct {
	Engine engine.Engine
	Events *eventlog.Log
	Ctx    context.Context
	Board  domain.Board
	Cols   []domain.Column
}

var testNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

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
	cfg := config.Default()
	events := eventlog.New(cfg.Events.BufferSize, zerolog.Nop())
	eng := engine.New(conn, cfg, events, nil, zerolog.Nop())
	exec := automation.Executor{
		Repo:     eng.Repo,
		Events:   events,
		Webhooks: automation.NewWebhookClient(time.Second, zerolog.Nop()),
		Now:      func() time.Time { return testNow },
	}
	auto := automation.NewEngine(eng.Repo, exec, zerolog.Nop())
	auto.Now = func() time.Time { return testNow }
	eng.Automation = auto
	eng.Now = func() time.Time { return testNow }

	ctx := context.Background()
	board, err := eng.CreateBoard(ctx, engine.BoardCreateOptions{Name: "Main"})
	if err != nil {
		t.Fatalf("create board: %v", err)
	}
	cols, err := eng.Repo.ListColumns(ctx, board.ID)
	if err != nil {
		t.Fatalf("list columns: %v", err)
	}
	return testEnv{Engine: eng, Events: events, Ctx: ctx, Board: board, Cols: cols}
}

func lastEvent(t *testing.T, env testEnv) domain.Event {
	t.Helper()
	events := env.Events.Events(eventlog.Query{})
	require.NotEmpty(t, events)
	return events[len(events)-1]
}

func TestCreateBoardSeedsColumns(t *testing.T) {
	env := newTestEnv(t)
	require.Len(t, env.Cols, 3)
	assert.Equal(t, "To Do", env.Cols[0].Name)
	assert.Equal(t, "In Progress", env.Cols[1].Name)
	assert.Equal(t, "Done", env.Cols[2].Name)
}

func TestCreateTaskPublishesAndRecordsHistory(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title:    "Write release notes",
		ColumnID: env.Cols[0].ID,
		Priority: "high",
	})
	require.NoError(t, err)
	assert.Equal(t, "high", task.Priority)

	evt := lastEvent(t, env)
	assert.Equal(t, "task.created", evt.Type())
	assert.Equal(t, task.ID, evt.Data["taskId"])
	assert.Equal(t, env.Cols[0].ID, evt.Data["columnId"])

	history, err := env.Engine.Repo.ListTaskHistory(env.Ctx, task.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "created", history[0].Action)
}

func TestCreateTaskValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ColumnID: env.Cols[0].ID})
	assert.Error(t, err)

	_, err = env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "x", ColumnID: 999})
	assert.Error(t, err)

	_, err = env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title: "x", ColumnID: env.Cols[0].ID, Priority: "urgent",
	})
	assert.Error(t, err)
}

func TestUpdateTaskWritesDiffHistory(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title: "draft", ColumnID: env.Cols[0].ID,
	})
	require.NoError(t, err)

	newTitle := "final"
	newPriority := "high"
	updated, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{
		ID: task.ID, Title: &newTitle, Priority: &newPriority,
	})
	require.NoError(t, err)
	assert.Equal(t, "final", updated.Title)

	history, err := env.Engine.Repo.ListTaskHistory(env.Ctx, task.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	entry := history[0] // newest first
	assert.Equal(t, "updated", entry.Action)
	require.NotNil(t, entry.NewValue)
	assert.Contains(t, *entry.NewValue, "final")
	assert.Contains(t, *entry.NewValue, "high")

	assert.Equal(t, "task.updated", lastEvent(t, env).Type())
}

func TestMoveTaskPublishesColumnTransition(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title: "move me", ColumnID: env.Cols[0].ID,
	})
	require.NoError(t, err)

	moved, err := env.Engine.MoveTask(env.Ctx, task.ID, env.Cols[2].ID, nil)
	require.NoError(t, err)
	assert.Equal(t, env.Cols[2].ID, moved.ColumnID)

	evt := lastEvent(t, env)
	assert.Equal(t, "task.moved", evt.Type())
	assert.Equal(t, env.Cols[0].ID, evt.Data["oldColumnId"])
	assert.Equal(t, env.Cols[2].ID, evt.Data["newColumnId"])
}

func TestMoveTaskFiresMatchingRule(t *testing.T) {
	env := newTestEnv(t)
	rule, err := env.Engine.CreateRule(env.Ctx, engine.RuleOptions{
		Name:        "escalate on done",
		TriggerType: "task_moved",
		ActionType:  "update_task",
		ActionConfig: `{"priority":"high"}`,
		Enabled:     true,
	})
	require.NoError(t, err)

	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title: "work", ColumnID: env.Cols[0].ID, Priority: "low",
	})
	require.NoError(t, err)

	_, err = env.Engine.MoveTask(env.Ctx, task.ID, env.Cols[2].ID, nil)
	require.NoError(t, err)

	after, err := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "high", after.Priority)

	logs, err := env.Engine.Repo.ListAutomationLogs(env.Ctx, rule.ID, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "success", logs[0].Status)
}

func TestAutomationFailureNeverFailsTheMutation(t *testing.T) {
	env := newTestEnv(t)
	rule, err := env.Engine.CreateRule(env.Ctx, engine.RuleOptions{
		Name:        "doomed webhook",
		TriggerType: "task_created",
		ActionType:  "webhook",
		ActionConfig: `{"webhookId":12345}`,
		Enabled:     true,
	})
	require.NoError(t, err)

	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title: "still created", ColumnID: env.Cols[0].ID,
	})
	require.NoError(t, err)
	assert.NotZero(t, task.ID)

	logs, err := env.Engine.Repo.ListAutomationLogs(env.Ctx, rule.ID, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "failed", logs[0].Status)
}

func TestDeleteTaskPublishesEvent(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title: "doomed", ColumnID: env.Cols[1].ID,
	})
	require.NoError(t, err)

	require.NoError(t, env.Engine.DeleteTask(env.Ctx, task.ID, nil))

	evt := lastEvent(t, env)
	assert.Equal(t, "task.deleted", evt.Type())
	assert.Equal(t, task.ID, evt.Data["taskId"])
	assert.Equal(t, env.Cols[1].ID, evt.Data["columnId"])
}

func TestCreateRecurringInstanceCopiesTemplate(t *testing.T) {
	env := newTestEnv(t)
	rule := `{"frequency":"daily","interval":1}`
	due := "2026-03-01T00:00:00Z"
	original, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title:         "standup notes",
		Description:   "post them",
		ColumnID:      env.Cols[0].ID,
		Priority:      "low",
		DueDate:       &due,
		RecurringRule: &rule,
	})
	require.NoError(t, err)

	next := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	instance, err := env.Engine.CreateRecurringInstance(env.Ctx, original, next)
	require.NoError(t, err)

	assert.Equal(t, original.Title, instance.Title)
	assert.Equal(t, original.Description, instance.Description)
	assert.Equal(t, original.ColumnID, instance.ColumnID)
	assert.Equal(t, original.Priority, instance.Priority)
	require.NotNil(t, instance.DueDate)
	assert.Equal(t, "2026-03-02T00:00:00Z", *instance.DueDate)
	require.NotNil(t, instance.RecurringRule)
	assert.Equal(t, rule, *instance.RecurringRule)

	evt := lastEvent(t, env)
	assert.Equal(t, "task.created", evt.Type())
	assert.Equal(t, true, evt.Data["recurring"])
}

func TestRuleValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateRule(env.Ctx, engine.RuleOptions{
		Name: "bad trigger", TriggerType: "task_exploded", ActionType: "notification",
	})
	assert.Error(t, err)

	_, err = env.Engine.CreateRule(env.Ctx, engine.RuleOptions{
		Name: "bad action", TriggerType: "task_created", ActionType: "launch_missiles",
	})
	assert.Error(t, err)

	_, err = env.Engine.CreateRule(env.Ctx, engine.RuleOptions{
		Name: "bad json", TriggerType: "task_created", ActionType: "notification",
		TriggerConfig: "{oops",
	})
	assert.Error(t, err)
}

func TestTriggerRuleManually(t *testing.T) {
	env := newTestEnv(t)
	rule, err := env.Engine.CreateRule(env.Ctx, engine.RuleOptions{
		Name:        "manual",
		TriggerType: "task_created",
		ActionType:  "notification",
		ActionConfig: `{"title":"manual run"}`,
		Enabled:     true,
	})
	require.NoError(t, err)

	status, message, err := env.Engine.TriggerRule(env.Ctx, rule.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, "success", status)
	assert.NotEmpty(t, message)
}

func TestTriggerRuleDisabled(t *testing.T) {
	env := newTestEnv(t)
	rule, err := env.Engine.CreateRule(env.Ctx, engine.RuleOptions{
		Name:        "off",
		TriggerType: "task_created",
		ActionType:  "notification",
		Enabled:     false,
	})
	require.NoError(t, err)

	_, _, err = env.Engine.TriggerRule(env.Ctx, rule.ID, nil)
	assert.ErrorIs(t, err, engine.ErrRuleDisabled)
}
