package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"taskboard/internal/domain"
	"taskboard/internal/eventlog"
	"taskboard/internal/repo"
)

// Result is the outcome of one action execution. Err carries the failure
// reason; Message carries a human-readable success note. Both feed the
// automation log, neither is ever raised past the engine.
type Result struct {
	Success bool
	Message string
	Err     string
}

func failure(format string, args ...any) Result {
	return Result{Err: fmt.Sprintf(format, args...)}
}

func success(format string, args ...any) Result {
	return Result{Success: true, Message: fmt.Sprintf(format, args...)}
}

// Executor runs the side-effecting half of a matched rule. Task mutations go
// straight through the repository and re-publish domain events, but never
// re-enter the engine; that keeps rule execution free of automation loops.
type Executor struct {
	Repo     repo.Repo
	Events   *eventlog.Log
	Webhooks *WebhookClient
	Now      func() time.Time
}

// Execute dispatches on actionType. Unknown types and malformed config are
// rule-level failures, returned, not raised.
func (x Executor) Execute(ctx context.Context, actionType, actionConfig, eventType string, eventData map[string]any) Result {
	switch actionType {
	case "webhook":
		return x.webhook(ctx, actionConfig, eventType, eventData)
	case "notification":
		return x.notification(ctx, actionConfig, eventType, eventData)
	case "move_task":
		return x.moveTask(ctx, actionConfig, eventData)
	case "update_task":
		return x.updateTask(ctx, actionConfig, eventData)
	case "create_task":
		return x.createTask(ctx, actionConfig)
	default:
		return failure("unknown action type %q", actionType)
	}
}

func (x Executor) webhook(ctx context.Context, actionConfig, eventType string, eventData map[string]any) Result {
	var cfg struct {
		WebhookID int64 `json:"webhookId"`
	}
	if err := json.Unmarshal([]byte(actionConfig), &cfg); err != nil {
		return failure("invalid action config: %v", err)
	}
	if cfg.WebhookID == 0 {
		return failure("webhookId is required")
	}

	integration, err := x.Repo.GetEnabledWebhook(ctx, cfg.WebhookID)
	if errors.Is(err, repo.ErrNotFound) {
		return failure("webhook integration %d not found or disabled", cfg.WebhookID)
	}
	if err != nil {
		return failure("load webhook integration: %v", err)
	}

	var target domain.IntegrationConfig
	if err := json.Unmarshal([]byte(integration.Config), &target); err != nil {
		return failure("invalid integration config: %v", err)
	}
	if err := x.Webhooks.Deliver(ctx, target, eventType, eventData); err != nil {
		return failure("%v", err)
	}
	return success("Webhook %q delivered", integration.Name)
}

// notification succeeds once the local record is made; webhook fan-out is
// settle-all and its failures only show up in the message, never in the
// result.
func (x Executor) notification(ctx context.Context, actionConfig, eventType string, eventData map[string]any) Result {
	var cfg struct {
		Title   string `json:"title"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(actionConfig), &cfg); err != nil {
		return failure("invalid action config: %v", err)
	}
	if cfg.Title == "" {
		cfg.Title = "Notification"
	}

	hooks, err := x.Repo.ListEnabledWebhooks(ctx)
	if err != nil || len(hooks) == 0 {
		return success("Notification %q sent", cfg.Title)
	}

	payload := map[string]any{
		"title":   cfg.Title,
		"message": cfg.Message,
		"trigger": eventType,
		"data":    eventData,
	}
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		delivered int
	)
	for _, hook := range hooks {
		var target domain.IntegrationConfig
		if err := json.Unmarshal([]byte(hook.Config), &target); err != nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := x.Webhooks.Deliver(ctx, target, "notification", payload); err == nil {
				mu.Lock()
				delivered++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return success("Notification %q sent (%d/%d webhooks)", cfg.Title, delivered, len(hooks))
}

func (x Executor) moveTask(ctx context.Context, actionConfig string, eventData map[string]any) Result {
	var cfg struct {
		ColumnID int64 `json:"columnId"`
	}
	if err := json.Unmarshal([]byte(actionConfig), &cfg); err != nil {
		return failure("invalid action config: %v", err)
	}
	if cfg.ColumnID == 0 {
		return failure("columnId is required")
	}
	taskID, ok := asInt64(eventData["taskId"])
	if !ok {
		return failure("event has no taskId")
	}

	task, err := x.Repo.GetTask(ctx, taskID)
	if errors.Is(err, repo.ErrNotFound) {
		return failure("task %d not found", taskID)
	}
	if err != nil {
		return failure("load task: %v", err)
	}

	affected, err := x.Repo.MoveTaskColumn(ctx, taskID, cfg.ColumnID, x.now())
	if err != nil {
		return failure("move task: %v", err)
	}
	if affected == 0 {
		return failure("task %d not found", taskID)
	}
	x.Events.Publish("task", "moved", map[string]any{
		"taskId":      taskID,
		"oldColumnId": task.ColumnID,
		"newColumnId": cfg.ColumnID,
		"automated":   true,
	})
	return success("Task %d moved to column %d", taskID, cfg.ColumnID)
}

func (x Executor) updateTask(ctx context.Context, actionConfig string, eventData map[string]any) Result {
	var cfg struct {
		Priority   *string `json:"priority"`
		DueDate    *string `json:"dueDate"`
		AssignedTo *int64  `json:"assignedTo"`
	}
	if err := json.Unmarshal([]byte(actionConfig), &cfg); err != nil {
		return failure("invalid action config: %v", err)
	}
	if cfg.Priority == nil && cfg.DueDate == nil && cfg.AssignedTo == nil {
		return failure("no task fields to update")
	}
	taskID, ok := asInt64(eventData["taskId"])
	if !ok {
		return failure("event has no taskId")
	}

	affected, err := x.Repo.UpdateTaskAction(ctx, taskID, cfg.Priority, cfg.DueDate, cfg.AssignedTo, x.now())
	if err != nil {
		return failure("update task: %v", err)
	}
	if affected == 0 {
		return failure("task %d not found", taskID)
	}
	x.Events.Publish("task", "updated", map[string]any{
		"taskId":    taskID,
		"automated": true,
	})
	return success("Task %d updated", taskID)
}

func (x Executor) createTask(ctx context.Context, actionConfig string) Result {
	var cfg struct {
		ColumnID    int64  `json:"columnId"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Priority    string `json:"priority"`
		AssignedTo  *int64 `json:"assignedTo"`
	}
	if err := json.Unmarshal([]byte(actionConfig), &cfg); err != nil {
		return failure("invalid action config: %v", err)
	}
	if cfg.ColumnID == 0 || cfg.Title == "" {
		return failure("columnId and title are required")
	}
	if cfg.Priority == "" {
		cfg.Priority = "medium"
	}

	position, err := x.Repo.NextPosition(ctx, cfg.ColumnID)
	if err != nil {
		return failure("next position: %v", err)
	}
	now := x.now()
	id, err := x.Repo.InsertTask(ctx, domain.Task{
		Title:       cfg.Title,
		Description: cfg.Description,
		ColumnID:    cfg.ColumnID,
		Position:    position,
		Priority:    cfg.Priority,
		AssignedTo:  cfg.AssignedTo,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return failure("create task: %v", err)
	}
	x.Events.Publish("task", "created", map[string]any{
		"taskId":    id,
		"columnId":  cfg.ColumnID,
		"priority":  cfg.Priority,
		"automated": true,
	})
	return success("Task %d created in column %d", id, cfg.ColumnID)
}

func (x Executor) now() string {
	now := x.Now
	if now == nil {
		now = time.Now
	}
	return now().UTC().Format(time.RFC3339)
}

// asInt64 reads a numeric event field. Payloads built in-process carry
// int64s; payloads decoded from JSON carry float64s.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}
