// Package engine holds the application operations behind the HTTP API and
// CLI. Every mutation commits first, then publishes its domain event and
// hands the payload to automation; automation failures never reach the
// caller.
package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"taskboard/internal/automation"
	"taskboard/internal/config"
	"taskboard/internal/domain"
	"taskboard/internal/eventlog"
	"taskboard/internal/repo"
)

// ErrRuleDisabled is returned when a manual trigger names a disabled rule.
var ErrRuleDisabled = errors.New("automation rule is disabled")

var priorities = map[string]bool{"low": true, "medium": true, "high": true}

var triggerTypes = map[string]bool{
	"task_created": true, "task_updated": true, "task_moved": true,
	"task_deleted": true, "task_due": true, "task_overdue": true,
	"task_due_soon": true,
}

var actionTypes = map[string]bool{
	"webhook": true, "notification": true, "move_task": true,
	"update_task": true, "create_task": true,
}

// seedColumns are created with every new board.
var seedColumns = []string{"To Do", "In Progress", "Done"}

type Engine struct {
	DB         *sql.DB
	Repo       repo.Repo
	Events     *eventlog.Log
	Automation *automation.Engine
	Config     *config.Config
	Logger     zerolog.Logger
	Now        func() time.Time
}

func New(conn *sql.DB, cfg *config.Config, events *eventlog.Log, auto *automation.Engine, logger zerolog.Logger) Engine {
	return Engine{
		DB:         conn,
		Repo:       repo.Repo{DB: conn},
		Events:     events,
		Automation: auto,
		Config:     cfg,
		Logger:     logger.With().Str("component", "engine").Logger(),
		Now:        time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowString() string {
	return e.now().UTC().Format(time.RFC3339)
}

// publish appends a domain event and, when triggerType is non-empty, runs
// automation synchronously with the same payload. Callers invoke it only
// after their transaction committed.
func (e Engine) publish(ctx context.Context, resource, action, triggerType string, data map[string]any) {
	if e.Events != nil {
		e.Events.Publish(resource, action, data)
	}
	if triggerType != "" && e.Automation != nil {
		e.Automation.Trigger(ctx, triggerType, data)
	}
}

// --- boards ---

type BoardCreateOptions struct {
	Name        string
	Description string
	CreatedBy   *int64
}

// CreateBoard inserts a board with the three standard columns.
func (e Engine) CreateBoard(ctx context.Context, opts BoardCreateOptions) (domain.Board, error) {
	if opts.Name == "" {
		return domain.Board{}, errors.New("name is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Board{}, err
	}
	defer tx.Rollback()

	now := e.nowString()
	id, err := e.Repo.InsertBoardTx(ctx, tx, opts.Name, opts.Description, opts.CreatedBy, now)
	if err != nil {
		return domain.Board{}, fmt.Errorf("insert board: %w", err)
	}
	for i, name := range seedColumns {
		if _, err := e.Repo.InsertColumnTx(ctx, tx, id, name, i); err != nil {
			return domain.Board{}, fmt.Errorf("insert column: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Board{}, err
	}

	e.publish(ctx, "board", "created", "", map[string]any{"boardId": id, "name": opts.Name})
	return e.Repo.GetBoard(ctx, id)
}

func (e Engine) UpdateBoard(ctx context.Context, id int64, name, description *string) (domain.Board, error) {
	if err := e.Repo.UpdateBoard(ctx, id, name, description, e.nowString()); err != nil {
		return domain.Board{}, err
	}
	e.publish(ctx, "board", "updated", "", map[string]any{"boardId": id})
	return e.Repo.GetBoard(ctx, id)
}

func (e Engine) DeleteBoard(ctx context.Context, id int64) error {
	if err := e.Repo.DeleteBoard(ctx, id); err != nil {
		return err
	}
	e.publish(ctx, "board", "deleted", "", map[string]any{"boardId": id})
	return nil
}

// CreateColumn appends a column to a board.
func (e Engine) CreateColumn(ctx context.Context, boardID int64, name string) (domain.Column, error) {
	if name == "" {
		return domain.Column{}, errors.New("name is required")
	}
	if _, err := e.Repo.GetBoard(ctx, boardID); err != nil {
		return domain.Column{}, err
	}
	columns, err := e.Repo.ListColumns(ctx, boardID)
	if err != nil {
		return domain.Column{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Column{}, err
	}
	defer tx.Rollback()
	id, err := e.Repo.InsertColumnTx(ctx, tx, boardID, name, len(columns))
	if err != nil {
		return domain.Column{}, fmt.Errorf("insert column: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Column{}, err
	}
	return e.Repo.GetColumn(ctx, id)
}

// --- tasks ---

type TaskCreateOptions struct {
	Title         string
	Description   string
	ColumnID      int64
	Priority      string
	DueDate       *string
	RecurringRule *string
	Pinned        bool
	AssignedTo    *int64
	CreatedBy     *int64
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if opts.Title == "" {
		return domain.Task{}, errors.New("title is required")
	}
	if opts.Priority == "" {
		opts.Priority = "medium"
	}
	if !priorities[opts.Priority] {
		return domain.Task{}, fmt.Errorf("invalid priority %q", opts.Priority)
	}
	if _, err := e.Repo.GetColumn(ctx, opts.ColumnID); err != nil {
		return domain.Task{}, err
	}
	if opts.RecurringRule != nil {
		if !json.Valid([]byte(*opts.RecurringRule)) {
			return domain.Task{}, errors.New("recurring_rule must be valid JSON")
		}
	}
	position, err := e.Repo.NextPosition(ctx, opts.ColumnID)
	if err != nil {
		return domain.Task{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	now := e.nowString()
	id, err := e.Repo.InsertTaskTx(ctx, tx, domain.Task{
		Title:         opts.Title,
		Description:   opts.Description,
		ColumnID:      opts.ColumnID,
		Position:      position,
		Priority:      opts.Priority,
		DueDate:       opts.DueDate,
		RecurringRule: opts.RecurringRule,
		Pinned:        opts.Pinned,
		AssignedTo:    opts.AssignedTo,
		CreatedBy:     opts.CreatedBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	if err := e.Repo.InsertTaskHistoryTx(ctx, tx, id, "created", nil, strptr(opts.Title), opts.CreatedBy, now); err != nil {
		return domain.Task{}, fmt.Errorf("insert history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}

	data := map[string]any{"taskId": id, "columnId": opts.ColumnID, "priority": opts.Priority}
	if opts.AssignedTo != nil {
		data["assignedTo"] = *opts.AssignedTo
	}
	e.publish(ctx, "task", "created", "task_created", data)
	return e.Repo.GetTask(ctx, id)
}

type TaskUpdateOptions struct {
	ID            int64
	Title         *string
	Description   *string
	Priority      *string
	DueDate       *string
	ClearDueDate  bool
	RecurringRule *string
	ClearRule     bool
	Pinned        *bool
	AssignedTo    *int64
	UserID        *int64
}

func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	task, err := e.Repo.GetTask(ctx, opts.ID)
	if err != nil {
		return domain.Task{}, err
	}
	old := task

	if opts.Title != nil {
		if *opts.Title == "" {
			return domain.Task{}, errors.New("title cannot be empty")
		}
		task.Title = *opts.Title
	}
	if opts.Description != nil {
		task.Description = *opts.Description
	}
	if opts.Priority != nil {
		if !priorities[*opts.Priority] {
			return domain.Task{}, fmt.Errorf("invalid priority %q", *opts.Priority)
		}
		task.Priority = *opts.Priority
	}
	if opts.ClearDueDate {
		task.DueDate = nil
	} else if opts.DueDate != nil {
		task.DueDate = opts.DueDate
	}
	if opts.ClearRule {
		task.RecurringRule = nil
	} else if opts.RecurringRule != nil {
		if !json.Valid([]byte(*opts.RecurringRule)) {
			return domain.Task{}, errors.New("recurring_rule must be valid JSON")
		}
		task.RecurringRule = opts.RecurringRule
	}
	if opts.Pinned != nil {
		task.Pinned = *opts.Pinned
	}
	if opts.AssignedTo != nil {
		task.AssignedTo = opts.AssignedTo
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	now := e.nowString()
	task.UpdatedAt = now
	if err := e.Repo.UpdateTaskTx(ctx, tx, task); err != nil {
		return domain.Task{}, err
	}
	oldJSON, newJSON := taskDiff(old, task)
	if err := e.Repo.InsertTaskHistoryTx(ctx, tx, task.ID, "updated", oldJSON, newJSON, opts.UserID, now); err != nil {
		return domain.Task{}, fmt.Errorf("insert history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}

	data := map[string]any{"taskId": task.ID, "columnId": task.ColumnID, "priority": task.Priority}
	if task.AssignedTo != nil {
		data["assignedTo"] = *task.AssignedTo
	}
	e.publish(ctx, "task", "updated", "task_updated", data)
	return e.Repo.GetTask(ctx, task.ID)
}

// MoveTask relocates a task to another column, appending it at the end.
func (e Engine) MoveTask(ctx context.Context, taskID, columnID int64, userID *int64) (domain.Task, error) {
	task, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := e.Repo.GetColumn(ctx, columnID); err != nil {
		return domain.Task{}, err
	}
	oldColumn := task.ColumnID
	position, err := e.Repo.NextPosition(ctx, columnID)
	if err != nil {
		return domain.Task{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	now := e.nowString()
	task.ColumnID = columnID
	task.Position = position
	task.UpdatedAt = now
	if err := e.Repo.UpdateTaskTx(ctx, tx, task); err != nil {
		return domain.Task{}, err
	}
	if err := e.Repo.InsertTaskHistoryTx(ctx, tx, taskID, "moved",
		strptr(fmt.Sprint(oldColumn)), strptr(fmt.Sprint(columnID)), userID, now); err != nil {
		return domain.Task{}, fmt.Errorf("insert history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}

	e.publish(ctx, "task", "moved", "task_moved", map[string]any{
		"taskId":      taskID,
		"oldColumnId": oldColumn,
		"newColumnId": columnID,
	})
	return e.Repo.GetTask(ctx, taskID)
}

func (e Engine) DeleteTask(ctx context.Context, taskID int64, userID *int64) error {
	task, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteTaskTx(ctx, tx, taskID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	e.publish(ctx, "task", "deleted", "task_deleted", map[string]any{
		"taskId":   taskID,
		"columnId": task.ColumnID,
	})
	return nil
}

// CreateRecurringInstance copies original into a new task due at nextDue,
// carrying the recurrence template verbatim so the series stays linked.
// The scheduler's recurrence sweep is the only caller.
func (e Engine) CreateRecurringInstance(ctx context.Context, original domain.Task, nextDue time.Time) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	now := e.nowString()
	due := nextDue.UTC().Format(time.RFC3339)
	position, err := e.Repo.NextPosition(ctx, original.ColumnID)
	if err != nil {
		return domain.Task{}, err
	}
	id, err := e.Repo.InsertTaskTx(ctx, tx, domain.Task{
		Title:         original.Title,
		Description:   original.Description,
		ColumnID:      original.ColumnID,
		Position:      position,
		Priority:      original.Priority,
		DueDate:       &due,
		RecurringRule: original.RecurringRule,
		AssignedTo:    original.AssignedTo,
		CreatedBy:     original.CreatedBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return domain.Task{}, fmt.Errorf("insert recurring instance: %w", err)
	}
	if err := e.Repo.CopyTaskTagsTx(ctx, tx, original.ID, id); err != nil {
		return domain.Task{}, fmt.Errorf("copy tags: %w", err)
	}
	if err := e.Repo.InsertTaskHistoryTx(ctx, tx, id, "created", nil, strptr(original.Title), nil, now); err != nil {
		return domain.Task{}, fmt.Errorf("insert history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}

	e.publish(ctx, "task", "created", "task_created", map[string]any{
		"taskId":    id,
		"columnId":  original.ColumnID,
		"priority":  original.Priority,
		"recurring": true,
	})
	return e.Repo.GetTask(ctx, id)
}

// --- automation rules ---

type RuleOptions struct {
	Name          string
	TriggerType   string
	TriggerConfig string
	ActionType    string
	ActionConfig  string
	Enabled       bool
	CreatedBy     *int64
}

func validateRule(opts RuleOptions) error {
	if opts.Name == "" {
		return errors.New("name is required")
	}
	if !triggerTypes[opts.TriggerType] {
		return fmt.Errorf("invalid trigger type %q", opts.TriggerType)
	}
	if !actionTypes[opts.ActionType] {
		return fmt.Errorf("invalid action type %q", opts.ActionType)
	}
	if opts.TriggerConfig != "" && !json.Valid([]byte(opts.TriggerConfig)) {
		return errors.New("trigger_config must be valid JSON")
	}
	if opts.ActionConfig != "" && !json.Valid([]byte(opts.ActionConfig)) {
		return errors.New("action_config must be valid JSON")
	}
	return nil
}

func (e Engine) CreateRule(ctx context.Context, opts RuleOptions) (domain.AutomationRule, error) {
	if err := validateRule(opts); err != nil {
		return domain.AutomationRule{}, err
	}
	if opts.TriggerConfig == "" {
		opts.TriggerConfig = "{}"
	}
	if opts.ActionConfig == "" {
		opts.ActionConfig = "{}"
	}
	now := e.nowString()
	id, err := e.Repo.InsertRule(ctx, domain.AutomationRule{
		Name:          opts.Name,
		TriggerType:   opts.TriggerType,
		TriggerConfig: opts.TriggerConfig,
		ActionType:    opts.ActionType,
		ActionConfig:  opts.ActionConfig,
		Enabled:       opts.Enabled,
		CreatedBy:     opts.CreatedBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return domain.AutomationRule{}, fmt.Errorf("insert rule: %w", err)
	}
	return e.Repo.GetRule(ctx, id)
}

type RuleUpdateOptions struct {
	ID            int64
	Name          *string
	TriggerType   *string
	TriggerConfig *string
	ActionType    *string
	ActionConfig  *string
	Enabled       *bool
}

func (e Engine) UpdateRule(ctx context.Context, opts RuleUpdateOptions) (domain.AutomationRule, error) {
	if opts.TriggerType != nil && !triggerTypes[*opts.TriggerType] {
		return domain.AutomationRule{}, fmt.Errorf("invalid trigger type %q", *opts.TriggerType)
	}
	if opts.ActionType != nil && !actionTypes[*opts.ActionType] {
		return domain.AutomationRule{}, fmt.Errorf("invalid action type %q", *opts.ActionType)
	}
	if opts.TriggerConfig != nil && !json.Valid([]byte(*opts.TriggerConfig)) {
		return domain.AutomationRule{}, errors.New("trigger_config must be valid JSON")
	}
	if opts.ActionConfig != nil && !json.Valid([]byte(*opts.ActionConfig)) {
		return domain.AutomationRule{}, errors.New("action_config must be valid JSON")
	}
	err := e.Repo.UpdateRule(ctx, opts.ID, opts.Name, opts.TriggerType, opts.TriggerConfig,
		opts.ActionType, opts.ActionConfig, opts.Enabled, e.nowString())
	if err != nil {
		return domain.AutomationRule{}, err
	}
	return e.Repo.GetRule(ctx, opts.ID)
}

func (e Engine) DeleteRule(ctx context.Context, id int64) error {
	return e.Repo.DeleteRule(ctx, id)
}

// TriggerRule runs one rule by hand against caller-supplied event data,
// bypassing predicate matching. Disabled rules are refused.
func (e Engine) TriggerRule(ctx context.Context, id int64, eventData map[string]any) (status, message string, err error) {
	rule, err := e.Repo.GetRule(ctx, id)
	if err != nil {
		return "", "", err
	}
	if !rule.Enabled {
		return "", "", ErrRuleDisabled
	}
	if eventData == nil {
		eventData = map[string]any{}
	}
	status, message = e.Automation.RunRule(ctx, rule, rule.TriggerType, eventData)
	return status, message, nil
}

// --- integrations ---

type IntegrationOptions struct {
	Name      string
	Type      string
	Config    string
	Enabled   bool
	CreatedBy *int64
}

func (e Engine) CreateIntegration(ctx context.Context, opts IntegrationOptions) (domain.Integration, error) {
	if opts.Name == "" {
		return domain.Integration{}, errors.New("name is required")
	}
	if opts.Type == "" {
		opts.Type = "n8n_webhook"
	}
	if opts.Config == "" {
		opts.Config = "{}"
	}
	if !json.Valid([]byte(opts.Config)) {
		return domain.Integration{}, errors.New("config must be valid JSON")
	}
	now := e.nowString()
	id, err := e.Repo.InsertIntegration(ctx, domain.Integration{
		Name:      opts.Name,
		Type:      opts.Type,
		Config:    opts.Config,
		Enabled:   opts.Enabled,
		CreatedBy: opts.CreatedBy,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return domain.Integration{}, fmt.Errorf("insert integration: %w", err)
	}
	return e.Repo.GetIntegration(ctx, id)
}

func (e Engine) UpdateIntegration(ctx context.Context, id int64, name, cfg *string, enabled *bool) (domain.Integration, error) {
	if cfg != nil && !json.Valid([]byte(*cfg)) {
		return domain.Integration{}, errors.New("config must be valid JSON")
	}
	if err := e.Repo.UpdateIntegration(ctx, id, name, cfg, enabled, e.nowString()); err != nil {
		return domain.Integration{}, err
	}
	return e.Repo.GetIntegration(ctx, id)
}

func (e Engine) DeleteIntegration(ctx context.Context, id int64) error {
	return e.Repo.DeleteIntegration(ctx, id)
}

// --- helpers ---

func strptr(s string) *string { return &s }

// taskDiff renders changed fields of a task update as before/after JSON for
// the history row. Unchanged fields are omitted.
func taskDiff(before, after domain.Task) (*string, *string) {
	from := map[string]any{}
	to := map[string]any{}
	if before.Title != after.Title {
		from["title"], to["title"] = before.Title, after.Title
	}
	if before.Description != after.Description {
		from["description"], to["description"] = before.Description, after.Description
	}
	if before.Priority != after.Priority {
		from["priority"], to["priority"] = before.Priority, after.Priority
	}
	if !eqStrPtr(before.DueDate, after.DueDate) {
		from["due_date"], to["due_date"] = strOrNil(before.DueDate), strOrNil(after.DueDate)
	}
	if !eqStrPtr(before.RecurringRule, after.RecurringRule) {
		from["recurring_rule"], to["recurring_rule"] = strOrNil(before.RecurringRule), strOrNil(after.RecurringRule)
	}
	if before.Pinned != after.Pinned {
		from["pinned"], to["pinned"] = before.Pinned, after.Pinned
	}
	if !eqInt64Ptr(before.AssignedTo, after.AssignedTo) {
		from["assigned_to"], to["assigned_to"] = int64OrNil(before.AssignedTo), int64OrNil(after.AssignedTo)
	}
	if len(to) == 0 {
		return nil, nil
	}
	fromJSON, _ := json.Marshal(from)
	toJSON, _ := json.Marshal(to)
	return strptr(string(fromJSON)), strptr(string(toJSON))
}

func eqStrPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func eqInt64Ptr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func strOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func int64OrNil(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
