package server

import "taskboard/internal/domain"

type CreateBoardRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type UpdateBoardRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// ColumnResponse carries a column with its tasks.
type ColumnResponse struct {
	domain.Column
	Tasks []domain.Task `json:"tasks,omitempty"`
}

// BoardResponse carries a board with its columns and their tasks.
type BoardResponse struct {
	domain.Board
	Columns []ColumnResponse `json:"columns,omitempty"`
}

type CreateColumnRequest struct {
	Name string `json:"name"`
}

type CreateTaskRequest struct {
	Title         string  `json:"title"`
	Description   string  `json:"description,omitempty"`
	ColumnID      int64   `json:"column_id"`
	Priority      string  `json:"priority,omitempty" enum:"low,medium,high,"`
	DueDate       *string `json:"due_date,omitempty"`
	RecurringRule *string `json:"recurring_rule,omitempty"`
	Pinned        bool    `json:"pinned,omitempty"`
	AssignedTo    *int64  `json:"assigned_to,omitempty"`
}

type UpdateTaskRequest struct {
	Title         *string `json:"title,omitempty"`
	Description   *string `json:"description,omitempty"`
	Priority      *string `json:"priority,omitempty"`
	DueDate       *string `json:"due_date,omitempty"`
	RecurringRule *string `json:"recurring_rule,omitempty"`
	Pinned        *bool   `json:"pinned,omitempty"`
	AssignedTo    *int64  `json:"assigned_to,omitempty"`
}

type MoveTaskRequest struct {
	ColumnID int64 `json:"column_id"`
}

type CreateRuleRequest struct {
	Name          string `json:"name"`
	TriggerType   string `json:"trigger_type"`
	TriggerConfig string `json:"trigger_config,omitempty"`
	ActionType    string `json:"action_type"`
	ActionConfig  string `json:"action_config,omitempty"`
	Enabled       bool   `json:"enabled"`
}

type UpdateRuleRequest struct {
	Name          *string `json:"name,omitempty"`
	TriggerType   *string `json:"trigger_type,omitempty"`
	TriggerConfig *string `json:"trigger_config,omitempty"`
	ActionType    *string `json:"action_type,omitempty"`
	ActionConfig  *string `json:"action_config,omitempty"`
	Enabled       *bool   `json:"enabled,omitempty"`
}

type TriggerRuleRequest struct {
	EventData map[string]any `json:"event_data,omitempty"`
}

type TriggerRuleResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type CreateIntegrationRequest struct {
	Name    string `json:"name"`
	Type    string `json:"type,omitempty"`
	Config  string `json:"config,omitempty"`
	Enabled bool   `json:"enabled"`
}

type UpdateIntegrationRequest struct {
	Name    *string `json:"name,omitempty"`
	Config  *string `json:"config,omitempty"`
	Enabled *bool   `json:"enabled,omitempty"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key,omitempty"`
	CreatedAt string `json:"created_at"`
}
