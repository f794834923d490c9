package domain

type Board struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedBy   *int64 `json:"created_by,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

type Column struct {
	ID       int64  `json:"id"`
	BoardID  int64  `json:"board_id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
}

type Task struct {
	ID            int64   `json:"id"`
	Title         string  `json:"title"`
	Description   string  `json:"description,omitempty"`
	ColumnID      int64   `json:"column_id"`
	Position      int     `json:"position"`
	Priority      string  `json:"priority" enum:"low,medium,high"`
	DueDate       *string `json:"due_date,omitempty" format:"date-time"`
	RecurringRule *string `json:"recurring_rule,omitempty"`
	Pinned        bool    `json:"pinned"`
	CreatedBy     *int64  `json:"created_by,omitempty"`
	AssignedTo    *int64  `json:"assigned_to,omitempty"`
	Tags          []Tag   `json:"tags,omitempty"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
	UpdatedAt     string  `json:"updated_at" format:"date-time"`
}

type Tag struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// TaskHistoryEntry is one audit row for a task mutation.
type TaskHistoryEntry struct {
	ID        int64   `json:"id"`
	TaskID    int64   `json:"task_id"`
	Action    string  `json:"action"`
	OldValue  *string `json:"old_value,omitempty"`
	NewValue  *string `json:"new_value,omitempty"`
	UserID    *int64  `json:"user_id,omitempty"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

// AutomationRule pairs a trigger condition with an action. TriggerConfig and
// ActionConfig hold raw JSON text; malformed text is an execution error for
// that rule alone, never a crash.
type AutomationRule struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	TriggerType   string `json:"trigger_type" enum:"task_created,task_updated,task_moved,task_deleted,task_due,task_overdue,task_due_soon"`
	TriggerConfig string `json:"trigger_config"`
	ActionType    string `json:"action_type" enum:"webhook,notification,move_task,update_task,create_task"`
	ActionConfig  string `json:"action_config"`
	Enabled       bool   `json:"enabled"`
	CreatedBy     *int64 `json:"created_by,omitempty"`
	CreatedAt     string `json:"created_at" format:"date-time"`
	UpdatedAt     string `json:"updated_at" format:"date-time"`
}

// AutomationLogEntry records one rule-execution attempt.
type AutomationLogEntry struct {
	ID        int64  `json:"id"`
	RuleID    int64  `json:"rule_id"`
	RuleName  string `json:"rule_name,omitempty"`
	Status    string `json:"status" enum:"success,failed"`
	Message   string `json:"message,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Integration is an outbound endpoint record. Config holds JSON of the form
// {"webhookUrl":"...","apiKey":"..."}; only enabled rows of type n8n_webhook
// are used for delivery.
type Integration struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Config    string `json:"config"`
	Enabled   bool   `json:"enabled"`
	CreatedBy *int64 `json:"created_by,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

// IntegrationConfig is the parsed form of Integration.Config.
type IntegrationConfig struct {
	WebhookURL string `json:"webhookUrl"`
	APIKey     string `json:"apiKey,omitempty"`
}

// Event is one immutable record of a state change, published on the
// in-process event log and replicated to sync consumers.
type Event struct {
	ID        string         `json:"id"`
	Resource  string         `json:"resource"`
	Action    string         `json:"action"`
	Timestamp string         `json:"timestamp" format:"date-time"`
	Data      map[string]any `json:"data"`
}

// Type returns the dotted event name used on the wire, e.g. "task.moved".
func (e Event) Type() string {
	return e.Resource + "." + e.Action
}

type APIKey struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
