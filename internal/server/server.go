// Package server exposes the taskboard HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"taskboard/internal/domain"
	"taskboard/internal/engine"
	"taskboard/internal/eventlog"
	"taskboard/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	Events   *eventlog.Log
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"task not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError is the JSON error envelope every endpoint returns.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the taskboard API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Taskboard API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerBoards(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerAutomation(group, cfg.Engine)
	registerIntegrations(group, cfg.Engine)
	registerAPIKeys(group, cfg.Engine)
	registerSyncEvents(group, cfg.Events)
	registerSyncStream(router, basePath, cfg.Events)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrRuleDisabled) {
		return newAPIError(http.StatusConflict, "rule_disabled", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") ||
		strings.Contains(lowered, "required") ||
		strings.Contains(lowered, "must be") ||
		strings.Contains(lowered, "cannot be"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerBoards(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-board",
		Method:        http.MethodPost,
		Path:          "/boards",
		Summary:       "Create board",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateBoardRequest `json:"body"`
	}) (*struct {
		Body BoardResponse `json:"body"`
	}, error) {
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		board, err := e.CreateBoard(ctx, engine.BoardCreateOptions{
			Name:        input.Body.Name,
			Description: input.Body.Description,
			CreatedBy:   userIDFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return boardWithColumns(ctx, e, board)
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-boards",
		Method:      http.MethodGet,
		Path:        "/boards",
		Summary:     "List boards",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Board `json:"body"`
	}, error) {
		boards, err := e.Repo.ListBoards(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Board `json:"body"`
		}{Body: boards}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-board",
		Method:      http.MethodGet,
		Path:        "/boards/{id}",
		Summary:     "Get board with columns",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body BoardResponse `json:"body"`
	}, error) {
		board, err := e.Repo.GetBoard(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return boardWithColumns(ctx, e, board)
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-board",
		Method:      http.MethodPut,
		Path:        "/boards/{id}",
		Summary:     "Update board",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64              `path:"id"`
		Body UpdateBoardRequest `json:"body"`
	}) (*struct {
		Body BoardResponse `json:"body"`
	}, error) {
		board, err := e.UpdateBoard(ctx, input.ID, input.Body.Name, input.Body.Description)
		if err != nil {
			return nil, handleError(err)
		}
		return boardWithColumns(ctx, e, board)
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-board",
		Method:      http.MethodDelete,
		Path:        "/boards/{id}",
		Summary:     "Delete board",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct{}, error) {
		if err := e.DeleteBoard(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-column",
		Method:        http.MethodPost,
		Path:          "/boards/{id}/columns",
		Summary:       "Add column to board",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64               `path:"id"`
		Body CreateColumnRequest `json:"body"`
	}) (*struct {
		Body domain.Column `json:"body"`
	}, error) {
		column, err := e.CreateColumn(ctx, input.ID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Column `json:"body"`
		}{Body: column}, nil
	})
}

func boardWithColumns(ctx context.Context, e engine.Engine, board domain.Board) (*struct {
	Body BoardResponse `json:"body"`
}, error) {
	columns, err := e.Repo.ListColumns(ctx, board.ID)
	if err != nil {
		return nil, handleError(err)
	}
	resp := BoardResponse{Board: board, Columns: make([]ColumnResponse, 0, len(columns))}
	for _, col := range columns {
		tasks, err := e.Repo.ListTasksByColumn(ctx, col.ID)
		if err != nil {
			return nil, handleError(err)
		}
		resp.Columns = append(resp.Columns, ColumnResponse{Column: col, Tasks: tasks})
	}
	return &struct {
		Body BoardResponse `json:"body"`
	}{Body: resp}, nil
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		if input.Body.Title == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		if input.Body.ColumnID == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "column_id is required", nil)
		}
		task, err := e.CreateTask(ctx, engine.TaskCreateOptions{
			Title:         input.Body.Title,
			Description:   input.Body.Description,
			ColumnID:      input.Body.ColumnID,
			Priority:      input.Body.Priority,
			DueDate:       input.Body.DueDate,
			RecurringRule: input.Body.RecurringRule,
			Pinned:        input.Body.Pinned,
			AssignedTo:    input.Body.AssignedTo,
			CreatedBy:     userIDFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: task}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/columns/{column_id}/tasks",
		Summary:     "List tasks in a column",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ColumnID int64 `path:"column_id"`
	}) (*struct {
		Body []domain.Task `json:"body"`
	}, error) {
		if _, err := e.Repo.GetColumn(ctx, input.ColumnID); err != nil {
			return nil, handleError(err)
		}
		tasks, err := e.Repo.ListTasksByColumn(ctx, input.ColumnID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Task `json:"body"`
		}{Body: tasks}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		task, err := e.Repo.GetTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		tags, err := e.Repo.ListTaskTags(ctx, task.ID)
		if err != nil {
			return nil, handleError(err)
		}
		task.Tags = tags
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: task}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPut,
		Path:        "/tasks/{id}",
		Summary:     "Update task",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64             `path:"id"`
		Body UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		task, err := e.UpdateTask(ctx, engine.TaskUpdateOptions{
			ID:            input.ID,
			Title:         input.Body.Title,
			Description:   input.Body.Description,
			Priority:      input.Body.Priority,
			DueDate:       input.Body.DueDate,
			RecurringRule: input.Body.RecurringRule,
			Pinned:        input.Body.Pinned,
			AssignedTo:    input.Body.AssignedTo,
			UserID:        userIDFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: task}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "move-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/move",
		Summary:     "Move task to another column",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64           `path:"id"`
		Body MoveTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		if input.Body.ColumnID == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "column_id is required", nil)
		}
		task, err := e.MoveTask(ctx, input.ID, input.Body.ColumnID, userIDFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: task}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-task",
		Method:      http.MethodDelete,
		Path:        "/tasks/{id}",
		Summary:     "Delete task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct{}, error) {
		if err := e.DeleteTask(ctx, input.ID, userIDFromContext(ctx)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "task-history",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}/history",
		Summary:     "Task history",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID    int64 `path:"id"`
		Limit int   `query:"limit" default:"50"`
	}) (*struct {
		Body []domain.TaskHistoryEntry `json:"body"`
	}, error) {
		if _, err := e.Repo.GetTask(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		history, err := e.Repo.ListTaskHistory(ctx, input.ID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.TaskHistoryEntry `json:"body"`
		}{Body: history}, nil
	})
}

func registerAutomation(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-rule",
		Method:        http.MethodPost,
		Path:          "/automation",
		Summary:       "Create automation rule",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateRuleRequest `json:"body"`
	}) (*struct {
		Body domain.AutomationRule `json:"body"`
	}, error) {
		rule, err := e.CreateRule(ctx, engine.RuleOptions{
			Name:          input.Body.Name,
			TriggerType:   input.Body.TriggerType,
			TriggerConfig: input.Body.TriggerConfig,
			ActionType:    input.Body.ActionType,
			ActionConfig:  input.Body.ActionConfig,
			Enabled:       input.Body.Enabled,
			CreatedBy:     userIDFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.AutomationRule `json:"body"`
		}{Body: rule}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-rules",
		Method:      http.MethodGet,
		Path:        "/automation",
		Summary:     "List automation rules",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.AutomationRule `json:"body"`
	}, error) {
		rules, err := e.Repo.ListRules(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.AutomationRule `json:"body"`
		}{Body: rules}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-rule",
		Method:      http.MethodGet,
		Path:        "/automation/{id}",
		Summary:     "Get automation rule",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body domain.AutomationRule `json:"body"`
	}, error) {
		rule, err := e.Repo.GetRule(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.AutomationRule `json:"body"`
		}{Body: rule}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-rule",
		Method:      http.MethodPut,
		Path:        "/automation/{id}",
		Summary:     "Update automation rule",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64             `path:"id"`
		Body UpdateRuleRequest `json:"body"`
	}) (*struct {
		Body domain.AutomationRule `json:"body"`
	}, error) {
		rule, err := e.UpdateRule(ctx, engine.RuleUpdateOptions{
			ID:            input.ID,
			Name:          input.Body.Name,
			TriggerType:   input.Body.TriggerType,
			TriggerConfig: input.Body.TriggerConfig,
			ActionType:    input.Body.ActionType,
			ActionConfig:  input.Body.ActionConfig,
			Enabled:       input.Body.Enabled,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.AutomationRule `json:"body"`
		}{Body: rule}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-rule",
		Method:      http.MethodDelete,
		Path:        "/automation/{id}",
		Summary:     "Delete automation rule",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct{}, error) {
		if err := e.DeleteRule(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "trigger-rule",
		Method:      http.MethodPost,
		Path:        "/automation/{id}/trigger",
		Summary:     "Run a rule by hand",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   int64              `path:"id"`
		Body TriggerRuleRequest `json:"body"`
	}) (*struct {
		Body TriggerRuleResponse `json:"body"`
	}, error) {
		status, message, err := e.TriggerRule(ctx, input.ID, input.Body.EventData)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TriggerRuleResponse `json:"body"`
		}{Body: TriggerRuleResponse{Status: status, Message: message}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "automation-logs",
		Method:      http.MethodGet,
		Path:        "/automation/logs",
		Summary:     "List automation execution logs",
	}, func(ctx context.Context, input *struct {
		RuleID int64 `query:"rule_id"`
		Limit  int   `query:"limit" default:"50"`
	}) (*struct {
		Body []domain.AutomationLogEntry `json:"body"`
	}, error) {
		logs, err := e.Repo.ListAutomationLogs(ctx, input.RuleID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.AutomationLogEntry `json:"body"`
		}{Body: logs}, nil
	})
}

func registerIntegrations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-integration",
		Method:        http.MethodPost,
		Path:          "/integrations",
		Summary:       "Create integration",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateIntegrationRequest `json:"body"`
	}) (*struct {
		Body domain.Integration `json:"body"`
	}, error) {
		integration, err := e.CreateIntegration(ctx, engine.IntegrationOptions{
			Name:      input.Body.Name,
			Type:      input.Body.Type,
			Config:    input.Body.Config,
			Enabled:   input.Body.Enabled,
			CreatedBy: userIDFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Integration `json:"body"`
		}{Body: integration}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-integrations",
		Method:      http.MethodGet,
		Path:        "/integrations",
		Summary:     "List integrations",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Integration `json:"body"`
	}, error) {
		integrations, err := e.Repo.ListIntegrations(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Integration `json:"body"`
		}{Body: integrations}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-integration",
		Method:      http.MethodPut,
		Path:        "/integrations/{id}",
		Summary:     "Update integration",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64                    `path:"id"`
		Body UpdateIntegrationRequest `json:"body"`
	}) (*struct {
		Body domain.Integration `json:"body"`
	}, error) {
		integration, err := e.UpdateIntegration(ctx, input.ID, input.Body.Name, input.Body.Config, input.Body.Enabled)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Integration `json:"body"`
		}{Body: integration}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-integration",
		Method:      http.MethodDelete,
		Path:        "/integrations/{id}",
		Summary:     "Delete integration",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct{}, error) {
		if err := e.DeleteIntegration(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/keys",
		Summary:       "Create API key",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		raw := "tb_" + strings.ReplaceAll(uuid.NewString(), "-", "")
		key := domain.APIKey{
			ID:        uuid.NewString(),
			Name:      input.Body.Name,
			KeyHash:   repo.HashAPIKey(raw),
			CreatedAt: e.Now().UTC().Format(time.RFC3339),
		}
		if err := e.Repo.InsertAPIKey(ctx, key); err != nil {
			return nil, handleError(err)
		}
		// The plaintext key is shown exactly once.
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: APIKeyResponse{ID: key.ID, Name: key.Name, Key: raw, CreatedAt: key.CreatedAt}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/keys",
		Summary:     "List API keys",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []APIKeyResponse `json:"body"`
	}, error) {
		keys, err := e.Repo.ListAPIKeys(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		resp := make([]APIKeyResponse, 0, len(keys))
		for _, k := range keys {
			resp = append(resp, APIKeyResponse{ID: k.ID, Name: k.Name, CreatedAt: k.CreatedAt})
		}
		return &struct {
			Body []APIKeyResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-api-key",
		Method:      http.MethodDelete,
		Path:        "/keys/{id}",
		Summary:     "Delete API key",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := e.Repo.DeleteAPIKey(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
