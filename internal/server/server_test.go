package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"taskboard/internal/automation"
	"taskboard/internal/config"
	"taskboard/internal/db"
	"taskboard/internal/domain"
	"taskboard/internal/engine"
	"taskboard/internal/eventlog"
	"taskboard/internal/migrate"
	"taskboard/internal/repo"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	Events *eventlog.Log
	client *http.Client
}

func (s *testServer) Client() *http.Client { return s.client }

func newTestServer(t *testing.T, auth AuthConfig) *testServer {
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
	}
	eng.Automation = automation.NewEngine(eng.Repo, exec, zerolog.Nop())

	auth.Logger = zerolog.Nop()
	handler, err := New(Config{Engine: eng, Events: events, BasePath: "/api", Auth: auth})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	t.Cleanup(func() {
		srv.Close()
		ln.Close()
	})
	return &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: eng,
		Events: events,
		client: &http.Client{},
	}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func anonAuth() AuthConfig {
	return AuthConfig{AllowAnonymous: true}
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope %q: %v", string(data), err)
	}
	return envelope.Error.Code
}

func TestBoardLifecycle(t *testing.T) {
	srv := newTestServer(t, anonAuth())
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/boards", map[string]any{
		"name": "Main",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create board status %d: %s", res.StatusCode, string(data))
	}
	var board BoardResponse
	if err := json.Unmarshal(data, &board); err != nil {
		t.Fatalf("unmarshal board: %v", err)
	}
	if len(board.Columns) != 3 {
		t.Fatalf("expected 3 seeded columns, got %d", len(board.Columns))
	}

	res, data = doJSON(t, client, http.MethodPut, srv.URL+fmt.Sprintf("/api/boards/%d", board.ID), map[string]any{
		"name": "Renamed",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update board status %d: %s", res.StatusCode, string(data))
	}
	var updated BoardResponse
	_ = json.Unmarshal(data, &updated)
	if updated.Name != "Renamed" {
		t.Fatalf("expected renamed board, got %q", updated.Name)
	}

	res, _ = doJSON(t, client, http.MethodDelete, srv.URL+fmt.Sprintf("/api/boards/%d", board.ID), nil, nil)
	if res.StatusCode != http.StatusNoContent && res.StatusCode != http.StatusOK {
		t.Fatalf("delete board status %d", res.StatusCode)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+fmt.Sprintf("/api/boards/%d", board.ID), nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "not_found" {
		t.Fatalf("expected not_found code, got %q", code)
	}
}

func createTestBoard(t *testing.T, srv *testServer) BoardResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/boards", map[string]any{
		"name": "Board",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create board status %d: %s", res.StatusCode, string(data))
	}
	var board BoardResponse
	if err := json.Unmarshal(data, &board); err != nil {
		t.Fatalf("unmarshal board: %v", err)
	}
	return board
}

func TestTaskEndpoints(t *testing.T) {
	srv := newTestServer(t, anonAuth())
	client := srv.Client()
	board := createTestBoard(t, srv)
	todo, done := board.Columns[0], board.Columns[2]

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/tasks", map[string]any{
		"title":     "Write report",
		"column_id": todo.ID,
		"priority":  "high",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task status %d: %s", res.StatusCode, string(data))
	}
	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if task.Priority != "high" {
		t.Fatalf("expected high priority, got %q", task.Priority)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+fmt.Sprintf("/api/tasks/%d/move", task.ID), map[string]any{
		"column_id": done.ID,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("move task status %d: %s", res.StatusCode, string(data))
	}
	var moved domain.Task
	_ = json.Unmarshal(data, &moved)
	if moved.ColumnID != done.ID {
		t.Fatalf("expected column %d, got %d", done.ID, moved.ColumnID)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+fmt.Sprintf("/api/tasks/%d/history", task.ID), nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("history status %d: %s", res.StatusCode, string(data))
	}
	var history []domain.TaskHistoryEntry
	if err := json.Unmarshal(data, &history); err != nil {
		t.Fatalf("unmarshal history: %v", err)
	}
	if len(history) != 2 || history[0].Action != "moved" {
		t.Fatalf("expected moved entry first of 2, got %+v", history)
	}
}

func TestTaskValidationErrors(t *testing.T) {
	srv := newTestServer(t, anonAuth())
	client := srv.Client()
	board := createTestBoard(t, srv)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/tasks", map[string]any{
		"column_id": board.Columns[0].ID,
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing title, got %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "bad_request" {
		t.Fatalf("expected bad_request code, got %q", code)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/tasks", map[string]any{
		"title":     "Orphan",
		"column_id": 9999,
	}, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown column, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/tasks/424242", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown task, got %d: %s", res.StatusCode, string(data))
	}
}

func TestRuleEndpointsAndManualTrigger(t *testing.T) {
	srv := newTestServer(t, anonAuth())
	client := srv.Client()
	board := createTestBoard(t, srv)
	done := board.Columns[2]

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/tasks", map[string]any{
		"title":     "Escalate me",
		"column_id": board.Columns[0].ID,
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task status %d: %s", res.StatusCode, string(data))
	}
	var task domain.Task
	_ = json.Unmarshal(data, &task)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/automation", map[string]any{
		"name":          "Sweep to done",
		"trigger_type":  "task_updated",
		"action_type":   "move_task",
		"action_config": fmt.Sprintf(`{"columnId": %d}`, done.ID),
		"enabled":       false,
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create rule status %d: %s", res.StatusCode, string(data))
	}
	var rule domain.AutomationRule
	if err := json.Unmarshal(data, &rule); err != nil {
		t.Fatalf("unmarshal rule: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+fmt.Sprintf("/api/automation/%d/trigger", rule.ID), map[string]any{}, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for disabled rule, got %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "rule_disabled" {
		t.Fatalf("expected rule_disabled code, got %q", code)
	}

	res, data = doJSON(t, client, http.MethodPut, srv.URL+fmt.Sprintf("/api/automation/%d", rule.ID), map[string]any{
		"enabled": true,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("enable rule status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+fmt.Sprintf("/api/automation/%d/trigger", rule.ID), map[string]any{
		"event_data": map[string]any{"taskId": task.ID},
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("trigger status %d: %s", res.StatusCode, string(data))
	}
	var triggered TriggerRuleResponse
	if err := json.Unmarshal(data, &triggered); err != nil {
		t.Fatalf("unmarshal trigger response: %v", err)
	}
	if triggered.Status != "success" {
		t.Fatalf("expected success, got %+v", triggered)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+fmt.Sprintf("/api/automation/logs?rule_id=%d", rule.ID), nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("logs status %d: %s", res.StatusCode, string(data))
	}
	var logs []domain.AutomationLogEntry
	if err := json.Unmarshal(data, &logs); err != nil {
		t.Fatalf("unmarshal logs: %v", err)
	}
	if len(logs) != 1 || logs[0].Status != "success" {
		t.Fatalf("expected one success log, got %+v", logs)
	}
}

func TestRuleValidationRejected(t *testing.T) {
	srv := newTestServer(t, anonAuth())

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/automation", map[string]any{
		"name":         "Bad trigger",
		"trigger_type": "task_exploded",
		"action_type":  "webhook",
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", res.StatusCode, string(data))
	}
	if !strings.Contains(string(data), "invalid trigger type") {
		t.Fatalf("expected trigger type message, got %s", string(data))
	}
}

func TestAPIKeyRoundTrip(t *testing.T) {
	srv := newTestServer(t, anonAuth())
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/keys", map[string]any{
		"name": "ci",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create key status %d: %s", res.StatusCode, string(data))
	}
	var created APIKeyResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal key: %v", err)
	}
	if created.Key == "" {
		t.Fatal("expected plaintext key on create")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/keys", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list keys status %d: %s", res.StatusCode, string(data))
	}
	var listed []APIKeyResponse
	if err := json.Unmarshal(data, &listed); err != nil {
		t.Fatalf("unmarshal keys: %v", err)
	}
	if len(listed) != 1 || listed[0].Key != "" {
		t.Fatalf("expected one key with no plaintext, got %+v", listed)
	}
}

func TestAuthRequiredWithoutAnonymous(t *testing.T) {
	srv := newTestServer(t, AuthConfig{JWTSecret: "test-secret"})
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/api/boards", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "unauthorized" {
		t.Fatalf("expected unauthorized code, got %q", code)
	}

	// Health stays open.
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/api/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected health 200, got %d", res.StatusCode)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/boards", nil, map[string]string{
		"Authorization": "Bearer " + signed,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/boards", nil, map[string]string{
		"Authorization": "Bearer garbage",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d: %s", res.StatusCode, string(data))
	}
}

func TestAPIKeyAuthentication(t *testing.T) {
	srv := newTestServer(t, anonAuth())
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/keys", map[string]any{
		"name": "agent",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create key status %d: %s", res.StatusCode, string(data))
	}
	var created APIKeyResponse
	_ = json.Unmarshal(data, &created)

	locked := newTestServer(t, AuthConfig{JWTSecret: "other"})
	// Share the key by inserting the same hash into the locked server.
	if err := locked.Engine.Repo.InsertAPIKey(context.Background(), domain.APIKey{
		ID:        "k-1",
		Name:      "agent",
		KeyHash:   repo.HashAPIKey(created.Key),
		CreatedAt: "2026-01-01T00:00:00Z",
	}); err != nil {
		t.Fatalf("insert key: %v", err)
	}

	res, data = doJSON(t, client, http.MethodGet, locked.URL+"/api/boards", nil, map[string]string{
		"X-Api-Key": created.Key,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with api key, got %d: %s", res.StatusCode, string(data))
	}

	res, _ = doJSON(t, client, http.MethodGet, locked.URL+"/api/boards", nil, map[string]string{
		"X-Api-Key": "nope",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown key, got %d", res.StatusCode)
	}
}
