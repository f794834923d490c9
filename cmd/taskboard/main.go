package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskboard/internal/automation"
	"taskboard/internal/config"
	"taskboard/internal/db"
	"taskboard/internal/domain"
	"taskboard/internal/engine"
	"taskboard/internal/eventlog"
	"taskboard/internal/migrate"
	"taskboard/internal/repo"
	"taskboard/internal/scheduler"
	"taskboard/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "taskboard",
	Short: "Taskboard CLI",
	Long: `Taskboard is a kanban board with event-driven automation.
- Boards hold columns, columns hold tasks.
- Every mutation lands in an in-memory event log that clients sync from.
- Automation rules react to events (task_created, task_moved, ...) with
  actions: webhooks, notifications, or follow-up task mutations.
- A scheduler sweeps due dates, generates recurring task instances, and
  prunes old automation logs.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TASKBOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Bool("verbose", false, "debug logging")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func registerCommands() {
	rootCmd.AddCommand(boardCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(ruleCmd())
	rootCmd.AddCommand(integrationCmd())
	rootCmd.AddCommand(logsCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if viper.GetBool("verbose") {
		level = zerolog.DebugLevel
	}
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// --- boards ---

func boardCmd() *cobra.Command {
	board := &cobra.Command{Use: "board", Short: "Manage boards"}
	board.AddCommand(boardListCmd())
	board.AddCommand(boardCreateCmd())
	board.AddCommand(boardShowCmd())
	board.AddCommand(boardDeleteCmd())
	return board
}

func boardListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List boards",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				boards, err := r.ListBoards(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(boards)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Description", "Created"})
				for _, b := range boards {
					tw.AppendRow(table.Row{b.ID, b.Name, b.Description, b.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func boardCreateCmd() *cobra.Command {
	var name, desc string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create board",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				board, err := e.CreateBoard(ctx, engine.BoardCreateOptions{Name: name, Description: desc})
				if err != nil {
					return err
				}
				return printJSON(board)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "board name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func boardShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show board with columns and tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				board, err := r.GetBoard(ctx, id)
				if err != nil {
					return err
				}
				columns, err := r.ListColumns(ctx, board.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"board": board, "columns": columns})
				}
				fmt.Printf("%s (#%d)\n", board.Name, board.ID)
				for _, col := range columns {
					tasks, err := r.ListTasksByColumn(ctx, col.ID)
					if err != nil {
						return err
					}
					fmt.Printf("  %s\n", col.Name)
					for _, t := range tasks {
						due := ""
						if t.DueDate != nil {
							due = " due " + *t.DueDate
						}
						fmt.Printf("    #%d %s [%s]%s\n", t.ID, t.Title, t.Priority, due)
					}
				}
				return nil
			})
		},
	}
	return cmd
}

func boardDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete board",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteBoard(ctx, id)
			})
		},
	}
	return cmd
}

// --- tasks ---

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage tasks"}
	task.AddCommand(taskListCmd())
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskMoveCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskDeleteCmd())
	task.AddCommand(taskHistoryCmd())
	return task
}

func taskListCmd() *cobra.Command {
	var columnID int64
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks in a column",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				tasks, err := r.ListTasksByColumn(ctx, columnID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Priority", "Due", "Pinned"})
				for _, t := range tasks {
					due := ""
					if t.DueDate != nil {
						due = *t.DueDate
					}
					tw.AppendRow(table.Row{t.ID, t.Title, t.Priority, due, t.Pinned})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&columnID, "column", 0, "column id")
	_ = cmd.MarkFlagRequired("column")
	return cmd
}

func taskCreateCmd() *cobra.Command {
	var title, desc, priority, due, rule string
	var columnID int64
	var pinned bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				task, err := e.CreateTask(ctx, engine.TaskCreateOptions{
					Title:         title,
					Description:   desc,
					ColumnID:      columnID,
					Priority:      priority,
					DueDate:       optionalString(due),
					RecurringRule: optionalString(rule),
					Pinned:        pinned,
				})
				if err != nil {
					return err
				}
				return printJSON(task)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().Int64Var(&columnID, "column", 0, "column id")
	cmd.Flags().StringVar(&priority, "priority", "", "low|medium|high")
	cmd.Flags().StringVar(&due, "due", "", "due date (RFC3339)")
	cmd.Flags().StringVar(&rule, "recurring", "", `recurrence JSON, e.g. {"frequency":"daily"}`)
	cmd.Flags().BoolVar(&pinned, "pinned", false, "pin task")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("column")
	return cmd
}

func taskMoveCmd() *cobra.Command {
	var columnID int64
	cmd := &cobra.Command{
		Use:   "move <id>",
		Short: "Move task to another column",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				task, err := e.MoveTask(ctx, id, columnID, nil)
				if err != nil {
					return err
				}
				return printJSON(task)
			})
		},
	}
	cmd.Flags().Int64Var(&columnID, "to", 0, "target column id")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var title, desc, priority, due, rule string
	var clearDue, clearRule bool
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update task fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				task, err := e.UpdateTask(ctx, engine.TaskUpdateOptions{
					ID:            id,
					Title:         optionalString(title),
					Description:   optionalString(desc),
					Priority:      optionalString(priority),
					DueDate:       optionalString(due),
					ClearDueDate:  clearDue,
					RecurringRule: optionalString(rule),
					ClearRule:     clearRule,
				})
				if err != nil {
					return err
				}
				return printJSON(task)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&priority, "priority", "", "low|medium|high")
	cmd.Flags().StringVar(&due, "due", "", "due date (RFC3339)")
	cmd.Flags().StringVar(&rule, "recurring", "", "recurrence JSON")
	cmd.Flags().BoolVar(&clearDue, "clear-due", false, "remove due date")
	cmd.Flags().BoolVar(&clearRule, "clear-recurring", false, "remove recurrence")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteTask(ctx, id, nil)
			})
		},
	}
	return cmd
}

func taskHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Show task history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				entries, err := r.ListTaskHistory(ctx, id, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"When", "Action", "Old", "New"})
				for _, h := range entries {
					tw.AppendRow(table.Row{h.CreatedAt, h.Action, deref(h.OldValue), deref(h.NewValue)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "n", 50, "number of entries")
	return cmd
}

// --- automation rules ---

func ruleCmd() *cobra.Command {
	rule := &cobra.Command{Use: "rule", Short: "Manage automation rules"}
	rule.AddCommand(ruleListCmd())
	rule.AddCommand(ruleCreateCmd())
	rule.AddCommand(ruleToggleCmd("enable", "Enable rule", true))
	rule.AddCommand(ruleToggleCmd("disable", "Disable rule", false))
	rule.AddCommand(ruleTriggerCmd())
	rule.AddCommand(ruleDeleteCmd())
	return rule
}

func ruleListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List automation rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				rules, err := r.ListRules(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rules)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Trigger", "Action", "Enabled"})
				for _, rule := range rules {
					tw.AppendRow(table.Row{rule.ID, rule.Name, rule.TriggerType, rule.ActionType, rule.Enabled})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func ruleCreateCmd() *cobra.Command {
	var name, trigger, triggerConfig, action, actionConfig string
	var disabled bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create automation rule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rule, err := e.CreateRule(ctx, engine.RuleOptions{
					Name:          name,
					TriggerType:   trigger,
					TriggerConfig: triggerConfig,
					ActionType:    action,
					ActionConfig:  actionConfig,
					Enabled:       !disabled,
				})
				if err != nil {
					return err
				}
				return printJSON(rule)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "rule name")
	cmd.Flags().StringVar(&trigger, "on", "", "trigger type (task_created, task_moved, ...)")
	cmd.Flags().StringVar(&triggerConfig, "when", "", "trigger predicate JSON")
	cmd.Flags().StringVar(&action, "do", "", "action type (webhook, notification, move_task, update_task, create_task)")
	cmd.Flags().StringVar(&actionConfig, "with", "", "action config JSON")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "create disabled")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("on")
	_ = cmd.MarkFlagRequired("do")
	return cmd
}

func ruleToggleCmd(use, short string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rule, err := e.UpdateRule(ctx, engine.RuleUpdateOptions{ID: id, Enabled: &enabled})
				if err != nil {
					return err
				}
				return printJSON(rule)
			})
		},
	}
}

func ruleTriggerCmd() *cobra.Command {
	var data string
	cmd := &cobra.Command{
		Use:   "trigger <id>",
		Short: "Run a rule by hand",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			eventData, err := parseJSONMap(data)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				status, message, err := e.TriggerRule(ctx, id, eventData)
				if err != nil {
					return err
				}
				return printJSON(map[string]string{"status": status, "message": message})
			})
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "event data JSON")
	return cmd
}

func ruleDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteRule(ctx, id)
			})
		},
	}
}

// --- integrations ---

func integrationCmd() *cobra.Command {
	integration := &cobra.Command{Use: "integration", Short: "Manage outbound integrations"}
	integration.AddCommand(integrationListCmd())
	integration.AddCommand(integrationCreateCmd())
	integration.AddCommand(integrationDeleteCmd())
	return integration
}

func integrationListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List integrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListIntegrations(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Type", "Enabled"})
				for _, it := range items {
					tw.AppendRow(table.Row{it.ID, it.Name, it.Type, it.Enabled})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func integrationCreateCmd() *cobra.Command {
	var name, kind, cfgJSON string
	var disabled bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create integration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				item, err := e.CreateIntegration(ctx, engine.IntegrationOptions{
					Name:    name,
					Type:    kind,
					Config:  cfgJSON,
					Enabled: !disabled,
				})
				if err != nil {
					return err
				}
				return printJSON(item)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "integration name")
	cmd.Flags().StringVar(&kind, "type", "", "integration type")
	cmd.Flags().StringVar(&cfgJSON, "config", "", `config JSON, e.g. {"webhookUrl":"https://..."}`)
	cmd.Flags().BoolVar(&disabled, "disabled", false, "create disabled")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func integrationDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete integration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteIntegration(ctx, id)
			})
		},
	}
}

// --- automation logs / events ---

func logsCmd() *cobra.Command {
	var ruleID int64
	var limit int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show automation execution logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				entries, err := r.ListAutomationLogs(ctx, ruleID, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"When", "Rule", "Status", "Message"})
				for _, entry := range entries {
					tw.AppendRow(table.Row{entry.CreatedAt, entry.RuleName, entry.Status, entry.Message})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&ruleID, "rule", 0, "filter by rule id")
	cmd.Flags().IntVar(&limit, "n", 50, "number of entries")
	return cmd
}

func eventsCmd() *cobra.Command {
	var since, lastID string
	var limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Fetch buffered events from a running server",
		Long:  "Events live in server memory; this queries the sync endpoint of a running taskboard serve instance.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			url := fmt.Sprintf("http://%s%s/sync/events?since=%s&lastEventId=%s&limit=%d",
				cfg.Server.Addr, cfg.Server.BasePath, since, lastID, limit)
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			res, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("is the server running? %w", err)
			}
			defer res.Body.Close()
			var events []domain.Event
			if err := decodeJSON(res, &events); err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(events)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Type", "Timestamp"})
			for _, evt := range events {
				tw.AppendRow(table.Row{evt.ID, evt.Type(), evt.Timestamp})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "timestamp cursor")
	cmd.Flags().StringVar(&lastID, "after", "", "event id cursor")
	cmd.Flags().IntVar(&limit, "n", 50, "max events")
	return cmd
}

// --- api keys ---

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyDeleteCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue a new API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				raw := "tb_" + strings.ReplaceAll(uuid.NewString(), "-", "")
				key := domain.APIKey{
					ID:        uuid.NewString(),
					Name:      name,
					KeyHash:   repo.HashAPIKey(raw),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				// Shown once; only the hash is stored.
				return printJSON(map[string]string{"id": key.ID, "name": key.Name, "key": raw})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key name")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func apikeyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
}

// --- serve ---

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			logger := newLogger()
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if basePath != "" {
				cfg.Server.BasePath = basePath
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}

			events := eventlog.New(cfg.Events.BufferSize, logger)
			eng := buildEngine(conn, cfg, events, logger)
			handler, err := server.New(server.Config{
				Engine:   eng,
				Events:   events,
				BasePath: cfg.Server.BasePath,
				Auth: server.AuthConfig{
					JWTSecret:      cfg.Auth.JWTSecret,
					AllowAnonymous: cfg.Auth.AllowAnonymous,
					Logger:         logger,
				},
			})
			if err != nil {
				return err
			}

			var sched *scheduler.Scheduler
			if cfg.Scheduler.Enabled {
				sched = scheduler.New(eng, cfg, logger)
				if err := sched.Start(); err != nil {
					return err
				}
				defer sched.Stop()
			}

			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			logger.Info().Str("addr", cfg.Server.Addr).Str("base_path", cfg.Server.BasePath).Msg("serving taskboard API")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (overrides config)")
	return cmd
}

// --- helpers ---

func buildEngine(conn *sql.DB, cfg *config.Config, events *eventlog.Log, logger zerolog.Logger) engine.Engine {
	eng := engine.New(conn, cfg, events, nil, logger)
	exec := automation.Executor{
		Repo:     eng.Repo,
		Events:   events,
		Webhooks: automation.NewWebhookClient(cfg.WebhookTimeout(), logger),
	}
	eng.Automation = automation.NewEngine(eng.Repo, exec, logger)
	return eng
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	logger := newLogger()
	events := eventlog.New(cfg.Events.BufferSize, logger)
	return fn(ctx, buildEngine(conn, cfg, events, logger))
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func decodeJSON(res *http.Response, v any) error {
	if res.StatusCode >= 400 {
		return fmt.Errorf("server returned %s", res.Status)
	}
	return json.NewDecoder(res.Body).Decode(v)
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func parseJSONMap(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return m, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
