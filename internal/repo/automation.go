package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"taskboard/internal/domain"
)

// --- automation rules ---

const ruleColumns = `id,name,trigger_type,trigger_config,action_type,action_config,enabled,created_by,created_at,updated_at`

func (r Repo) InsertRule(ctx context.Context, rule domain.AutomationRule) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO automation_rules(name,trigger_type,trigger_config,action_type,action_config,enabled,created_by,created_at,updated_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		rule.Name, rule.TriggerType, rule.TriggerConfig, rule.ActionType, rule.ActionConfig,
		boolToInt(rule.Enabled), nullableInt64Ptr(rule.CreatedBy), rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetRule(ctx context.Context, id int64) (domain.AutomationRule, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM automation_rules WHERE id=?`, id)
	return scanRule(row)
}

func (r Repo) ListRules(ctx context.Context) ([]domain.AutomationRule, error) {
	return r.listRules(ctx, `SELECT `+ruleColumns+` FROM automation_rules ORDER BY created_at DESC, id DESC`)
}

// EnabledRulesByTrigger returns enabled rules for one trigger type, in
// storage order. The automation engine evaluates them independently in this
// order.
func (r Repo) EnabledRulesByTrigger(ctx context.Context, triggerType string) ([]domain.AutomationRule, error) {
	return r.listRules(ctx, `SELECT `+ruleColumns+` FROM automation_rules WHERE trigger_type=? AND enabled=1 ORDER BY id ASC`, triggerType)
}

func (r Repo) UpdateRule(ctx context.Context, id int64, name, triggerType, triggerConfig, actionType, actionConfig *string, enabled *bool, now string) error {
	var (
		fields []string
		args   []any
	)
	if name != nil {
		fields = append(fields, "name=?")
		args = append(args, *name)
	}
	if triggerType != nil {
		fields = append(fields, "trigger_type=?")
		args = append(args, *triggerType)
	}
	if triggerConfig != nil {
		fields = append(fields, "trigger_config=?")
		args = append(args, *triggerConfig)
	}
	if actionType != nil {
		fields = append(fields, "action_type=?")
		args = append(args, *actionType)
	}
	if actionConfig != nil {
		fields = append(fields, "action_config=?")
		args = append(args, *actionConfig)
	}
	if enabled != nil {
		fields = append(fields, "enabled=?")
		args = append(args, boolToInt(*enabled))
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, now, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE automation_rules SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteRule(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM automation_rules WHERE id=?`, id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) listRules(ctx context.Context, query string, args ...any) ([]domain.AutomationRule, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AutomationRule
	for rows.Next() {
		var rule domain.AutomationRule
		var enabled int
		var createdBy sql.NullInt64
		if err := rows.Scan(&rule.ID, &rule.Name, &rule.TriggerType, &rule.TriggerConfig,
			&rule.ActionType, &rule.ActionConfig, &enabled, &createdBy, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
			return nil, err
		}
		rule.Enabled = enabled != 0
		if createdBy.Valid {
			rule.CreatedBy = &createdBy.Int64
		}
		res = append(res, rule)
	}
	return res, rows.Err()
}

func scanRule(row *sql.Row) (domain.AutomationRule, error) {
	var rule domain.AutomationRule
	var enabled int
	var createdBy sql.NullInt64
	err := row.Scan(&rule.ID, &rule.Name, &rule.TriggerType, &rule.TriggerConfig,
		&rule.ActionType, &rule.ActionConfig, &enabled, &createdBy, &rule.CreatedAt, &rule.UpdatedAt)
	if err == sql.ErrNoRows {
		return rule, ErrNotFound
	}
	if err != nil {
		return rule, err
	}
	rule.Enabled = enabled != 0
	if createdBy.Valid {
		rule.CreatedBy = &createdBy.Int64
	}
	return rule, nil
}

// --- automation logs ---

func (r Repo) InsertAutomationLog(ctx context.Context, ruleID int64, status, message, now string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO automation_logs(rule_id,status,message,created_at) VALUES (?,?,?,?)`,
		ruleID, status, nullable(message), now)
	return err
}

func (r Repo) ListAutomationLogs(ctx context.Context, ruleID int64, limit int) ([]domain.AutomationLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	clauses := []string{"1=1"}
	var args []any
	if ruleID > 0 {
		clauses = append(clauses, "al.rule_id=?")
		args = append(args, ruleID)
	}
	query := fmt.Sprintf(`SELECT al.id,al.rule_id,ar.name,al.status,COALESCE(al.message,''),al.created_at
		FROM automation_logs al JOIN automation_rules ar ON al.rule_id=ar.id
		WHERE %s ORDER BY al.id DESC LIMIT ?`, strings.Join(clauses, " AND "))
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AutomationLogEntry
	for rows.Next() {
		var e domain.AutomationLogEntry
		if err := rows.Scan(&e.ID, &e.RuleID, &e.RuleName, &e.Status, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// DeleteAutomationLogsBefore removes log rows older than cutoff and reports
// how many were deleted.
func (r Repo) DeleteAutomationLogsBefore(ctx context.Context, cutoff string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM automation_logs WHERE created_at<?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- integrations ---

const integrationColumns = `id,name,type,config,enabled,created_by,created_at,updated_at`

func (r Repo) InsertIntegration(ctx context.Context, in domain.Integration) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO integrations(name,type,config,enabled,created_by,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		in.Name, in.Type, in.Config, boolToInt(in.Enabled), nullableInt64Ptr(in.CreatedBy), in.CreatedAt, in.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetIntegration(ctx context.Context, id int64) (domain.Integration, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+integrationColumns+` FROM integrations WHERE id=?`, id)
	return scanIntegration(row)
}

// GetEnabledWebhook resolves one enabled n8n_webhook integration by id.
func (r Repo) GetEnabledWebhook(ctx context.Context, id int64) (domain.Integration, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+integrationColumns+` FROM integrations WHERE id=? AND type='n8n_webhook' AND enabled=1`, id)
	return scanIntegration(row)
}

// ListEnabledWebhooks returns every enabled n8n_webhook integration, the
// notification fan-out target set.
func (r Repo) ListEnabledWebhooks(ctx context.Context) ([]domain.Integration, error) {
	return r.listIntegrations(ctx, `SELECT `+integrationColumns+` FROM integrations WHERE type='n8n_webhook' AND enabled=1 ORDER BY id ASC`)
}

func (r Repo) ListIntegrations(ctx context.Context) ([]domain.Integration, error) {
	return r.listIntegrations(ctx, `SELECT `+integrationColumns+` FROM integrations ORDER BY created_at DESC, id DESC`)
}

func (r Repo) UpdateIntegration(ctx context.Context, id int64, name, config *string, enabled *bool, now string) error {
	var (
		fields []string
		args   []any
	)
	if name != nil {
		fields = append(fields, "name=?")
		args = append(args, *name)
	}
	if config != nil {
		fields = append(fields, "config=?")
		args = append(args, *config)
	}
	if enabled != nil {
		fields = append(fields, "enabled=?")
		args = append(args, boolToInt(*enabled))
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, now, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE integrations SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteIntegration(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM integrations WHERE id=?`, id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) listIntegrations(ctx context.Context, query string, args ...any) ([]domain.Integration, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Integration
	for rows.Next() {
		var in domain.Integration
		var enabled int
		var createdBy sql.NullInt64
		if err := rows.Scan(&in.ID, &in.Name, &in.Type, &in.Config, &enabled, &createdBy, &in.CreatedAt, &in.UpdatedAt); err != nil {
			return nil, err
		}
		in.Enabled = enabled != 0
		if createdBy.Valid {
			in.CreatedBy = &createdBy.Int64
		}
		res = append(res, in)
	}
	return res, rows.Err()
}

func scanIntegration(row *sql.Row) (domain.Integration, error) {
	var in domain.Integration
	var enabled int
	var createdBy sql.NullInt64
	err := row.Scan(&in.ID, &in.Name, &in.Type, &in.Config, &enabled, &createdBy, &in.CreatedAt, &in.UpdatedAt)
	if err == sql.ErrNoRows {
		return in, ErrNotFound
	}
	if err != nil {
		return in, err
	}
	in.Enabled = enabled != 0
	if createdBy.Valid {
		in.CreatedBy = &createdBy.Int64
	}
	return in, nil
}
