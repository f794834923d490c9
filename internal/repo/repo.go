package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"taskboard/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// --- boards ---

func (r Repo) InsertBoardTx(ctx context.Context, tx *sql.Tx, name, description string, createdBy *int64, now string) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO boards(name,description,created_by,created_at,updated_at) VALUES (?,?,?,?,?)`,
		name, nullable(description), nullableInt64Ptr(createdBy), now, now)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetBoard(ctx context.Context, id int64) (domain.Board, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,name,COALESCE(description,''),created_by,created_at,updated_at FROM boards WHERE id=?`, id)
	return scanBoard(row)
}

func (r Repo) ListBoards(ctx context.Context) ([]domain.Board, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,COALESCE(description,''),created_by,created_at,updated_at FROM boards ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Board
	for rows.Next() {
		var b domain.Board
		var createdBy sql.NullInt64
		if err := rows.Scan(&b.ID, &b.Name, &b.Description, &createdBy, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		if createdBy.Valid {
			b.CreatedBy = &createdBy.Int64
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

func (r Repo) UpdateBoard(ctx context.Context, id int64, name, description *string, now string) error {
	var (
		fields []string
		args   []any
	)
	if name != nil {
		fields = append(fields, "name=?")
		args = append(args, *name)
	}
	if description != nil {
		fields = append(fields, "description=?")
		args = append(args, nullable(*description))
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, now, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE boards SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteBoard(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM boards WHERE id=?`, id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- columns ---

func (r Repo) InsertColumnTx(ctx context.Context, tx *sql.Tx, boardID int64, name string, position int) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO columns(board_id,name,position) VALUES (?,?,?)`, boardID, name, position)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetColumn(ctx context.Context, id int64) (domain.Column, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,board_id,name,position FROM columns WHERE id=?`, id)
	var c domain.Column
	err := row.Scan(&c.ID, &c.BoardID, &c.Name, &c.Position)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) ListColumns(ctx context.Context, boardID int64) ([]domain.Column, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,board_id,name,position FROM columns WHERE board_id=? ORDER BY position ASC`, boardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Column
	for rows.Next() {
		var c domain.Column
		if err := rows.Scan(&c.ID, &c.BoardID, &c.Name, &c.Position); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// --- tasks ---

const taskColumns = `id,title,COALESCE(description,''),column_id,position,priority,due_date,recurring_rule,pinned,created_by,assigned_to,created_at,updated_at`

func (r Repo) InsertTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO tasks(title,description,column_id,position,priority,due_date,recurring_rule,pinned,created_by,assigned_to,created_at,updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.Title, nullable(t.Description), t.ColumnID, t.Position, t.Priority,
		nullableStrPtr(t.DueDate), nullableStrPtr(t.RecurringRule), boolToInt(t.Pinned),
		nullableInt64Ptr(t.CreatedBy), nullableInt64Ptr(t.AssignedTo), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	return scanTask(row)
}

func (r Repo) ListTasksByColumn(ctx context.Context, columnID int64) ([]domain.Task, error) {
	return r.listTasks(ctx, `SELECT `+taskColumns+` FROM tasks WHERE column_id=? ORDER BY position ASC`, columnID)
}

// TasksDueBefore returns tasks with a non-null due date at or before cutoff,
// the due/overdue sweep's working set.
func (r Repo) TasksDueBefore(ctx context.Context, cutoff string) ([]domain.Task, error) {
	return r.listTasks(ctx, `SELECT `+taskColumns+` FROM tasks WHERE due_date IS NOT NULL AND due_date<=? ORDER BY due_date ASC`, cutoff)
}

// TasksWithRecurringRule returns every task carrying a recurrence template.
func (r Repo) TasksWithRecurringRule(ctx context.Context) ([]domain.Task, error) {
	return r.listTasks(ctx, `SELECT `+taskColumns+` FROM tasks WHERE recurring_rule IS NOT NULL ORDER BY id ASC`)
}

// CountTasksByRecurringRule counts tasks whose stored recurring_rule text is
// byte-identical to ruleText. Instances copy the template verbatim, so exact
// string equality identifies a series; hand-edited rows with reordered JSON
// keys fall outside the count.
func (r Repo) CountTasksByRecurringRule(ctx context.Context, ruleText string) (int, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM tasks WHERE recurring_rule=?`, ruleText)
	var n int
	err := row.Scan(&n)
	return n, err
}

// NextPosition returns max(position)+1 for the column.
func (r Repo) NextPosition(ctx context.Context, columnID int64) (int, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(position),0) FROM tasks WHERE column_id=?`, columnID)
	var maxPos int
	if err := row.Scan(&maxPos); err != nil {
		return 0, err
	}
	return maxPos + 1, nil
}

func (r Repo) UpdateTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET title=?,description=?,column_id=?,position=?,priority=?,due_date=?,recurring_rule=?,pinned=?,assigned_to=?,updated_at=? WHERE id=?`,
		t.Title, nullable(t.Description), t.ColumnID, t.Position, t.Priority,
		nullableStrPtr(t.DueDate), nullableStrPtr(t.RecurringRule), boolToInt(t.Pinned),
		nullableInt64Ptr(t.AssignedTo), t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteTaskTx(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// MoveTaskColumn points a task at a new column. Returns the number of rows
// changed; zero means the task does not exist.
func (r Repo) MoveTaskColumn(ctx context.Context, taskID, columnID int64, now string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE tasks SET column_id=?,updated_at=? WHERE id=?`, columnID, now, taskID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UpdateTaskAction applies the update_task automation action's optional
// fields. Returns rows changed; zero means the task does not exist.
func (r Repo) UpdateTaskAction(ctx context.Context, taskID int64, priority, dueDate *string, assignedTo *int64, now string) (int64, error) {
	var (
		fields []string
		args   []any
	)
	if priority != nil {
		fields = append(fields, "priority=?")
		args = append(args, *priority)
	}
	if dueDate != nil {
		fields = append(fields, "due_date=?")
		args = append(args, *dueDate)
	}
	if assignedTo != nil {
		fields = append(fields, "assigned_to=?")
		args = append(args, *assignedTo)
	}
	if len(fields) == 0 {
		return 0, errors.New("no task fields to update")
	}
	fields = append(fields, "updated_at=?")
	args = append(args, now, taskID)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE tasks SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// InsertTask is the non-transactional insert used by the create_task action.
func (r Repo) InsertTask(ctx context.Context, t domain.Task) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO tasks(title,description,column_id,position,priority,due_date,recurring_rule,pinned,created_by,assigned_to,created_at,updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.Title, nullable(t.Description), t.ColumnID, t.Position, t.Priority,
		nullableStrPtr(t.DueDate), nullableStrPtr(t.RecurringRule), boolToInt(t.Pinned),
		nullableInt64Ptr(t.CreatedBy), nullableInt64Ptr(t.AssignedTo), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) listTasks(ctx context.Context, query string, args ...any) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTaskRows(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// --- tags ---

func (r Repo) ListTaskTags(ctx context.Context, taskID int64) ([]domain.Tag, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT t.id,t.name,COALESCE(t.color,'') FROM tags t JOIN task_tags tt ON tt.tag_id=t.id WHERE tt.task_id=? ORDER BY t.name ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Tag
	for rows.Next() {
		var t domain.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Color); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// CopyTaskTagsTx links the destination task to every tag of the source task.
func (r Repo) CopyTaskTagsTx(ctx context.Context, tx *sql.Tx, fromTaskID, toTaskID int64) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO task_tags(task_id,tag_id) SELECT ?,tag_id FROM task_tags WHERE task_id=?`, toTaskID, fromTaskID)
	return err
}

// --- history ---

func (r Repo) InsertTaskHistoryTx(ctx context.Context, tx *sql.Tx, taskID int64, action string, oldValue, newValue *string, userID *int64, now string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO task_history(task_id,action,old_value,new_value,user_id,created_at) VALUES (?,?,?,?,?,?)`,
		taskID, action, nullableStrPtr(oldValue), nullableStrPtr(newValue), nullableInt64Ptr(userID), now)
	return err
}

func (r Repo) ListTaskHistory(ctx context.Context, taskID int64, limit int) ([]domain.TaskHistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,task_id,action,old_value,new_value,user_id,created_at FROM task_history WHERE task_id=? ORDER BY id DESC LIMIT ?`, taskID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TaskHistoryEntry
	for rows.Next() {
		var h domain.TaskHistoryEntry
		var oldV, newV sql.NullString
		var userID sql.NullInt64
		if err := rows.Scan(&h.ID, &h.TaskID, &h.Action, &oldV, &newV, &userID, &h.CreatedAt); err != nil {
			return nil, err
		}
		if oldV.Valid {
			h.OldValue = &oldV.String
		}
		if newV.Valid {
			h.NewValue = &newV.String
		}
		if userID.Valid {
			h.UserID = &userID.Int64
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

// --- scan helpers ---

func scanBoard(row *sql.Row) (domain.Board, error) {
	var b domain.Board
	var createdBy sql.NullInt64
	err := row.Scan(&b.ID, &b.Name, &b.Description, &createdBy, &b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return b, ErrNotFound
	}
	if createdBy.Valid {
		b.CreatedBy = &createdBy.Int64
	}
	return b, err
}

func scanTask(row *sql.Row) (domain.Task, error) {
	var t domain.Task
	var dueDate, recurring sql.NullString
	var pinned int
	var createdBy, assignedTo sql.NullInt64
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.ColumnID, &t.Position, &t.Priority,
		&dueDate, &recurring, &pinned, &createdBy, &assignedTo, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	applyTaskNulls(&t, dueDate, recurring, pinned, createdBy, assignedTo)
	return t, nil
}

func scanTaskRows(rows *sql.Rows) (domain.Task, error) {
	var t domain.Task
	var dueDate, recurring sql.NullString
	var pinned int
	var createdBy, assignedTo sql.NullInt64
	err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.ColumnID, &t.Position, &t.Priority,
		&dueDate, &recurring, &pinned, &createdBy, &assignedTo, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	applyTaskNulls(&t, dueDate, recurring, pinned, createdBy, assignedTo)
	return t, nil
}

func applyTaskNulls(t *domain.Task, dueDate, recurring sql.NullString, pinned int, createdBy, assignedTo sql.NullInt64) {
	if dueDate.Valid {
		t.DueDate = &dueDate.String
	}
	if recurring.Valid {
		t.RecurringRule = &recurring.String
	}
	t.Pinned = pinned != 0
	if createdBy.Valid {
		t.CreatedBy = &createdBy.Int64
	}
	if assignedTo.Valid {
		t.AssignedTo = &assignedTo.Int64
	}
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStrPtr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableInt64Ptr(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
