package policy

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// timeLayout sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// AuditStore persists admission decisions in the policy_decisions table of
// the task index database.
type AuditStore struct {
	db *sql.DB
}

// NewAuditStore wraps an open database whose schema already has the table.
func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

// SaveDecision inserts a decision, filling in a missing id and time.
func (s *AuditStore) SaveDecision(d *Decision) error {
	if d == nil {
		return fmt.Errorf("decision is nil")
	}
	if d.DecisionID == "" {
		d.DecisionID = uuid.New().String()
	}
	if d.EvaluatedAt.IsZero() {
		d.EvaluatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(`
		INSERT INTO policy_decisions (
			decision_id, policy_path, result, violations, warnings, input_json, task_id, evaluated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.DecisionID,
		d.PolicyPath,
		d.Result,
		d.ViolationsJSON(),
		d.WarningsJSON(),
		d.InputJSON(),
		nullString(d.TaskID),
		d.EvaluatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert policy decision: %w", err)
	}
	return nil
}

// ListDecisions returns decisions newest first. An empty taskID lists all;
// limit <= 0 means no limit.
func (s *AuditStore) ListDecisions(taskID string, limit int) ([]*Decision, error) {
	query := `
		SELECT id, decision_id, policy_path, result, violations, warnings, input_json, task_id, evaluated_at
		FROM policy_decisions`
	var args []any
	if taskID != "" {
		query += " WHERE task_id = ?"
		args = append(args, taskID)
	}
	query += " ORDER BY evaluated_at DESC, id DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query policy decisions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var decisions []*Decision
	for rows.Next() {
		var d Decision
		var violations, warnings sql.NullString
		var inputJSON, evaluatedAt string
		var task sql.NullString
		if err := rows.Scan(&d.ID, &d.DecisionID, &d.PolicyPath, &d.Result,
			&violations, &warnings, &inputJSON, &task, &evaluatedAt); err != nil {
			return nil, fmt.Errorf("scan policy decision: %w", err)
		}
		d.Violations = ParseList(violations.String)
		d.Warnings = ParseList(warnings.String)
		if inputJSON != "" && inputJSON != "{}" {
			var in Input
			if err := json.Unmarshal([]byte(inputJSON), &in); err == nil {
				d.Input = &in
			}
		}
		d.TaskID = task.String
		d.EvaluatedAt, _ = time.Parse(timeLayout, evaluatedAt)
		decisions = append(decisions, &d)
	}
	return decisions, rows.Err()
}

// CountDenied returns the number of denials since a point in time.
func (s *AuditStore) CountDenied(since time.Time) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM policy_decisions WHERE result = 'deny' AND evaluated_at >= ?`,
		since.UTC().Format(timeLayout)).Scan(&count)
	return count, err
}

// DeleteForTask removes the decisions recorded for a task.
func (s *AuditStore) DeleteForTask(taskID string) error {
	if _, err := s.db.Exec("DELETE FROM policy_decisions WHERE task_id = ?", taskID); err != nil {
		return fmt.Errorf("delete policy decisions: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
