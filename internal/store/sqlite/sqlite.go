// Package sqlite implements the store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/tsireporting/wip-report/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job_number TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	original_contract_amount TEXT,
	is_active INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS periods (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	report_date TEXT NOT NULL,
	job_number TEXT NOT NULL,

	original_contract_amount TEXT,
	change_order_amount TEXT,
	cost_to_date TEXT,
	estimated_cost_to_complete TEXT,
	revenue_billed_to_date TEXT,
	additional_entry_required TEXT,

	total_contract_amount TEXT,
	contract_variance_vs_prior TEXT,
	estimated_final_cost TEXT,
	final_cost_variance_vs_prior TEXT,
	percent_completion TEXT,
	revenue_earned_to_date TEXT,
	job_margin_to_date TEXT,
	job_margin_to_date_percent_of_revenue TEXT,
	job_margin_at_completion TEXT,
	job_margin_variance_vs_prior TEXT,
	job_margin_percent_of_contract TEXT,
	costs_in_excess_of_billings TEXT,
	billings_in_excess_of_revenue TEXT,

	created_by TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	UNIQUE(project_id, report_date)
);
CREATE INDEX IF NOT EXISTS idx_periods_report_date ON periods(report_date);

CREATE TABLE IF NOT EXISTS explanations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	period_id INTEGER NOT NULL REFERENCES periods(id) ON DELETE CASCADE,
	field_name TEXT NOT NULL,
	note TEXT NOT NULL,
	created_by TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMP NOT NULL
);
`

// Store is a SQLite-backed implementation of store.Store.
type Store struct {
	db *sql.DB
}

// New opens (creating if necessary) the database at path and applies the
// schema.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		return fmt.Errorf("sqlite: enable foreign keys: %w", err)
	}
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// decArg converts an optional decimal into a driver argument, NULL when
// absent. Values are stored as their exact text representation.
func decArg(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func scanDec(ns sql.NullString) (*decimal.Decimal, error) {
	if !ns.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(ns.String)
	if err != nil {
		return nil, fmt.Errorf("sqlite: corrupt decimal %q: %w", ns.String, err)
	}
	return &d, nil
}

func mapConstraintErr(err error) error {
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return store.ErrDuplicate
	}
	return err
}

// Projects

func (s *Store) CreateProject(ctx context.Context, project *store.Project) error {
	now := time.Now().UTC()
	project.CreatedAt = now
	project.UpdatedAt = now
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (job_number, name, original_contract_amount, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		project.JobNumber, project.Name, decArg(project.OriginalContractAmount),
		project.IsActive, project.CreatedAt, project.UpdatedAt,
	)
	if err != nil {
		return mapConstraintErr(err)
	}
	project.ID, err = res.LastInsertId()
	return err
}

func (s *Store) GetProject(ctx context.Context, id int64) (*store.Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, job_number, name, original_contract_amount, is_active, created_at, updated_at
		FROM projects WHERE id = ?`, id)
	return scanProject(row)
}

func scanProject(row *sql.Row) (*store.Project, error) {
	var p store.Project
	var amount sql.NullString
	err := row.Scan(&p.ID, &p.JobNumber, &p.Name, &amount, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if p.OriginalContractAmount, err = scanDec(amount); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListProjects(ctx context.Context, filter store.ProjectFilter) ([]store.Project, error) {
	query := `
		SELECT id, job_number, name, original_contract_amount, is_active, created_at, updated_at
		FROM projects WHERE 1=1`
	var args []any
	if filter.ActiveOnly {
		query += ` AND is_active = 1`
	}
	if filter.Search != "" {
		query += ` AND (job_number LIKE ? OR name LIKE ?)`
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern)
	}
	query += ` ORDER BY job_number`
	query, args = applyLimit(query, args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []store.Project
	for rows.Next() {
		var p store.Project
		var amount sql.NullString
		if err := rows.Scan(&p.ID, &p.JobNumber, &p.Name, &amount, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		if p.OriginalContractAmount, err = scanDec(amount); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (s *Store) UpdateProject(ctx context.Context, project *store.Project) error {
	project.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE projects SET job_number = ?, name = ?, original_contract_amount = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		project.JobNumber, project.Name, decArg(project.OriginalContractAmount),
		project.IsActive, project.UpdatedAt, project.ID,
	)
	if err != nil {
		return mapConstraintErr(err)
	}
	return requireRow(res)
}

func (s *Store) DeleteProject(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Periods

const periodColumns = `
	p.id, p.project_id, pr.name, p.job_number, p.report_date,
	p.original_contract_amount, p.change_order_amount, p.cost_to_date,
	p.estimated_cost_to_complete, p.revenue_billed_to_date, p.additional_entry_required,
	p.total_contract_amount, p.contract_variance_vs_prior,
	p.estimated_final_cost, p.final_cost_variance_vs_prior,
	p.percent_completion, p.revenue_earned_to_date, p.job_margin_to_date,
	p.job_margin_to_date_percent_of_revenue,
	p.job_margin_at_completion, p.job_margin_variance_vs_prior, p.job_margin_percent_of_contract,
	p.costs_in_excess_of_billings, p.billings_in_excess_of_revenue,
	p.created_by, p.created_at, p.updated_at`

func (s *Store) CreatePeriod(ctx context.Context, period *store.Period) error {
	now := time.Now().UTC()
	period.CreatedAt = now
	period.UpdatedAt = now
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO periods (
			project_id, report_date, job_number,
			original_contract_amount, change_order_amount, cost_to_date,
			estimated_cost_to_complete, revenue_billed_to_date, additional_entry_required,
			total_contract_amount, contract_variance_vs_prior,
			estimated_final_cost, final_cost_variance_vs_prior,
			percent_completion, revenue_earned_to_date, job_margin_to_date,
			job_margin_to_date_percent_of_revenue,
			job_margin_at_completion, job_margin_variance_vs_prior, job_margin_percent_of_contract,
			costs_in_excess_of_billings, billings_in_excess_of_revenue,
			created_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		append(periodArgs(period), period.CreatedBy.String(), period.CreatedAt, period.UpdatedAt)...,
	)
	if err != nil {
		return mapConstraintErr(err)
	}
	period.ID, err = res.LastInsertId()
	return err
}

// periodArgs flattens the identifying, input, and derived columns in insert
// order.
func periodArgs(period *store.Period) []any {
	in := period.Input
	d := period.Derived
	return []any{
		period.ProjectID, period.ReportDate, period.JobNumber,
		decArg(in.OriginalContractAmount), decArg(in.ChangeOrderAmount), decArg(in.CostToDate),
		decArg(in.EstimatedCostToComplete), decArg(in.RevenueBilledToDate), decArg(in.AdditionalEntryRequired),
		decArg(d.TotalContractAmount), decArg(d.ContractVarianceVsPrior),
		decArg(d.EstimatedFinalCost), decArg(d.FinalCostVarianceVsPrior),
		decArg(d.PercentCompletion), decArg(d.RevenueEarnedToDate), decArg(d.JobMarginToDate),
		decArg(d.JobMarginToDatePercentOfRevenue),
		decArg(d.JobMarginAtCompletion), decArg(d.JobMarginVarianceVsPrior), decArg(d.JobMarginPercentOfContract),
		decArg(d.CostsInExcessOfBillings), decArg(d.BillingsInExcessOfRevenue),
	}
}

func (s *Store) ReplacePeriod(ctx context.Context, period *store.Period) error {
	period.UpdatedAt = time.Now().UTC()
	args := periodArgs(period)
	// Shift the identifying columns out of insert order for the SET clause.
	args = append(args[3:], period.UpdatedAt, period.ID)
	res, err := s.db.ExecContext(ctx, `
		UPDATE periods SET
			original_contract_amount = ?, change_order_amount = ?, cost_to_date = ?,
			estimated_cost_to_complete = ?, revenue_billed_to_date = ?, additional_entry_required = ?,
			total_contract_amount = ?, contract_variance_vs_prior = ?,
			estimated_final_cost = ?, final_cost_variance_vs_prior = ?,
			percent_completion = ?, revenue_earned_to_date = ?, job_margin_to_date = ?,
			job_margin_to_date_percent_of_revenue = ?,
			job_margin_at_completion = ?, job_margin_variance_vs_prior = ?, job_margin_percent_of_contract = ?,
			costs_in_excess_of_billings = ?, billings_in_excess_of_revenue = ?,
			updated_at = ?
		WHERE id = ?`,
		args...,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) GetPeriod(ctx context.Context, id int64) (*store.Period, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+periodColumns+`
		FROM periods p JOIN projects pr ON pr.id = p.project_id
		WHERE p.id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return onePeriod(rows)
}

func (s *Store) GetPeriodByDate(ctx context.Context, projectID int64, reportDate string) (*store.Period, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+periodColumns+`
		FROM periods p JOIN projects pr ON pr.id = p.project_id
		WHERE p.project_id = ? AND p.report_date = ?`, projectID, reportDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return onePeriod(rows)
}

func (s *Store) PriorPeriod(ctx context.Context, projectID int64, before string) (*store.Period, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+periodColumns+`
		FROM periods p JOIN projects pr ON pr.id = p.project_id
		WHERE p.project_id = ? AND p.report_date < ?
		ORDER BY p.report_date DESC LIMIT 1`, projectID, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return onePeriod(rows)
}

func (s *Store) ListPeriods(ctx context.Context, filter store.PeriodFilter) ([]store.Period, error) {
	query := `
		SELECT ` + periodColumns + `
		FROM periods p JOIN projects pr ON pr.id = p.project_id
		WHERE 1=1`
	var args []any
	if filter.ReportDate != "" {
		query += ` AND p.report_date = ?`
		args = append(args, filter.ReportDate)
	}
	if filter.ProjectID != 0 {
		query += ` AND p.project_id = ?`
		args = append(args, filter.ProjectID)
	}
	if filter.JobNumber != "" {
		query += ` AND p.job_number LIKE ?`
		args = append(args, "%"+filter.JobNumber+"%")
	}
	query += ` ORDER BY p.report_date DESC, p.job_number`
	query, args = applyLimit(query, args, filter.Limit, filter.Offset)

	return s.queryPeriods(ctx, query, args...)
}

func (s *Store) LatestPeriods(ctx context.Context) ([]store.Period, error) {
	return s.queryPeriods(ctx, `
		SELECT `+periodColumns+`
		FROM periods p
		JOIN projects pr ON pr.id = p.project_id
		JOIN (
			SELECT project_id, MAX(report_date) AS latest_date
			FROM periods GROUP BY project_id
		) latest ON latest.project_id = p.project_id AND latest.latest_date = p.report_date
		ORDER BY p.job_number`)
}

func (s *Store) DeletePeriod(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM periods WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) queryPeriods(ctx context.Context, query string, args ...any) ([]store.Period, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var periods []store.Period
	for rows.Next() {
		period, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, *period)
	}
	return periods, rows.Err()
}

func onePeriod(rows *sql.Rows) (*store.Period, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, store.ErrNotFound
	}
	return scanPeriod(rows)
}

func scanPeriod(rows *sql.Rows) (*store.Period, error) {
	var period store.Period
	var createdBy string
	cols := make([]sql.NullString, 19)
	dest := []any{
		&period.ID, &period.ProjectID, &period.ProjectName, &period.JobNumber, &period.ReportDate,
	}
	for i := range cols {
		dest = append(dest, &cols[i])
	}
	dest = append(dest, &createdBy, &period.CreatedAt, &period.UpdatedAt)

	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(createdBy)
	if err != nil {
		return nil, fmt.Errorf("sqlite: corrupt user id %q: %w", createdBy, err)
	}
	period.CreatedBy = id

	// Same order as periodColumns after the identifying fields.
	targets := []**decimal.Decimal{
		&period.Input.OriginalContractAmount, &period.Input.ChangeOrderAmount, &period.Input.CostToDate,
		&period.Input.EstimatedCostToComplete, &period.Input.RevenueBilledToDate, &period.Input.AdditionalEntryRequired,
		&period.Derived.TotalContractAmount, &period.Derived.ContractVarianceVsPrior,
		&period.Derived.EstimatedFinalCost, &period.Derived.FinalCostVarianceVsPrior,
		&period.Derived.PercentCompletion, &period.Derived.RevenueEarnedToDate, &period.Derived.JobMarginToDate,
		&period.Derived.JobMarginToDatePercentOfRevenue,
		&period.Derived.JobMarginAtCompletion, &period.Derived.JobMarginVarianceVsPrior, &period.Derived.JobMarginPercentOfContract,
		&period.Derived.CostsInExcessOfBillings, &period.Derived.BillingsInExcessOfRevenue,
	}
	for i, target := range targets {
		value, err := scanDec(cols[i])
		if err != nil {
			return nil, err
		}
		*target = value
	}
	return &period, nil
}

// Explanations

func (s *Store) CreateExplanation(ctx context.Context, explanation *store.Explanation) error {
	explanation.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO explanations (period_id, field_name, note, created_by, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		explanation.PeriodID, explanation.FieldName, explanation.Note,
		explanation.CreatedBy.String(), explanation.CreatedAt,
	)
	if err != nil {
		return err
	}
	explanation.ID, err = res.LastInsertId()
	return err
}

func (s *Store) ListExplanations(ctx context.Context, periodID int64, fieldName string) ([]store.Explanation, error) {
	query := `
		SELECT e.id, e.period_id, e.field_name, e.note, e.created_by, u.username, e.created_at
		FROM explanations e JOIN users u ON u.id = e.created_by
		WHERE e.period_id = ?`
	args := []any{periodID}
	if fieldName != "" {
		query += ` AND e.field_name = ?`
		args = append(args, fieldName)
	}
	query += ` ORDER BY e.created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var explanations []store.Explanation
	for rows.Next() {
		var e store.Explanation
		var createdBy string
		if err := rows.Scan(&e.ID, &e.PeriodID, &e.FieldName, &e.Note, &createdBy, &e.CreatedByName, &e.CreatedAt); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(createdBy)
		if err != nil {
			return nil, fmt.Errorf("sqlite: corrupt user id %q: %w", createdBy, err)
		}
		e.CreatedBy = id
		explanations = append(explanations, e)
	}
	return explanations, rows.Err()
}

func (s *Store) DeleteExplanation(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM explanations WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Users

func (s *Store) CreateUser(ctx context.Context, user *store.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, role, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID.String(), user.Username, user.PasswordHash, user.Role, user.IsActive, user.CreatedAt,
	)
	return mapConstraintErr(err)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, role, is_active, created_at
		FROM users WHERE username = ?`, username)
	return scanUser(row)
}

func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*store.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, role, is_active, created_at
		FROM users WHERE id = ?`, id.String())
	return scanUser(row)
}

func scanUser(row *sql.Row) (*store.User, error) {
	var user store.User
	var id string
	err := row.Scan(&id, &user.Username, &user.PasswordHash, &user.Role, &user.IsActive, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("sqlite: corrupt user id %q: %w", id, err)
	}
	user.ID = parsed
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]store.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, password_hash, role, is_active, created_at
		FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []store.User
	for rows.Next() {
		var user store.User
		var id string
		if err := rows.Scan(&id, &user.Username, &user.PasswordHash, &user.Role, &user.IsActive, &user.CreatedAt); err != nil {
			return nil, err
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("sqlite: corrupt user id %q: %w", id, err)
		}
		user.ID = parsed
		users = append(users, user)
	}
	return users, rows.Err()
}

func applyLimit(query string, args []any, limit, offset int) (string, []any) {
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
		if offset > 0 {
			query += ` OFFSET ?`
			args = append(args, offset)
		}
	}
	return query, args
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

var _ store.Store = (*Store)(nil)
