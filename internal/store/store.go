// Package store defines the persistence boundary for projects, reporting
// periods, explanations, and users.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tsireporting/wip-report/internal/wip"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate indicates a uniqueness constraint would be violated.
	ErrDuplicate = errors.New("store: duplicate")
)

// Project is a construction job being tracked.
type Project struct {
	ID                     int64
	JobNumber              string
	Name                   string
	OriginalContractAmount *decimal.Decimal
	IsActive               bool
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Period is one reporting period for a project: the user-entered inputs plus
// the full derived snapshot. The derived half is always written wholesale,
// never field by field.
type Period struct {
	ID          int64
	ProjectID   int64
	ProjectName string
	JobNumber   string
	ReportDate  string
	Input       wip.PeriodInput
	Derived     wip.DerivedSnapshot
	CreatedBy   uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Explanation is a per-cell note attached to one field of a period.
type Explanation struct {
	ID            int64
	PeriodID      int64
	FieldName     string
	Note          string
	CreatedBy     uuid.UUID
	CreatedByName string
	CreatedAt     time.Time
}

// User is an API account.
type User struct {
	ID           uuid.UUID
	Username     string
	PasswordHash string
	Role         string
	IsActive     bool
	CreatedAt    time.Time
}

// ProjectFilter narrows project listings.
type ProjectFilter struct {
	ActiveOnly bool
	Search     string
	Limit      int
	Offset     int
}

// PeriodFilter narrows period listings.
type PeriodFilter struct {
	ReportDate string
	ProjectID  int64
	JobNumber  string
	Limit      int
	Offset     int
}

// Store is the persistence contract the service layer depends on.
type Store interface {
	CreateProject(ctx context.Context, project *Project) error
	GetProject(ctx context.Context, id int64) (*Project, error)
	ListProjects(ctx context.Context, filter ProjectFilter) ([]Project, error)
	UpdateProject(ctx context.Context, project *Project) error
	DeleteProject(ctx context.Context, id int64) error

	CreatePeriod(ctx context.Context, period *Period) error
	GetPeriod(ctx context.Context, id int64) (*Period, error)
	GetPeriodByDate(ctx context.Context, projectID int64, reportDate string) (*Period, error)
	// PriorPeriod returns the period with the latest report date strictly
	// before the given date for the project, or ErrNotFound.
	PriorPeriod(ctx context.Context, projectID int64, before string) (*Period, error)
	ListPeriods(ctx context.Context, filter PeriodFilter) ([]Period, error)
	// LatestPeriods returns the most recent period of every project.
	LatestPeriods(ctx context.Context) ([]Period, error)
	// ReplacePeriod overwrites every input and derived column of an existing
	// period in one statement.
	ReplacePeriod(ctx context.Context, period *Period) error
	DeletePeriod(ctx context.Context, id int64) error

	CreateExplanation(ctx context.Context, explanation *Explanation) error
	ListExplanations(ctx context.Context, periodID int64, fieldName string) ([]Explanation, error)
	DeleteExplanation(ctx context.Context, id int64) error

	CreateUser(ctx context.Context, user *User) error
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)

	Close() error
}
