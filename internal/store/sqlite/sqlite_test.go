package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tsireporting/wip-report/internal/store"
	"github.com/tsireporting/wip-report/internal/wip"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "wip.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("failed to close store: %v", err)
		}
	})
	return s
}

func dec(t *testing.T, s string) *decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return &d
}

func createTestUser(t *testing.T, s *Store) *store.User {
	t.Helper()
	user := &store.User{
		Username:     "reporter",
		PasswordHash: "x",
		Role:         "admin",
		IsActive:     true,
	}
	if err := s.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user
}

func createTestProject(t *testing.T, s *Store, jobNumber string) *store.Project {
	t.Helper()
	project := &store.Project{
		JobNumber:              jobNumber,
		Name:                   "Test Project " + jobNumber,
		OriginalContractAmount: dec(t, "1000000"),
		IsActive:               true,
	}
	if err := s.CreateProject(context.Background(), project); err != nil {
		t.Fatalf("failed to create project: %v", err)
	}
	return project
}

func TestProjectRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	project := createTestProject(t, s, "J-100")
	if project.ID == 0 {
		t.Fatal("expected project ID to be assigned")
	}

	got, err := s.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	if got.JobNumber != "J-100" {
		t.Errorf("JobNumber = %s, expected J-100", got.JobNumber)
	}
	if got.OriginalContractAmount == nil || !got.OriginalContractAmount.Equal(decimal.NewFromInt(1000000)) {
		t.Errorf("OriginalContractAmount = %v, expected 1000000", got.OriginalContractAmount)
	}

	got.Name = "Renamed"
	got.OriginalContractAmount = nil
	if err := s.UpdateProject(ctx, got); err != nil {
		t.Fatalf("UpdateProject failed: %v", err)
	}
	updated, err := s.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetProject after update failed: %v", err)
	}
	if updated.Name != "Renamed" {
		t.Errorf("Name = %s, expected Renamed", updated.Name)
	}
	if updated.OriginalContractAmount != nil {
		t.Errorf("OriginalContractAmount = %v, expected nil", updated.OriginalContractAmount)
	}
}

func TestProjectDuplicateJobNumber(t *testing.T) {
	s := newTestStore(t)
	createTestProject(t, s, "J-100")

	err := s.CreateProject(context.Background(), &store.Project{JobNumber: "J-100", Name: "Again"})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestProjectListFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	createTestProject(t, s, "J-100")
	inactive := createTestProject(t, s, "J-200")
	inactive.IsActive = false
	if err := s.UpdateProject(ctx, inactive); err != nil {
		t.Fatalf("UpdateProject failed: %v", err)
	}

	active, err := s.ListProjects(ctx, store.ProjectFilter{ActiveOnly: true})
	if err != nil {
		t.Fatalf("ListProjects failed: %v", err)
	}
	if len(active) != 1 || active[0].JobNumber != "J-100" {
		t.Errorf("active listing = %v, expected only J-100", active)
	}

	matched, err := s.ListProjects(ctx, store.ProjectFilter{Search: "200"})
	if err != nil {
		t.Fatalf("ListProjects with search failed: %v", err)
	}
	if len(matched) != 1 || matched[0].JobNumber != "J-200" {
		t.Errorf("search listing = %v, expected only J-200", matched)
	}
}

func TestPeriodRoundTripAndPriorLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, s)
	project := createTestProject(t, s, "J-100")

	june := &store.Period{
		ProjectID:  project.ID,
		JobNumber:  project.JobNumber,
		ReportDate: "2025-06-30",
		Input: wip.PeriodInput{
			OriginalContractAmount:  dec(t, "1000000"),
			CostToDate:              dec(t, "250000"),
			EstimatedCostToComplete: dec(t, "700000"),
		},
		CreatedBy: user.ID,
	}
	june.Derived = wip.ComputeDerivedSnapshot(june.Input, nil)
	if err := s.CreatePeriod(ctx, june); err != nil {
		t.Fatalf("CreatePeriod failed: %v", err)
	}

	july := &store.Period{
		ProjectID:  project.ID,
		JobNumber:  project.JobNumber,
		ReportDate: "2025-07-31",
		Input: wip.PeriodInput{
			OriginalContractAmount:  dec(t, "1000000"),
			ChangeOrderAmount:       dec(t, "50000"),
			CostToDate:              dec(t, "300000"),
			EstimatedCostToComplete: dec(t, "700000"),
		},
		CreatedBy: user.ID,
	}
	priorSnap := june.Derived.Prior()
	july.Derived = wip.ComputeDerivedSnapshot(july.Input, &priorSnap)
	if err := s.CreatePeriod(ctx, july); err != nil {
		t.Fatalf("CreatePeriod failed: %v", err)
	}

	prior, err := s.PriorPeriod(ctx, project.ID, "2025-07-31")
	if err != nil {
		t.Fatalf("PriorPeriod failed: %v", err)
	}
	if prior.ReportDate != "2025-06-30" {
		t.Errorf("PriorPeriod date = %s, expected 2025-06-30", prior.ReportDate)
	}

	if _, err := s.PriorPeriod(ctx, project.ID, "2025-06-30"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for first period, got %v", err)
	}

	got, err := s.GetPeriodByDate(ctx, project.ID, "2025-07-31")
	if err != nil {
		t.Fatalf("GetPeriodByDate failed: %v", err)
	}
	if got.ProjectName == "" {
		t.Error("expected project name to be joined")
	}
	if got.CreatedBy != user.ID {
		t.Errorf("CreatedBy = %s, expected %s", got.CreatedBy, user.ID)
	}
	if got.Derived.PercentCompletion == nil || !got.Derived.PercentCompletion.Equal(decimal.RequireFromString("30.00")) {
		t.Errorf("PercentCompletion = %v, expected 30.00", got.Derived.PercentCompletion)
	}
	if got.Derived.ContractVarianceVsPrior == nil || !got.Derived.ContractVarianceVsPrior.Equal(decimal.NewFromInt(50000)) {
		t.Errorf("ContractVarianceVsPrior = %v, expected 50000", got.Derived.ContractVarianceVsPrior)
	}
	if got.Derived.CostsInExcessOfBillings != nil {
		t.Errorf("CostsInExcessOfBillings = %v, expected nil", got.Derived.CostsInExcessOfBillings)
	}
}

func TestPeriodDuplicateDate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, s)
	project := createTestProject(t, s, "J-100")

	period := &store.Period{
		ProjectID:  project.ID,
		JobNumber:  project.JobNumber,
		ReportDate: "2025-07-31",
		CreatedBy:  user.ID,
	}
	if err := s.CreatePeriod(ctx, period); err != nil {
		t.Fatalf("CreatePeriod failed: %v", err)
	}

	again := &store.Period{
		ProjectID:  project.ID,
		JobNumber:  project.JobNumber,
		ReportDate: "2025-07-31",
		CreatedBy:  user.ID,
	}
	if err := s.CreatePeriod(ctx, again); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestReplacePeriodOverwritesAllColumns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, s)
	project := createTestProject(t, s, "J-100")

	period := &store.Period{
		ProjectID:  project.ID,
		JobNumber:  project.JobNumber,
		ReportDate: "2025-07-31",
		Input: wip.PeriodInput{
			OriginalContractAmount:  dec(t, "1000000"),
			CostToDate:              dec(t, "300000"),
			EstimatedCostToComplete: dec(t, "700000"),
			RevenueBilledToDate:     dec(t, "350000"),
		},
		CreatedBy: user.ID,
	}
	period.Derived = wip.ComputeDerivedSnapshot(period.Input, nil)
	if err := s.CreatePeriod(ctx, period); err != nil {
		t.Fatalf("CreatePeriod failed: %v", err)
	}
	if period.Derived.BillingsInExcessOfRevenue == nil {
		t.Fatal("test setup: expected billings in excess before the update")
	}

	// Drop the billed figure; the replacement must clear the previously
	// stored adjustment rather than leave it behind.
	period.Input.RevenueBilledToDate = nil
	period.Derived = wip.ComputeDerivedSnapshot(period.Input, nil)
	if err := s.ReplacePeriod(ctx, period); err != nil {
		t.Fatalf("ReplacePeriod failed: %v", err)
	}

	got, err := s.GetPeriod(ctx, period.ID)
	if err != nil {
		t.Fatalf("GetPeriod failed: %v", err)
	}
	if got.Input.RevenueBilledToDate != nil {
		t.Errorf("RevenueBilledToDate = %v, expected nil", got.Input.RevenueBilledToDate)
	}
	if got.Derived.BillingsInExcessOfRevenue != nil {
		t.Errorf("BillingsInExcessOfRevenue = %v, expected nil after replace", got.Derived.BillingsInExcessOfRevenue)
	}
}

func TestLatestPeriods(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, s)
	a := createTestProject(t, s, "J-100")
	b := createTestProject(t, s, "J-200")

	for _, p := range []struct {
		project *store.Project
		date    string
	}{
		{a, "2025-06-30"},
		{a, "2025-07-31"},
		{b, "2025-05-31"},
	} {
		period := &store.Period{
			ProjectID:  p.project.ID,
			JobNumber:  p.project.JobNumber,
			ReportDate: p.date,
			CreatedBy:  user.ID,
		}
		if err := s.CreatePeriod(ctx, period); err != nil {
			t.Fatalf("CreatePeriod failed: %v", err)
		}
	}

	latest, err := s.LatestPeriods(ctx)
	if err != nil {
		t.Fatalf("LatestPeriods failed: %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("expected 2 latest periods, got %d", len(latest))
	}
	if latest[0].JobNumber != "J-100" || latest[0].ReportDate != "2025-07-31" {
		t.Errorf("latest[0] = %s %s, expected J-100 2025-07-31", latest[0].JobNumber, latest[0].ReportDate)
	}
	if latest[1].JobNumber != "J-200" || latest[1].ReportDate != "2025-05-31" {
		t.Errorf("latest[1] = %s %s, expected J-200 2025-05-31", latest[1].JobNumber, latest[1].ReportDate)
	}
}

func TestExplanations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, s)
	project := createTestProject(t, s, "J-100")

	period := &store.Period{
		ProjectID:  project.ID,
		JobNumber:  project.JobNumber,
		ReportDate: "2025-07-31",
		CreatedBy:  user.ID,
	}
	if err := s.CreatePeriod(ctx, period); err != nil {
		t.Fatalf("CreatePeriod failed: %v", err)
	}

	explanation := &store.Explanation{
		PeriodID:  period.ID,
		FieldName: "cost_to_date",
		Note:      "Includes expedited steel delivery",
		CreatedBy: user.ID,
	}
	if err := s.CreateExplanation(ctx, explanation); err != nil {
		t.Fatalf("CreateExplanation failed: %v", err)
	}

	listed, err := s.ListExplanations(ctx, period.ID, "")
	if err != nil {
		t.Fatalf("ListExplanations failed: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected 1 explanation, got %d", len(listed))
	}
	if listed[0].CreatedByName != user.Username {
		t.Errorf("CreatedByName = %s, expected %s", listed[0].CreatedByName, user.Username)
	}

	filtered, err := s.ListExplanations(ctx, period.ID, "percent_completion")
	if err != nil {
		t.Fatalf("ListExplanations with field failed: %v", err)
	}
	if len(filtered) != 0 {
		t.Errorf("expected no explanations for other field, got %d", len(filtered))
	}

	if err := s.DeleteExplanation(ctx, explanation.ID); err != nil {
		t.Fatalf("DeleteExplanation failed: %v", err)
	}
	if err := s.DeleteExplanation(ctx, explanation.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := createTestUser(t, s)
	if user.ID == uuid.Nil {
		t.Fatal("expected user ID to be assigned")
	}

	got, err := s.GetUserByUsername(ctx, "reporter")
	if err != nil {
		t.Fatalf("GetUserByUsername failed: %v", err)
	}
	if got.ID != user.ID || got.Role != "admin" || !got.IsActive {
		t.Errorf("unexpected user: %+v", got)
	}

	if _, err := s.GetUserByUsername(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	duplicate := &store.User{Username: "reporter", PasswordHash: "y", Role: "viewer"}
	if err := s.CreateUser(ctx, duplicate); !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
}

func TestUserLookupsAndListing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := createTestUser(t, s)
	viewer := &store.User{Username: "analyst", PasswordHash: "y", Role: "viewer", IsActive: true}
	if err := s.CreateUser(ctx, viewer); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	got, err := s.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUserByID failed: %v", err)
	}
	if got.Username != user.Username || got.Role != user.Role {
		t.Errorf("unexpected user: %+v", got)
	}

	if _, err := s.GetUserByID(ctx, uuid.New()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	users, err := s.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("ListUsers returned %d users, want 2", len(users))
	}
	// Ordered by username.
	if users[0].Username != "analyst" || users[1].Username != "reporter" {
		t.Errorf("usernames = %s, %s; want analyst, reporter", users[0].Username, users[1].Username)
	}
}
