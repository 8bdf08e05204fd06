package incident

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/pulsewatch/internal/models"
	"github.com/good-yellow-bee/pulsewatch/internal/storage"
)

func setupService(t *testing.T) (*Service, storage.Storage) {
	t.Helper()
	dir := t.TempDir()
	store := storage.NewSQLiteStorage(filepath.Join(dir, "test.db"))
	if err := store.Open(); err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewService(store), store
}

func seedKey(t *testing.T, store storage.Storage) (projectID, serviceID, ruleID string) {
	t.Helper()
	ctx := context.Background()

	project := &models.Project{
		ID:        uuid.New().String(),
		Name:      "checkout",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := store.Projects().Create(ctx, project); err != nil {
		t.Fatalf("seed project: %v", err)
	}

	svc := &models.Service{
		ID:        uuid.New().String(),
		ProjectID: project.ID,
		Name:      "payments-api",
		CreatedAt: time.Now(),
	}
	if err := store.Services().Create(ctx, svc); err != nil {
		t.Fatalf("seed service: %v", err)
	}

	rule := &models.AlertRule{
		ID:              uuid.New().String(),
		ProjectID:       project.ID,
		ServiceID:       svc.ID,
		Name:            "high error rate",
		MetricName:      "error_rate",
		Aggregation:     models.AggAvg,
		Operator:        models.OpGreaterThan,
		Threshold:       100,
		WindowMinutes:   5,
		DurationMinutes: 3,
		Severity:        models.SeverityHigh,
		Enabled:         true,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	if err := store.Rules().Create(ctx, rule); err != nil {
		t.Fatalf("seed rule: %v", err)
	}

	return project.ID, svc.ID, rule.ID
}

func TestCreateRecordsTriggerEvent(t *testing.T) {
	svc, store := setupService(t)
	projectID, serviceID, ruleID := seedKey(t, store)
	ctx := context.Background()

	incident, err := svc.Create(ctx, projectID, serviceID, ruleID, models.SeverityHigh, "error_rate over threshold")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if incident.Status != models.StatusOpen {
		t.Errorf("status = %s, want open", incident.Status)
	}

	events, err := svc.Timeline(ctx, projectID, incident.ID)
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(events) != 1 || events[0].Kind != models.EventRuleTriggered {
		t.Fatalf("events = %+v, want one rule_triggered", events)
	}
	var payload map[string]string
	if err := events[0].DecodePayload(&payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["rule_id"] != ruleID {
		t.Errorf("payload rule_id = %q, want %q", payload["rule_id"], ruleID)
	}
}

func TestCreateUsesServiceClock(t *testing.T) {
	svc, store := setupService(t)
	projectID, serviceID, ruleID := seedKey(t, store)
	ctx := context.Background()

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return at }

	incident, err := svc.Create(ctx, projectID, serviceID, ruleID, models.SeverityHigh, "error_rate over threshold")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !incident.StartedAt.Equal(at) {
		t.Errorf("started_at = %v, want %v", incident.StartedAt, at)
	}
	if !incident.CreatedAt.Equal(at) || !incident.UpdatedAt.Equal(at) {
		t.Errorf("created_at = %v updated_at = %v, want both %v",
			incident.CreatedAt, incident.UpdatedAt, at)
	}
}

func TestGetScopesByProject(t *testing.T) {
	svc, store := setupService(t)
	projectID, serviceID, ruleID := seedKey(t, store)
	ctx := context.Background()

	incident, err := svc.Create(ctx, projectID, serviceID, ruleID, models.SeverityLow, "s")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Get(ctx, "other-project", incident.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-project get: err = %v, want ErrNotFound", err)
	}
	if _, err := svc.Get(ctx, projectID, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing incident: err = %v, want ErrNotFound", err)
	}
}

func TestUpdateStatusAppendsEvent(t *testing.T) {
	svc, store := setupService(t)
	projectID, serviceID, ruleID := seedKey(t, store)
	ctx := context.Background()

	incident, err := svc.Create(ctx, projectID, serviceID, ruleID, models.SeverityMedium, "s")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := svc.UpdateStatus(ctx, projectID, incident.ID, models.StatusInvestigating)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.Status != models.StatusInvestigating {
		t.Errorf("status = %s, want investigating", updated.Status)
	}

	events, err := svc.Timeline(ctx, projectID, incident.ID)
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	last := events[len(events)-1]
	if last.Kind != models.EventStatusChanged {
		t.Fatalf("last event kind = %s, want status_changed", last.Kind)
	}
	var payload map[string]string
	if err := last.DecodePayload(&payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["old_status"] != "open" || payload["new_status"] != "investigating" {
		t.Errorf("payload = %v, want open -> investigating", payload)
	}
}

func TestUpdateStatusRejectsReopen(t *testing.T) {
	svc, store := setupService(t)
	projectID, serviceID, ruleID := seedKey(t, store)
	ctx := context.Background()

	incident, err := svc.Create(ctx, projectID, serviceID, ruleID, models.SeverityMedium, "s")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, projectID, incident.ID, models.StatusResolved); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	_, err = svc.UpdateStatus(ctx, projectID, incident.ID, models.StatusOpen)
	var terr *models.TransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("reopen err = %v, want TransitionError", err)
	}

	got, err := svc.Get(ctx, projectID, incident.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.StatusResolved {
		t.Errorf("status after rejected reopen = %s, want resolved", got.Status)
	}
}

func TestResolvedAtSetOnce(t *testing.T) {
	svc, store := setupService(t)
	projectID, serviceID, ruleID := seedKey(t, store)
	ctx := context.Background()

	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return first }

	incident, err := svc.Create(ctx, projectID, serviceID, ruleID, models.SeverityMedium, "s")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, projectID, incident.ID, models.StatusResolved); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	svc.now = func() time.Time { return first.Add(time.Hour) }
	got, err := svc.UpdateStatus(ctx, projectID, incident.ID, models.StatusResolved)
	if err != nil {
		t.Fatalf("re-resolve: %v", err)
	}
	if got.ResolvedAt == nil || !got.ResolvedAt.Equal(first) {
		t.Errorf("resolved_at = %v, want %v", got.ResolvedAt, first)
	}
}

func TestFindOrCreateOpenIsIdempotent(t *testing.T) {
	svc, store := setupService(t)
	projectID, serviceID, ruleID := seedKey(t, store)
	ctx := context.Background()

	first, created, err := svc.FindOrCreateOpen(ctx, projectID, serviceID, ruleID, models.SeverityHigh, "s")
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if !created {
		t.Fatal("first call should create")
	}

	second, created, err := svc.FindOrCreateOpen(ctx, projectID, serviceID, ruleID, models.SeverityHigh, "s")
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if created {
		t.Error("second call should reuse the open incident")
	}
	if second.ID != first.ID {
		t.Errorf("second.ID = %s, want %s", second.ID, first.ID)
	}

	// After resolution the key is free again.
	if _, err := svc.ResolveOpen(ctx, projectID, ruleID, serviceID); err != nil {
		t.Fatalf("resolve open: %v", err)
	}
	third, created, err := svc.FindOrCreateOpen(ctx, projectID, serviceID, ruleID, models.SeverityHigh, "s")
	if err != nil {
		t.Fatalf("third call: %v", err)
	}
	if !created || third.ID == first.ID {
		t.Errorf("post-resolve call: created=%v id=%s, want new incident", created, third.ID)
	}
}

func TestResolveOpenWithoutIncident(t *testing.T) {
	svc, store := setupService(t)
	projectID, serviceID, ruleID := seedKey(t, store)

	_, err := svc.ResolveOpen(context.Background(), projectID, ruleID, serviceID)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestAddNoteAndTimelineOrder(t *testing.T) {
	svc, store := setupService(t)
	projectID, serviceID, ruleID := seedKey(t, store)
	ctx := context.Background()

	incident, err := svc.Create(ctx, projectID, serviceID, ruleID, models.SeverityMedium, "s")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.AddNote(ctx, projectID, incident.ID, "user-1", ""); err == nil {
		t.Error("empty note content should be rejected")
	}

	note, err := svc.AddNote(ctx, projectID, incident.ID, "user-1", "rolling back deploy")
	if err != nil {
		t.Fatalf("add note: %v", err)
	}

	notes, err := svc.Notes(ctx, projectID, incident.ID)
	if err != nil {
		t.Fatalf("notes: %v", err)
	}
	if len(notes) != 1 || notes[0].ID != note.ID {
		t.Fatalf("notes = %+v, want the created note", notes)
	}

	events, err := svc.Timeline(ctx, projectID, incident.ID)
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	kinds := []models.IncidentEventKind{}
	for _, e := range events {
		kinds = append(kinds, e.Kind)
	}
	if len(kinds) != 2 || kinds[0] != models.EventRuleTriggered || kinds[1] != models.EventComment {
		t.Errorf("timeline kinds = %v, want [rule_triggered comment]", kinds)
	}
}

func TestTouchOpenRejectsResolved(t *testing.T) {
	svc, store := setupService(t)
	projectID, serviceID, ruleID := seedKey(t, store)
	ctx := context.Background()

	incident, err := svc.Create(ctx, projectID, serviceID, ruleID, models.SeverityMedium, "s")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.TouchOpen(ctx, incident); err != nil {
		t.Fatalf("touch open: %v", err)
	}

	resolved, err := svc.UpdateStatus(ctx, projectID, incident.ID, models.StatusResolved)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := svc.TouchOpen(ctx, resolved); err == nil {
		t.Error("touching a resolved incident should fail")
	}
}
