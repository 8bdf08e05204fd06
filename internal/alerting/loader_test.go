package alerting

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/good-yellow-bee/pulsewatch/internal/models"
	"github.com/good-yellow-bee/pulsewatch/internal/storage"
)

const validRulesYAML = `
rules:
  - id: rule-error-rate
    project_id: p1
    service_id: s1
    name: high error rate
    metric: error_rate
    aggregation: avg
    operator: ">"
    threshold: 100
    window_minutes: 5
    duration_minutes: 3
    severity: high
    notify_channels:
      - oncall@example.com
  - id: rule-latency
    project_id: p1
    service_id: s1
    name: slow p95
    metric: request_latency_ms
    aggregation: p95
    operator: ">="
    threshold: 800
    window_minutes: 10
    duration_minutes: 5
    severity: medium
    enabled: false
`

func TestLoadRules(t *testing.T) {
	rules, err := LoadRules(strings.NewReader(validRulesYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("len = %d, want 2", len(rules))
	}

	first := rules[0]
	if first.ID != "rule-error-rate" || first.Aggregation != models.AggAvg ||
		first.Operator != models.OpGreaterThan || !first.Enabled {
		t.Errorf("first rule = %+v", first)
	}
	if len(first.NotifyChannels) != 1 || first.NotifyChannels[0] != "oncall@example.com" {
		t.Errorf("channels = %v", first.NotifyChannels)
	}

	second := rules[1]
	if second.Enabled {
		t.Error("second rule should be disabled")
	}
	if second.NotifyChannels == nil {
		t.Error("omitted channels should decode to an empty slice, not nil")
	}
}

func TestLoadRulesRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			"missing id",
			"rules:\n  - project_id: p1\n    service_id: s1\n    name: x\n    metric: m\n    aggregation: avg\n    operator: \">\"\n    threshold: 1\n    window_minutes: 1\n    duration_minutes: 1\n    severity: low\n",
			"rule id is required",
		},
		{
			"bad operator",
			strings.Replace(validRulesYAML, `operator: ">"`, `operator: "~"`, 1),
			"invalid rule at index 0",
		},
		{
			"duplicate id",
			strings.Replace(validRulesYAML, "id: rule-latency", "id: rule-error-rate", 1),
			"duplicate rule id",
		},
		{
			"not yaml",
			"{{{",
			"parse rules YAML",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadRules(strings.NewReader(tc.yaml))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %v, want containing %q", err, tc.want)
			}
		})
	}
}

func TestSyncRulesUpserts(t *testing.T) {
	dir := t.TempDir()
	store := storage.NewSQLiteStorage(filepath.Join(dir, "test.db"))
	if err := store.Open(); err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ctx := context.Background()

	project := models.NewProject("checkout", "")
	project.ID = "p1"
	if err := store.Projects().Create(ctx, project); err != nil {
		t.Fatalf("seed project: %v", err)
	}
	svc := models.NewService("p1", "payments-api")
	svc.ID = "s1"
	if err := store.Services().Create(ctx, svc); err != nil {
		t.Fatalf("seed service: %v", err)
	}

	rules, err := LoadRules(strings.NewReader(validRulesYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := SyncRules(ctx, store.Rules(), rules); err != nil {
		t.Fatalf("first sync: %v", err)
	}

	created, err := store.Rules().GetByID(ctx, "rule-error-rate")
	if err != nil {
		t.Fatalf("get created rule: %v", err)
	}

	// Second sync with a changed threshold updates in place.
	changed := strings.Replace(validRulesYAML, "threshold: 100", "threshold: 250", 1)
	rules, err = LoadRules(strings.NewReader(changed))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if err := SyncRules(ctx, store.Rules(), rules); err != nil {
		t.Fatalf("second sync: %v", err)
	}

	updated, err := store.Rules().GetByID(ctx, "rule-error-rate")
	if err != nil {
		t.Fatalf("get updated rule: %v", err)
	}
	if updated.Threshold != 250 {
		t.Errorf("threshold = %v, want 250", updated.Threshold)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("created_at changed on update: %v -> %v", created.CreatedAt, updated.CreatedAt)
	}

	all, err := store.Rules().ListByProject(ctx, "p1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("rule count after re-sync = %d, want 2", len(all))
	}
}

func TestLoadRulesFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(path, []byte(validRulesYAML), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	rules, err := LoadRulesFromFile(path)
	if err != nil {
		t.Fatalf("load from file: %v", err)
	}
	if len(rules) != 2 {
		t.Errorf("len = %d, want 2", len(rules))
	}

	if _, err := LoadRulesFromFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("missing file should error")
	}
}
