package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/good-yellow-bee/pulsewatch/internal/incident"
	"github.com/good-yellow-bee/pulsewatch/internal/ingest"
	"github.com/good-yellow-bee/pulsewatch/internal/models"
	"github.com/good-yellow-bee/pulsewatch/internal/storage"
)

const (
	adminEmail    = "admin@example.com"
	adminPassword = "Adm1n-Passw0rd!"
)

// fakeTelemetry stands in for ClickHouse.
type fakeTelemetry struct {
	mu      sync.Mutex
	metrics []models.MetricSample
	logs    []models.LogEntry
	points  []models.MetricPoint
}

func (f *fakeTelemetry) Open() error                { return nil }
func (f *fakeTelemetry) Close() error               { return nil }
func (f *fakeTelemetry) Migrate() error             { return nil }
func (f *fakeTelemetry) Ping(context.Context) error { return nil }

func (f *fakeTelemetry) WriteMetrics(_ context.Context, samples []models.MetricSample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metrics = append(f.metrics, samples...)
	return nil
}

func (f *fakeTelemetry) WriteLogs(_ context.Context, entries []models.LogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, entries...)
	return nil
}

func (f *fakeTelemetry) Query(_ context.Context, _, _ string, _ models.AggregationKind,
	_ string, _, _ time.Time) ([]models.MetricPoint, error) {
	return f.points, nil
}

func (f *fakeTelemetry) SearchLogs(_ context.Context, projectID string, _ storage.LogFilter) ([]models.LogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.LogEntry
	for _, e := range f.logs {
		if e.ProjectID == projectID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeTelemetry) metricCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.metrics)
}

type testEnv struct {
	server    *httptest.Server
	store     *storage.SQLiteStorage
	telemetry *fakeTelemetry
	incidents *incident.Service
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "pulsewatch-api-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store := storage.NewSQLiteStorage(filepath.Join(tmpDir, "meta.db"))
	if err := store.Open(); err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate database: %v", err)
	}
	if err := store.EnsureAdminUser(adminEmail, adminPassword); err != nil {
		t.Fatalf("bootstrap admin: %v", err)
	}

	telemetry := &fakeTelemetry{}
	ingestSvc := ingest.NewService(telemetry, ingest.BufferConfig{BatchSize: 1, FlushInterval: 10 * time.Millisecond})
	t.Cleanup(func() { ingestSvc.Stop() })

	incidentSvc := incident.NewService(store)

	srv, err := New(Config{JWTSecret: "test-secret"}, store, telemetry, ingestSvc, incidentSvc)
	if err != nil {
		t.Fatalf("create server: %v", err)
	}

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return &testEnv{server: ts, store: store, telemetry: telemetry, incidents: incidentSvc}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeData(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
}

func (e *testEnv) login(t *testing.T, email, password string) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": email, "password": password,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}
	var login struct {
		AccessToken string `json:"access_token"`
	}
	decodeData(t, resp, &login)
	if login.AccessToken == "" {
		t.Fatal("login returned empty token")
	}
	return login.AccessToken
}

func (e *testEnv) createProject(t *testing.T, token, name string) (projectID, apiKey string) {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/v1/projects/", token, map[string]string{"name": name})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create project status = %d, want 201", resp.StatusCode)
	}
	var created struct {
		ID     string `json:"id"`
		APIKey string `json:"api_key"`
	}
	decodeData(t, resp, &created)
	if created.ID == "" || created.APIKey == "" {
		t.Fatalf("incomplete project response: %+v", created)
	}
	return created.ID, created.APIKey
}

func (e *testEnv) createService(t *testing.T, token, projectID, name string) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/v1/projects/"+projectID+"/services", token,
		map[string]string{"name": name})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create service status = %d, want 201", resp.StatusCode)
	}
	var svc models.Service
	decodeData(t, resp, &svc)
	return svc.ID
}

func TestLoginAndMe(t *testing.T) {
	env := setupEnv(t)
	token := env.login(t, adminEmail, adminPassword)

	resp := env.do(t, http.MethodGet, "/api/v1/users/me", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me status = %d, want 200", resp.StatusCode)
	}
	var me models.User
	decodeData(t, resp, &me)
	if me.Email != adminEmail {
		t.Errorf("me email = %q, want %q", me.Email, adminEmail)
	}
	if me.Role != models.RoleAdmin {
		t.Errorf("me role = %q, want admin", me.Role)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	env := setupEnv(t)
	resp := env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": adminEmail, "password": "wrong-password-123",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := setupEnv(t)
	resp := env.do(t, http.MethodGet, "/api/v1/projects/", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}

	resp = env.do(t, http.MethodGet, "/api/v1/projects/", "not-a-token", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("garbage token status = %d, want 401", resp.StatusCode)
	}
}

func TestRuleCRUD(t *testing.T) {
	env := setupEnv(t)
	token := env.login(t, adminEmail, adminPassword)
	projectID, _ := env.createProject(t, token, "checkout")
	serviceID := env.createService(t, token, projectID, "checkout-api")

	base := "/api/v1/projects/" + projectID + "/rules"
	body := map[string]any{
		"service_id":       serviceID,
		"name":             "high error rate",
		"metric_name":      "error_rate",
		"aggregation":      "avg",
		"operator":         ">",
		"threshold":        5.0,
		"window_minutes":   5,
		"duration_minutes": 3,
		"severity":         "high",
		"notify_channels":  []string{"oncall@example.com"},
	}

	resp := env.do(t, http.MethodPost, base+"/", token, body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create rule status = %d, want 201", resp.StatusCode)
	}
	var rule models.AlertRule
	decodeData(t, resp, &rule)
	if !rule.Enabled {
		t.Error("new rule should be enabled")
	}

	resp = env.do(t, http.MethodGet, base+"/", token, nil)
	var rules []models.AlertRule
	decodeData(t, resp, &rules)
	if len(rules) != 1 {
		t.Fatalf("listed %d rules, want 1", len(rules))
	}

	body["threshold"] = 10.0
	resp = env.do(t, http.MethodPut, base+"/"+rule.ID, token, body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update rule status = %d, want 200", resp.StatusCode)
	}
	var updated models.AlertRule
	decodeData(t, resp, &updated)
	if updated.Threshold != 10.0 {
		t.Errorf("threshold = %v, want 10", updated.Threshold)
	}

	resp = env.do(t, http.MethodPut, base+"/"+rule.ID+"/enabled", token, map[string]bool{"enabled": false})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("disable rule status = %d, want 200", resp.StatusCode)
	}
	var disabled models.AlertRule
	decodeData(t, resp, &disabled)
	if disabled.Enabled {
		t.Error("rule should be disabled")
	}
}

func TestRuleValidation(t *testing.T) {
	env := setupEnv(t)
	token := env.login(t, adminEmail, adminPassword)
	projectID, _ := env.createProject(t, token, "checkout")
	serviceID := env.createService(t, token, projectID, "checkout-api")

	resp := env.do(t, http.MethodPost, "/api/v1/projects/"+projectID+"/rules/", token, map[string]any{
		"service_id":       serviceID,
		"name":             "bad operator",
		"metric_name":      "error_rate",
		"aggregation":      "avg",
		"operator":         "~",
		"threshold":        5.0,
		"window_minutes":   5,
		"duration_minutes": 3,
		"severity":         "high",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestRuleScopedToProject(t *testing.T) {
	env := setupEnv(t)
	token := env.login(t, adminEmail, adminPassword)
	p1, _ := env.createProject(t, token, "one")
	p2, _ := env.createProject(t, token, "two")
	s1 := env.createService(t, token, p1, "svc")

	resp := env.do(t, http.MethodPost, "/api/v1/projects/"+p1+"/rules/", token, map[string]any{
		"service_id": s1, "name": "r", "metric_name": "m", "aggregation": "avg",
		"operator": ">", "threshold": 1.0, "window_minutes": 1, "duration_minutes": 1,
		"severity": "low",
	})
	var rule models.AlertRule
	decodeData(t, resp, &rule)

	resp = env.do(t, http.MethodGet, "/api/v1/projects/"+p2+"/rules/"+rule.ID, token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("cross-project get status = %d, want 404", resp.StatusCode)
	}
}

func TestIngestWithAPIKey(t *testing.T) {
	env := setupEnv(t)
	token := env.login(t, adminEmail, adminPassword)
	projectID, apiKey := env.createProject(t, token, "checkout")
	serviceID := env.createService(t, token, projectID, "checkout-api")

	payload := map[string]any{
		"metrics": []map[string]any{
			{"service_id": serviceID, "name": "latency_ms", "value": 120.5},
			{"service_id": serviceID, "name": "latency_ms", "value": 98.0},
		},
	}
	body, _ := json.Marshal(payload)

	req, _ := http.NewRequest(http.MethodPost, env.server.URL+"/api/v1/ingest/metrics", bytes.NewReader(body))
	req.Header.Set("X-API-Key", apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("ingest request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("ingest status = %d, want 202", resp.StatusCode)
	}

	deadline := time.Now().Add(2 * time.Second)
	for env.telemetry.metricCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("flushed %d samples, want 2", env.telemetry.metricCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestIngestRejectsBadAPIKey(t *testing.T) {
	env := setupEnv(t)

	req, _ := http.NewRequest(http.MethodPost, env.server.URL+"/api/v1/ingest/metrics", bytes.NewReader([]byte("{}")))
	req.Header.Set("X-API-Key", "pw_bogus")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("ingest request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestIncidentStatusFlow(t *testing.T) {
	env := setupEnv(t)
	token := env.login(t, adminEmail, adminPassword)
	projectID, _ := env.createProject(t, token, "checkout")
	serviceID := env.createService(t, token, projectID, "checkout-api")

	inc, err := env.incidents.Create(context.Background(), projectID, serviceID, "",
		models.SeverityHigh, "error rate above threshold")
	if err != nil {
		t.Fatalf("seed incident: %v", err)
	}

	base := fmt.Sprintf("/api/v1/projects/%s/incidents/%s", projectID, inc.ID)

	resp := env.do(t, http.MethodPut, base+"/status", token, map[string]string{"status": "investigating"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("investigating status = %d, want 200", resp.StatusCode)
	}

	resp = env.do(t, http.MethodPut, base+"/status", token, map[string]string{"status": "resolved"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resolve status = %d, want 200", resp.StatusCode)
	}

	resp = env.do(t, http.MethodPut, base+"/status", token, map[string]string{"status": "investigating"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("reopen status = %d, want 409", resp.StatusCode)
	}

	resp = env.do(t, http.MethodGet, base+"/timeline", token, nil)
	var events []models.IncidentEvent
	decodeData(t, resp, &events)
	// rule_triggered plus two status changes
	if len(events) != 3 {
		t.Fatalf("timeline has %d events, want 3", len(events))
	}
}

func TestIncidentNotes(t *testing.T) {
	env := setupEnv(t)
	token := env.login(t, adminEmail, adminPassword)
	projectID, _ := env.createProject(t, token, "checkout")
	serviceID := env.createService(t, token, projectID, "checkout-api")

	inc, err := env.incidents.Create(context.Background(), projectID, serviceID, "",
		models.SeverityLow, "noise")
	if err != nil {
		t.Fatalf("seed incident: %v", err)
	}

	base := fmt.Sprintf("/api/v1/projects/%s/incidents/%s/notes", projectID, inc.ID)

	resp := env.do(t, http.MethodPost, base, token, map[string]string{"content": "looking into it"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add note status = %d, want 201", resp.StatusCode)
	}

	resp = env.do(t, http.MethodPost, base, token, map[string]string{"content": ""})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty note status = %d, want 400", resp.StatusCode)
	}

	resp = env.do(t, http.MethodGet, base, token, nil)
	var notes []models.IncidentNote
	decodeData(t, resp, &notes)
	if len(notes) != 1 {
		t.Fatalf("listed %d notes, want 1", len(notes))
	}
	if notes[0].Content != "looking into it" {
		t.Errorf("note content = %q", notes[0].Content)
	}
}

func TestViewerCannotWrite(t *testing.T) {
	env := setupEnv(t)
	admin := env.login(t, adminEmail, adminPassword)
	projectID, _ := env.createProject(t, admin, "checkout")

	resp := env.do(t, http.MethodPost, "/api/v1/users", admin, map[string]string{
		"email": "viewer@example.com", "name": "viewer",
		"password": "V1ewer-Passw0rd!", "role": "viewer",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create viewer status = %d, want 201", resp.StatusCode)
	}

	viewer := env.login(t, "viewer@example.com", "V1ewer-Passw0rd!")

	resp = env.do(t, http.MethodPost, "/api/v1/projects/"+projectID+"/rules/", viewer, map[string]any{
		"service_id": "s", "name": "r", "metric_name": "m",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("viewer rule create status = %d, want 403", resp.StatusCode)
	}

	resp = env.do(t, http.MethodPost, "/api/v1/users", viewer, map[string]string{
		"email": "x@example.com", "name": "x", "password": "Xx1-Passw0rd!!", "role": "viewer",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("viewer user create status = %d, want 403", resp.StatusCode)
	}
}

func TestQueryMetricsEndpoint(t *testing.T) {
	env := setupEnv(t)
	token := env.login(t, adminEmail, adminPassword)
	projectID, _ := env.createProject(t, token, "checkout")

	env.telemetry.points = []models.MetricPoint{
		{Timestamp: time.Now().Add(-time.Minute), Value: 4.2},
		{Timestamp: time.Now(), Value: 5.1},
	}

	resp := env.do(t, http.MethodGet,
		"/api/v1/projects/"+projectID+"/metrics/query?metric=error_rate&aggregation=p95", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("query status = %d, want 200", resp.StatusCode)
	}
	var result struct {
		Metric      string               `json:"metric"`
		Aggregation string               `json:"aggregation"`
		Points      []models.MetricPoint `json:"points"`
	}
	decodeData(t, resp, &result)
	if result.Aggregation != "p95" || len(result.Points) != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}

	resp = env.do(t, http.MethodGet,
		"/api/v1/projects/"+projectID+"/metrics/query?metric=error_rate&aggregation=median", token, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad aggregation status = %d, want 400", resp.StatusCode)
	}

	resp = env.do(t, http.MethodGet, "/api/v1/projects/"+projectID+"/metrics/query", token, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing metric status = %d, want 400", resp.StatusCode)
	}
}

func TestRotateAPIKeyInvalidatesOldKey(t *testing.T) {
	env := setupEnv(t)
	token := env.login(t, adminEmail, adminPassword)
	projectID, oldKey := env.createProject(t, token, "checkout")

	resp := env.do(t, http.MethodPost, "/api/v1/projects/"+projectID+"/apikey/rotate", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rotate status = %d, want 200", resp.StatusCode)
	}
	var rotated struct {
		APIKey string `json:"api_key"`
	}
	decodeData(t, resp, &rotated)
	if rotated.APIKey == "" || rotated.APIKey == oldKey {
		t.Fatalf("rotation returned key %q", rotated.APIKey)
	}

	req, _ := http.NewRequest(http.MethodPost, env.server.URL+"/api/v1/ingest/logs", bytes.NewReader([]byte("{}")))
	req.Header.Set("X-API-Key", oldKey)
	reply, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("ingest with old key: %v", err)
	}
	defer reply.Body.Close()
	if reply.StatusCode != http.StatusUnauthorized {
		t.Fatalf("old key status = %d, want 401", reply.StatusCode)
	}
}
