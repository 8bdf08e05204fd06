package alerting

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/good-yellow-bee/pulsewatch/internal/models"
	"github.com/good-yellow-bee/pulsewatch/internal/storage"
)

// RuleFile is the YAML shape of a provisioned rules file.
type RuleFile struct {
	Rules []ProvisionedRule `yaml:"rules"`
}

// ProvisionedRule is one rule entry in a provisioning file. IDs are
// required so repeated loads upsert instead of duplicating.
type ProvisionedRule struct {
	ID              string   `yaml:"id"`
	ProjectID       string   `yaml:"project_id"`
	ServiceID       string   `yaml:"service_id"`
	Name            string   `yaml:"name"`
	Metric          string   `yaml:"metric"`
	Aggregation     string   `yaml:"aggregation"`
	Operator        string   `yaml:"operator"`
	Threshold       float64  `yaml:"threshold"`
	WindowMinutes   int      `yaml:"window_minutes"`
	DurationMinutes int      `yaml:"duration_minutes"`
	Severity        string   `yaml:"severity"`
	Enabled         *bool    `yaml:"enabled"`
	NotifyChannels  []string `yaml:"notify_channels"`
}

// toModel converts the YAML entry into a validated AlertRule.
func (p ProvisionedRule) toModel(now time.Time) (*models.AlertRule, error) {
	if p.ID == "" {
		return nil, fmt.Errorf("rule id is required")
	}
	enabled := true
	if p.Enabled != nil {
		enabled = *p.Enabled
	}
	channels := p.NotifyChannels
	if channels == nil {
		channels = []string{}
	}
	rule := &models.AlertRule{
		ID:              p.ID,
		ProjectID:       p.ProjectID,
		ServiceID:       p.ServiceID,
		Name:            p.Name,
		MetricName:      p.Metric,
		Aggregation:     models.AggregationKind(p.Aggregation),
		Operator:        models.CompareOp(p.Operator),
		Threshold:       p.Threshold,
		WindowMinutes:   p.WindowMinutes,
		DurationMinutes: p.DurationMinutes,
		Severity:        models.Severity(p.Severity),
		Enabled:         enabled,
		NotifyChannels:  channels,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	return rule, nil
}

// LoadRulesFromFile parses and validates a provisioning file.
func LoadRulesFromFile(path string) ([]*models.AlertRule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rules file: %w", err)
	}
	defer f.Close()
	return LoadRules(f)
}

// LoadRules parses and validates provisioned rules from a reader.
func LoadRules(r io.Reader) ([]*models.AlertRule, error) {
	var file RuleFile
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse rules YAML: %w", err)
	}

	now := time.Now()
	rules := make([]*models.AlertRule, 0, len(file.Rules))
	seen := make(map[string]bool, len(file.Rules))
	for i, entry := range file.Rules {
		rule, err := entry.toModel(now)
		if err != nil {
			return nil, fmt.Errorf("invalid rule at index %d: %w", i, err)
		}
		if seen[rule.ID] {
			return nil, fmt.Errorf("duplicate rule id %q at index %d", rule.ID, i)
		}
		seen[rule.ID] = true
		rules = append(rules, rule)
	}
	return rules, nil
}

// SyncRules upserts provisioned rules into the repository. A file that
// fails to parse leaves the stored rules untouched.
func SyncRules(ctx context.Context, repo storage.RuleRepository, rules []*models.AlertRule) error {
	for _, rule := range rules {
		existing, err := repo.GetByID(ctx, rule.ID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			if err := repo.Create(ctx, rule); err != nil {
				return fmt.Errorf("create provisioned rule %s: %w", rule.ID, err)
			}
		case err != nil:
			return fmt.Errorf("look up provisioned rule %s: %w", rule.ID, err)
		default:
			rule.CreatedAt = existing.CreatedAt
			if err := repo.Update(ctx, rule); err != nil {
				return fmt.Errorf("update provisioned rule %s: %w", rule.ID, err)
			}
		}
	}
	return nil
}

// WatchRulesFile loads the provisioning file, then reloads and re-syncs it
// whenever it changes on disk. Blocks until ctx is cancelled. Reload
// failures keep the last good rule set.
func WatchRulesFile(ctx context.Context, path string, repo storage.RuleRepository) error {
	load := func() error {
		rules, err := LoadRulesFromFile(path)
		if err != nil {
			return err
		}
		if err := SyncRules(ctx, repo, rules); err != nil {
			return err
		}
		log.Printf("alerting: loaded %d provisioned rules from %s", len(rules), path)
		return nil
	}

	if err := load(); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create rules watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors often replace the file, which drops
	// a watch on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch rules dir: %w", err)
	}

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := load(); err != nil {
				log.Printf("alerting: reload of %s failed, keeping previous rules: %v", path, err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("alerting: rules watcher error: %v", err)
		}
	}
}
