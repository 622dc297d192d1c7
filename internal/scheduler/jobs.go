// Package scheduler runs periodic jobs defined in YAML files. Jobs never do
// work inline: each tick enqueues a descriptor and the queue consumers do the
// rest, so a slow CMS import cannot stall the ticker.
package scheduler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Job kinds.
const (
	KindCMSImport    = "cms_import"
	KindDailySummary = "daily_summary"
)

// Job is one scheduled job definition, loaded at startup from a YAML file.
// No hot reload.
type Job struct {
	Name     string            `yaml:"name"`
	Kind     string            `yaml:"kind"`
	Interval time.Duration     `yaml:"-"`
	Params   map[string]string `yaml:"params"`
}

// rawJob is the on-disk YAML shape; interval is a duration string.
type rawJob struct {
	Name     string            `yaml:"name"`
	Kind     string            `yaml:"kind"`
	Interval string            `yaml:"interval"`
	Params   map[string]string `yaml:"params"`
}

func validKind(kind string) bool {
	switch kind {
	case KindCMSImport, KindDailySummary:
		return true
	}
	return false
}

// LoadJobs reads every *.yaml / *.yml file in dir, one job per file. A
// missing directory is valid and means zero jobs. Malformed or duplicate
// definitions fail loading.
func LoadJobs(dir string) ([]Job, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scheduler job dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scheduler job path %q is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading scheduler job dir: %w", err)
	}

	seen := make(map[string]bool)
	var jobs []Job
	for _, e := range entries {
		if e.IsDir() || (!strings.HasSuffix(e.Name(), ".yaml") && !strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}

		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading job file %s: %w", path, err)
		}

		var raw rawJob
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing job file %s: %w", path, err)
		}
		if raw.Name == "" {
			continue // skip empty / comment-only files
		}

		if !validKind(raw.Kind) {
			return nil, fmt.Errorf("job %q: unsupported kind %q", raw.Name, raw.Kind)
		}
		interval, err := time.ParseDuration(raw.Interval)
		if err != nil {
			return nil, fmt.Errorf("job %q: invalid interval %q: %w", raw.Name, raw.Interval, err)
		}
		if interval <= 0 {
			return nil, fmt.Errorf("job %q: interval must be > 0", raw.Name)
		}
		if seen[raw.Name] {
			return nil, fmt.Errorf("job %q: duplicate job name (check multiple YAML files)", raw.Name)
		}
		seen[raw.Name] = true

		jobs = append(jobs, Job{
			Name:     raw.Name,
			Kind:     raw.Kind,
			Interval: interval,
			Params:   raw.Params,
		})
	}
	return jobs, nil
}
