package config

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/kumc-bmi/heron-portal/pkg/observability"
)

// QualificationPolicy holds the excluded-job-code set used by the
// qualified-faculty predicate. The set is swappable at runtime: when an
// exclusion file is configured, writes to it replace the set without a
// restart.
type QualificationPolicy struct {
	mu    sync.RWMutex
	codes map[string]struct{}
}

// NewQualificationPolicy builds a policy from the configured code list
func NewQualificationPolicy(codes []string) *QualificationPolicy {
	p := &QualificationPolicy{}
	p.replace(codes)
	return p
}

// Excluded reports whether jobCode is on the exclusion list
func (p *QualificationPolicy) Excluded(jobCode string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.codes[jobCode]
	return ok
}

// Codes returns a copy of the current exclusion set
func (p *QualificationPolicy) Codes() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.codes))
	for c := range p.codes {
		out = append(out, c)
	}
	return out
}

func (p *QualificationPolicy) replace(codes []string) {
	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	p.mu.Lock()
	p.codes = set
	p.mu.Unlock()
}

// exclusionFile is the on-disk format of the watched exclusion list
type exclusionFile struct {
	ExcludedJobCodes []string `yaml:"excluded_job_codes"`
}

// LoadExclusionFile replaces the exclusion set from a YAML file
func (p *QualificationPolicy) LoadExclusionFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read exclusion file %s: %w", path, err)
	}
	var f exclusionFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse exclusion file %s: %w", path, err)
	}
	if len(f.ExcludedJobCodes) == 0 {
		return fmt.Errorf("exclusion file %s lists no job codes", path)
	}
	p.replace(f.ExcludedJobCodes)
	return nil
}

// Watch reloads the exclusion file on every write until ctx is done.
// Reload failures keep the previous set and are logged.
func (p *QualificationPolicy) Watch(ctx context.Context, path string, logger *observability.Logger) error {
	if err := p.LoadExclusionFile(path); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create exclusion watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	go func() {
		defer watcher.Close()
		defer observability.RecoverPanic(logger, "exclusion file watcher")

		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := p.LoadExclusionFile(path); err != nil {
					logger.WithError(err).Warn("exclusion file reload failed; keeping previous set")
					continue
				}
				logger.WithField("codes", p.Codes()).Info("excluded job codes reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.WithError(err).Warn("exclusion file watcher error")
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}
