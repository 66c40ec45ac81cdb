package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/arkologystudio/lumen/pkg/models"
)

var ErrNotFound = errors.New("not found")

// LocalStore persists audits and reports as JSON files under a base
// directory, with an in-memory index and a TTL'd report cache in front of the
// files.
type LocalStore struct {
	baseDir  string
	logger   *logrus.Logger
	mu       sync.RWMutex
	audits   map[string]*models.Audit
	bySite   map[string][]string
	cache    map[string]*cachedReport
	cacheTTL time.Duration
	done     chan struct{}
}

type cachedReport struct {
	report   *models.AuditReport
	cachedAt time.Time
}

func NewLocalStore(baseDir string, cacheTTL time.Duration, logger *logrus.Logger) (*LocalStore, error) {
	if logger == nil {
		logger = logrus.New()
	}

	for _, dir := range []string{"audits", "reports"} {
		if err := os.MkdirAll(filepath.Join(baseDir, dir), 0o755); err != nil {
			return nil, fmt.Errorf("create %s directory: %w", dir, err)
		}
	}

	ls := &LocalStore{
		baseDir:  baseDir,
		logger:   logger,
		audits:   make(map[string]*models.Audit),
		bySite:   make(map[string][]string),
		cache:    make(map[string]*cachedReport),
		cacheTTL: cacheTTL,
		done:     make(chan struct{}),
	}

	if err := ls.loadAudits(); err != nil {
		logger.Warnf("Failed to load persisted audits: %v", err)
	}

	if cacheTTL > 0 {
		go ls.cleanupCache()
	}

	return ls, nil
}

func (ls *LocalStore) Close() {
	close(ls.done)
}

func (ls *LocalStore) CreateAudit(ctx context.Context, audit *models.Audit) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if _, exists := ls.audits[audit.ID]; exists {
		return fmt.Errorf("audit %s already exists", audit.ID)
	}
	cloned := *audit
	ls.audits[audit.ID] = &cloned
	ls.bySite[audit.SiteID] = append(ls.bySite[audit.SiteID], audit.ID)
	return ls.writeJSON(ls.auditPath(audit.ID), &cloned)
}

func (ls *LocalStore) UpdateAudit(ctx context.Context, audit *models.Audit) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if _, exists := ls.audits[audit.ID]; !exists {
		return fmt.Errorf("update audit %s: %w", audit.ID, ErrNotFound)
	}
	cloned := *audit
	ls.audits[audit.ID] = &cloned
	return ls.writeJSON(ls.auditPath(audit.ID), &cloned)
}

func (ls *LocalStore) GetAudit(ctx context.Context, auditID string) (*models.Audit, error) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	audit, ok := ls.audits[auditID]
	if !ok {
		return nil, fmt.Errorf("audit %s: %w", auditID, ErrNotFound)
	}
	cloned := *audit
	return &cloned, nil
}

func (ls *LocalStore) SaveReport(ctx context.Context, auditID string, report *models.AuditReport) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if err := ls.writeJSON(ls.reportPath(auditID), report); err != nil {
		return fmt.Errorf("save report for audit %s: %w", auditID, err)
	}
	ls.cache[auditID] = &cachedReport{report: report, cachedAt: time.Now()}
	return nil
}

func (ls *LocalStore) GetReport(ctx context.Context, auditID string) (*models.AuditReport, error) {
	ls.mu.RLock()
	if entry, ok := ls.cache[auditID]; ok {
		ls.mu.RUnlock()
		return entry.report, nil
	}
	ls.mu.RUnlock()

	var report models.AuditReport
	if err := ls.readJSON(ls.reportPath(auditID), &report); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("report for audit %s: %w", auditID, ErrNotFound)
		}
		return nil, err
	}

	ls.mu.Lock()
	ls.cache[auditID] = &cachedReport{report: &report, cachedAt: time.Now()}
	ls.mu.Unlock()
	return &report, nil
}

// FindLatestCompleted returns the freshest completed audit for the site
// created at or after since, with its report. ErrNotFound when none qualify.
func (ls *LocalStore) FindLatestCompleted(ctx context.Context, siteID string, since time.Time) (*models.Audit, *models.AuditReport, error) {
	ls.mu.RLock()
	var candidates []*models.Audit
	for _, auditID := range ls.bySite[siteID] {
		audit := ls.audits[auditID]
		if audit != nil && audit.Status == models.AuditCompleted && !audit.CreatedAt.Before(since) {
			candidates = append(candidates, audit)
		}
	}
	ls.mu.RUnlock()

	if len(candidates) == 0 {
		return nil, nil, fmt.Errorf("completed audit for site %s: %w", siteID, ErrNotFound)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})
	latest := *candidates[0]

	report, err := ls.GetReport(ctx, latest.ID)
	if err != nil {
		return nil, nil, err
	}
	return &latest, report, nil
}

// ListAudits returns all known audits, newest first.
func (ls *LocalStore) ListAudits(ctx context.Context) []*models.Audit {
	ls.mu.RLock()
	out := make([]*models.Audit, 0, len(ls.audits))
	for _, audit := range ls.audits {
		cloned := *audit
		out = append(out, &cloned)
	}
	ls.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (ls *LocalStore) auditPath(auditID string) string {
	return filepath.Join(ls.baseDir, "audits", auditID+".json")
}

func (ls *LocalStore) reportPath(auditID string) string {
	return filepath.Join(ls.baseDir, "reports", auditID+".json")
}

// writeJSON writes atomically via temp file + rename.
func (ls *LocalStore) writeJSON(path string, v interface{}) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".store_*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("encode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (ls *LocalStore) readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (ls *LocalStore) loadAudits() error {
	dir := filepath.Join(ls.baseDir, "audits")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		var audit models.Audit
		if err := ls.readJSON(filepath.Join(dir, entry.Name()), &audit); err != nil {
			ls.logger.Warnf("Skipping unreadable audit file %s: %v", entry.Name(), err)
			continue
		}
		ls.audits[audit.ID] = &audit
		ls.bySite[audit.SiteID] = append(ls.bySite[audit.SiteID], audit.ID)
	}
	return nil
}

func (ls *LocalStore) cleanupCache() {
	ticker := time.NewTicker(ls.cacheTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ls.done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-ls.cacheTTL)
			ls.mu.Lock()
			for id, entry := range ls.cache {
				if entry.cachedAt.Before(cutoff) {
					delete(ls.cache, id)
				}
			}
			ls.mu.Unlock()
		}
	}
}
