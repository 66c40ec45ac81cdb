package scanners

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/arkologystudio/lumen/pkg/models"
	"github.com/arkologystudio/lumen/pkg/utils"
)

// Scope declares how often a scanner runs within one audit. Site-scope
// scanners probe well-known site paths and run once, against the homepage
// context; page-scope scanners run for every scanned page.
type Scope int

const (
	ScopeSite Scope = iota
	ScopePage
)

// FetchFunc lets scanners probe well-known paths without depending on the
// fetcher package directly.
type FetchFunc func(ctx context.Context, url string) *models.FetchResult

// Context is the immutable input handed to every scanner. Scanners never
// mutate it and hold no state of their own.
type Context struct {
	SiteURL  string
	PageURL  string
	HTML     string
	Metadata *models.FetchResult
	Robots   *models.RobotsTxt
	Fetch    FetchFunc
}

// Scanner is one pluggable indicator check.
type Scanner interface {
	Name() string
	Category() string
	Weight() float64
	Scope() Scope
	Scan(ctx context.Context, sc *Context) (*models.ScannerResult, error)
}

// Registry holds one scanner instance per indicator.
type Registry struct {
	mu       sync.RWMutex
	scanners []Scanner
	logger   *logrus.Logger
	metrics  *utils.MetricsCollector
}

func NewRegistry(metrics *utils.MetricsCollector, logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	r := &Registry{logger: logger, metrics: metrics}
	r.registerDefaults()
	return r
}

func (r *Registry) registerDefaults() {
	r.Register(NewLLMSTxtScanner())
	r.Register(NewAgentJSONScanner())
	r.Register(NewAIAgentJSONScanner())
	r.Register(NewRobotsTxtScanner())
	r.Register(NewCanonicalScanner())
	r.Register(NewXMLSitemapScanner())
	r.Register(NewSEOBasicScanner())
	r.Register(NewJSONLDScanner())
	r.Register(NewMCPScanner())
}

func (r *Registry) Register(s Scanner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.scanners {
		if existing.Name() == s.Name() {
			r.scanners[i] = s
			return
		}
	}
	r.scanners = append(r.scanners, s)
}

func (r *Registry) Scanners() []Scanner {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Scanner, len(r.scanners))
	copy(out, r.scanners)
	return out
}

// RunAll executes every registered scanner against the context. RunSite and
// RunPage restrict the batch to one scope.
func (r *Registry) RunAll(ctx context.Context, sc *Context) []models.ScannerResult {
	return r.run(ctx, sc, func(Scanner) bool { return true })
}

func (r *Registry) RunSite(ctx context.Context, sc *Context) []models.ScannerResult {
	return r.run(ctx, sc, func(s Scanner) bool { return s.Scope() == ScopeSite })
}

func (r *Registry) RunPage(ctx context.Context, sc *Context) []models.ScannerResult {
	return r.run(ctx, sc, func(s Scanner) bool { return s.Scope() == ScopePage })
}

// run fans the batch out concurrently. Scanners are stateless and share
// nothing, so parallel execution is safe. Each scanner is isolated: an error
// or panic degrades that indicator to a fail result and never aborts the
// batch.
func (r *Registry) run(ctx context.Context, sc *Context, include func(Scanner) bool) []models.ScannerResult {
	scanners := r.Scanners()
	results := make([]*models.ScannerResult, len(scanners))

	g, gctx := errgroup.WithContext(ctx)
	for i, s := range scanners {
		if !include(s) {
			continue
		}
		i, s := i, s
		g.Go(func() error {
			results[i] = r.runIsolated(gctx, s, sc)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]models.ScannerResult, 0, len(scanners))
	for _, res := range results {
		if res != nil {
			out = append(out, *res.Normalize())
		}
	}
	return out
}

func (r *Registry) runIsolated(ctx context.Context, s Scanner, sc *Context) (result *models.ScannerResult) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.WithField("indicator", s.Name()).Errorf("Scanner panicked: %v", rec)
			result = degradedResult(s, fmt.Sprintf("scanner panicked: %v", rec))
			r.countError(s)
		}
	}()

	result, err := s.Scan(ctx, sc)
	if err != nil {
		r.logger.WithField("indicator", s.Name()).Warnf("Scanner failed: %v", err)
		r.countError(s)
		return degradedResult(s, err.Error())
	}
	if result == nil {
		r.countError(s)
		return degradedResult(s, "scanner returned no result")
	}
	return result
}

func (r *Registry) countError(s Scanner) {
	if r.metrics != nil {
		r.metrics.Inc("lumen_scanner_errors_total", s.Name())
	}
}

func degradedResult(s Scanner, note string) *models.ScannerResult {
	res := newResult(s)
	res.Status = models.StatusFail
	res.Score = 0
	res.Message = "Scanner execution failed"
	res.SetEvidence("error", note)
	return res
}

func newResult(s Scanner) *models.ScannerResult {
	return &models.ScannerResult{
		IndicatorName: s.Name(),
		Category:      s.Category(),
		Weight:        s.Weight(),
		Evidence:      make(map[string]interface{}),
	}
}

// fetchPath probes a well-known path under the site root through the context's
// fetch hook.
func fetchPath(ctx context.Context, sc *Context, path string) (*models.FetchResult, string) {
	checkedURL := sc.SiteURL + path
	if sc.Fetch == nil {
		return nil, checkedURL
	}
	return sc.Fetch(ctx, checkedURL), checkedURL
}
