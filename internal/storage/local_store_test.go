package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arkologystudio/lumen/pkg/models"
)

func newStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(t.TempDir(), 0, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestAuditLifecycle(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	audit := &models.Audit{
		ID:        "audit_1",
		Owner:     "alice",
		SiteID:    "site_1",
		SiteURL:   "https://example.com",
		Status:    models.AuditPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := store.CreateAudit(ctx, audit); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.CreateAudit(ctx, audit); err == nil {
		t.Errorf("duplicate create should fail")
	}

	audit.Status = models.AuditCrawling
	if err := store.UpdateAudit(ctx, audit); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := store.GetAudit(ctx, "audit_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.AuditCrawling {
		t.Errorf("status = %s, want crawling", got.Status)
	}

	// The store hands out clones; mutating them must not leak back.
	got.Status = models.AuditFailed
	again, _ := store.GetAudit(ctx, "audit_1")
	if again.Status != models.AuditCrawling {
		t.Errorf("stored audit mutated through returned copy")
	}

	if _, err := store.GetAudit(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing audit: err = %v, want ErrNotFound", err)
	}
}

func TestReportPersistsAcrossStoreRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewLocalStore(dir, 0, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	audit := &models.Audit{ID: "audit_r", SiteID: "site_r", Status: models.AuditCompleted, CreatedAt: time.Now().UTC()}
	if err := store.CreateAudit(ctx, audit); err != nil {
		t.Fatalf("create: %v", err)
	}
	report := &models.AuditReport{SiteURL: "https://example.com", Overall: models.OverallScore{Raw: 0.6, Score100: 60}}
	if err := store.SaveReport(ctx, "audit_r", report); err != nil {
		t.Fatalf("save report: %v", err)
	}
	store.Close()

	reopened, err := NewLocalStore(dir, 0, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if _, err := reopened.GetAudit(ctx, "audit_r"); err != nil {
		t.Errorf("audit lost across restart: %v", err)
	}
	got, err := reopened.GetReport(ctx, "audit_r")
	if err != nil {
		t.Fatalf("report lost across restart: %v", err)
	}
	if got.Overall.Score100 != 60 {
		t.Errorf("report score = %d, want 60", got.Overall.Score100)
	}
}

func TestFindLatestCompleted(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	mk := func(id string, status models.AuditStatus, createdAt time.Time) {
		t.Helper()
		if err := store.CreateAudit(ctx, &models.Audit{ID: id, SiteID: "site_x", Status: status, CreatedAt: createdAt}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	mk("audit_old", models.AuditCompleted, base)
	mk("audit_new", models.AuditCompleted, base.Add(30*time.Minute))
	mk("audit_failed", models.AuditFailed, base.Add(45*time.Minute))

	for _, id := range []string{"audit_old", "audit_new"} {
		if err := store.SaveReport(ctx, id, &models.AuditReport{SiteURL: "https://x.example"}); err != nil {
			t.Fatalf("save report: %v", err)
		}
	}

	audit, report, err := store.FindLatestCompleted(ctx, "site_x", time.Time{})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if audit.ID != "audit_new" {
		t.Errorf("latest = %s, want audit_new (failed audits never win)", audit.ID)
	}
	if report == nil {
		t.Errorf("report missing")
	}

	// A since cutoff past every audit yields not found.
	if _, _, err := store.FindLatestCompleted(ctx, "site_x", time.Now().UTC()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound past cutoff, got %v", err)
	}
	if _, _, err := store.FindLatestCompleted(ctx, "site_unknown", time.Time{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown site: err = %v, want ErrNotFound", err)
	}
}

func TestListAuditsNewestFirst(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i, id := range []string{"audit_a", "audit_b", "audit_c"} {
		audit := &models.Audit{ID: id, SiteID: "site_l", Status: models.AuditCompleted, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.CreateAudit(ctx, audit); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	audits := store.ListAudits(ctx)
	if len(audits) != 3 {
		t.Fatalf("audits = %d, want 3", len(audits))
	}
	if audits[0].ID != "audit_c" || audits[2].ID != "audit_a" {
		t.Errorf("order = [%s %s %s], want newest first", audits[0].ID, audits[1].ID, audits[2].ID)
	}
}

func TestSiteDirectory(t *testing.T) {
	dir := NewSiteDirectory()
	ctx := context.Background()

	site, err := dir.Register("alice", "Example.COM/")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if site.URL != "https://example.com" {
		t.Errorf("url = %s, want normalized https://example.com", site.URL)
	}

	// Re-registering the same URL for the same owner returns the same site.
	dup, err := dir.Register("alice", "https://example.com")
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if dup.ID != site.ID {
		t.Errorf("duplicate registration produced new site id")
	}

	if _, err := dir.Resolve(ctx, "alice", site.ID); err != nil {
		t.Errorf("owner cannot resolve own site: %v", err)
	}
	if _, err := dir.Resolve(ctx, "bob", site.ID); err == nil {
		t.Errorf("foreign owner resolved another owner's site")
	}
}

func TestStaticEntitlements(t *testing.T) {
	ent := NewStaticEntitlements()
	ctx := context.Background()

	free, err := ent.Resolve(ctx, "nobody")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if free.Plan != models.PlanFree || free.AllowSitemap {
		t.Errorf("default entitlement = %+v, want free plan without sitemap", free)
	}

	ent.SetPlan("alice", string(models.PlanPro))
	pro, err := ent.Resolve(ctx, "alice")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if pro.Plan != models.PlanPro || !pro.AllowSitemap || pro.MaxPages <= free.MaxPages {
		t.Errorf("pro entitlement = %+v", pro)
	}

	ent.SetPlan("mallory", "platinum")
	unknown, _ := ent.Resolve(ctx, "mallory")
	if unknown.Plan != models.PlanFree {
		t.Errorf("unknown plan should fall back to free, got %s", unknown.Plan)
	}
}
