package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/arkologystudio/lumen/internal/diagnostics"
	"github.com/arkologystudio/lumen/pkg/models"
	"github.com/arkologystudio/lumen/pkg/utils"
)

// cliOwner is the fixed owner identity for audits started from the terminal.
const cliOwner = "cli"

func NewAuditCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit [url]",
		Short: "Run a machine-readability audit against a website",
		Long: `Crawl a website, run every applicable readability scanner and print the
scored report. By default the run is persisted to the local store; --anonymous
runs a reduced ephemeral audit (3 pages, short timeout, nothing stored).`,
		Args: cobra.ExactArgs(1),
		RunE: runAudit,
	}

	cmd.Flags().Bool("anonymous", false, "Run a reduced ephemeral audit without persisting anything")
	cmd.Flags().StringP("plan", "p", "free", "Entitlement plan for the run (free, pro, enterprise)")
	cmd.Flags().Bool("sitemap", false, "Seed page discovery from the sitemap (requires a plan that allows it)")
	cmd.Flags().Bool("skip-cache", false, "Force a fresh run even when a recent report exists")
	cmd.Flags().String("site-profile", "", "Declared site profile (ecommerce, blog_content, saas)")
	cmd.Flags().StringP("output", "o", "", "Write the full JSON report to this file")
	cmd.Flags().StringP("format", "f", "summary", "Terminal output format (summary, json)")
	cmd.Flags().IntP("timeout", "t", 5, "Audit timeout in minutes")

	_ = viper.BindPFlag("audit.anonymous", cmd.Flags().Lookup("anonymous"))
	_ = viper.BindPFlag("audit.plan", cmd.Flags().Lookup("plan"))
	_ = viper.BindPFlag("audit.sitemap", cmd.Flags().Lookup("sitemap"))
	_ = viper.BindPFlag("audit.skip_cache", cmd.Flags().Lookup("skip-cache"))
	_ = viper.BindPFlag("audit.site_profile", cmd.Flags().Lookup("site-profile"))
	_ = viper.BindPFlag("audit.output", cmd.Flags().Lookup("output"))
	_ = viper.BindPFlag("audit.format", cmd.Flags().Lookup("format"))
	_ = viper.BindPFlag("audit.timeout", cmd.Flags().Lookup("timeout"))

	return cmd
}

func runAudit(cmd *cobra.Command, args []string) error {
	rawURL := args[0]
	if !utils.IsValidURL(rawURL) && !utils.IsValidDomain(rawURL) {
		return fmt.Errorf("invalid site url: %s", rawURL)
	}

	timeout := time.Duration(viper.GetInt("audit.timeout")) * time.Minute
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("Received interrupt signal, shutting down gracefully...")
		cancel()
	}()

	eng, err := buildEngine(false)
	if err != nil {
		return fmt.Errorf("failed to initialize diagnostics engine: %w", err)
	}
	defer eng.Close()

	opts := diagnostics.Options{
		SkipCache:       viper.GetBool("audit.skip_cache"),
		IncludeSitemap:  viper.GetBool("audit.sitemap"),
		DeclaredProfile: viper.GetString("audit.site_profile"),
	}

	var result *diagnostics.Result
	if viper.GetBool("audit.anonymous") {
		result, err = eng.service.RunAnonymousDiagnostic(ctx, rawURL, opts)
	} else {
		eng.entitlements.SetPlan(cliOwner, viper.GetString("audit.plan"))
		site, rerr := eng.sites.Register(cliOwner, rawURL)
		if rerr != nil {
			return fmt.Errorf("failed to register site: %w", rerr)
		}
		logrus.Infof("Auditing %s (site %s)", site.URL, site.ID)
		result, err = eng.service.RunDiagnostic(ctx, cliOwner, site.ID, opts)
	}
	if err != nil {
		return fmt.Errorf("audit failed to start: %w", err)
	}

	if result.Status == models.AuditFailed {
		return fmt.Errorf("audit %s failed: %s", result.AuditID, result.Error)
	}

	if out := viper.GetString("audit.output"); out != "" && result.Report != nil {
		if werr := writeReportFile(out, result.Report); werr != nil {
			return werr
		}
		logrus.Infof("Report written to %s", out)
	}

	switch strings.ToLower(viper.GetString("audit.format")) {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	default:
		displayReport(result)
		return nil
	}
}

func writeReportFile(path string, report *models.AuditReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func displayReport(result *diagnostics.Result) {
	report := result.Report
	if report == nil {
		fmt.Printf("Audit %s finished with status %s and no report\n", result.AuditID, result.Status)
		return
	}

	cached := ""
	if result.Cached {
		cached = " (cached)"
	}

	fmt.Printf(`
Audit Summary:
═══════════════════════════════════════════════════════════════
Site:          %s
Audit ID:      %s%s
Profile:       %s (%.0f%% confidence, %s)
Pages Scanned: %d
Duration:      %s
`,
		report.SiteURL,
		result.AuditID, cached,
		report.ProfileDetection.Profile,
		report.ProfileDetection.Confidence*100,
		report.ProfileDetection.Method,
		report.PagesScanned,
		utils.HumanizeDuration(time.Duration(result.DurationMs)*time.Millisecond),
	)

	fmt.Println("───────────────────────────────────────────────────────────────")
	for _, name := range models.ScoreCategories {
		cs, ok := report.Categories[name]
		if !ok {
			continue
		}
		fmt.Printf("%-14s %5.1f / 100  (weight %.0f%%)\n", name, cs.Score*100, report.Weights[name]*100)
	}
	fmt.Println("───────────────────────────────────────────────────────────────")
	fmt.Printf("Overall Score: %d / 100\n", report.Overall.Score100)
	if report.Summary != "" {
		fmt.Printf("\n%s\n", report.Summary)
	}

	var failing []string
	for name, ind := range report.Indicators {
		if ind.Status == models.StatusFail {
			failing = append(failing, name)
		}
	}
	if len(failing) > 0 {
		fmt.Printf("\nFailing indicators: %s\n", strings.Join(failing, ", "))
	}
}
