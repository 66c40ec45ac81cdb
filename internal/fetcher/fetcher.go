package fetcher

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"github.com/arkologystudio/lumen/pkg/models"
	"github.com/arkologystudio/lumen/pkg/utils"
)

const (
	DefaultTimeout   = 15 * time.Second
	DefaultUserAgent = "LumenBot/1.0 (+https://arkology.studio/lumen)"

	maxRedirects = 10
	maxBodyBytes = 5 << 20
)

type Options struct {
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	UserAgent string        `yaml:"user_agent" json:"user_agent"`
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	return o
}

// Fetcher performs single bounded HTTP GETs with metadata extraction. It is
// stateless apart from the shared client and optional rate limiter.
type Fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	logger  *logrus.Logger
	metrics *utils.MetricsCollector
}

func New(limiter *rate.Limiter, metrics *utils.MetricsCollector, logger *logrus.Logger) *Fetcher {
	if logger == nil {
		logger = logrus.New()
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		DialContext: (&net.Dialer{
			Timeout:   15 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	client := &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	return &Fetcher{
		client:  client,
		limiter: limiter,
		logger:  logger,
		metrics: metrics,
	}
}

// Fetch performs one GET. HTTP-level failures (4xx/5xx) are not errors: they
// are captured in StatusCode with whatever body was returned. Only transport
// failures populate Error and leave StatusCode at 0. LoadTimeMs is always
// recorded.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string, opts Options) *models.FetchResult {
	opts = opts.withDefaults()
	result := &models.FetchResult{URL: pageURL, FinalURL: pageURL}

	start := time.Now()
	defer func() {
		result.LoadTimeMs = time.Since(start).Milliseconds()
		if f.metrics != nil {
			f.metrics.ObserveDuration("lumen_fetch_duration_seconds", time.Since(start))
			f.metrics.Inc("lumen_fetch_total", fetchOutcome(result))
		}
	}()

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			result.Error = err.Error()
			return result
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, pageURL, nil)
	if err != nil {
		result.Error = fmt.Sprintf("build request: %v", err)
		return result
	}
	req.Header.Set("User-Agent", opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en")

	resp, err := f.client.Do(req)
	if err != nil {
		result.Error = err.Error()
		f.logger.WithField("url", pageURL).Debugf("Fetch transport failure: %v", err)
		return result
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode
	result.FinalURL = resp.Request.URL.String()
	result.Headers = flattenHeaders(resp.Header)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		// Keep the status code: a truncated body is still an HTTP response.
		result.Error = fmt.Sprintf("read body: %v", err)
		return result
	}

	html := decodeBody(body, resp.Header.Get("Content-Type"))
	result.HTML = html
	result.ContentHash = utils.HashContent(html)
	extractMetadata(result)

	return result
}

func fetchOutcome(r *models.FetchResult) string {
	switch {
	case r.Error != "":
		return "transport_error"
	case r.StatusCode >= 200 && r.StatusCode < 300:
		return "ok"
	default:
		return "http_error"
	}
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}

// decodeBody converts the response body to UTF-8 using the declared charset.
// Falls back to the raw bytes if the declared encoding cannot be handled.
func decodeBody(body []byte, contentType string) string {
	reader, err := charset.NewReader(strings.NewReader(string(body)), contentType)
	if err != nil {
		return string(body)
	}
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return string(body)
	}
	return string(decoded)
}

// extractMetadata pulls title, meta description and word count out of the
// fetched HTML. A parse failure leaves the fields unset; it never fails the
// fetch.
func extractMetadata(result *models.FetchResult) {
	if result.HTML == "" {
		return
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(result.HTML))
	if err != nil {
		return
	}

	result.Title = strings.TrimSpace(doc.Find("title").First().Text())

	if desc, ok := doc.Find(`meta[name="description"]`).First().Attr("content"); ok {
		result.MetaDescription = strings.TrimSpace(desc)
	}

	body := doc.Find("body")
	body.Find("script, style, noscript").Remove()
	result.WordCount = len(strings.Fields(body.Text()))
}
