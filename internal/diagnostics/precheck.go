package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
)

var ErrHostUnresolvable = errors.New("site host does not resolve")

var fallbackResolvers = []string{"1.1.1.1:53", "8.8.8.8:53"}

// Precheck verifies a site host resolves in DNS before any crawl starts, so
// an obviously dead site fails as a policy error instead of burning a crawl.
// A resolver outage is not held against the site.
type Precheck struct {
	client    *dns.Client
	resolvers []string
	logger    *logrus.Logger
}

func NewPrecheck(logger *logrus.Logger) *Precheck {
	if logger == nil {
		logger = logrus.New()
	}

	resolvers := fallbackResolvers
	if sysConfig, err := dns.ClientConfigFromFile("/etc/resolv.conf"); err == nil && len(sysConfig.Servers) > 0 {
		resolvers = make([]string, 0, len(sysConfig.Servers))
		for _, server := range sysConfig.Servers {
			resolvers = append(resolvers, net.JoinHostPort(server, sysConfig.Port))
		}
	}

	return &Precheck{
		client:    &dns.Client{Timeout: 3 * time.Second},
		resolvers: resolvers,
		logger:    logger,
	}
}

// CheckHost resolves the URL's host. NXDOMAIN across resolvers is fatal;
// transport problems reaching the resolvers only log a warning.
func (p *Precheck) CheckHost(ctx context.Context, siteURL string) error {
	u, err := url.Parse(siteURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: no host in %q", ErrInvalidURL, siteURL)
	}
	if net.ParseIP(host) != nil || host == "localhost" {
		return nil
	}

	var sawNXDomain bool
	for _, resolver := range p.resolvers {
		for _, recordType := range []uint16{dns.TypeA, dns.TypeAAAA, dns.TypeCNAME} {
			rcode, count, err := p.query(ctx, host, recordType, resolver)
			if err != nil {
				continue
			}
			if rcode == dns.RcodeSuccess && count > 0 {
				return nil
			}
			if rcode == dns.RcodeNameError {
				sawNXDomain = true
			}
		}
		if sawNXDomain {
			return fmt.Errorf("%w: %s", ErrHostUnresolvable, host)
		}
	}

	// Could not get an authoritative answer from any resolver.
	p.logger.Warnf("DNS precheck inconclusive for %s, continuing", host)
	return nil
}

func (p *Precheck) query(ctx context.Context, host string, recordType uint16, resolver string) (int, int, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), recordType)
	msg.RecursionDesired = true

	reply, _, err := p.client.ExchangeContext(ctx, msg, resolver)
	if err != nil {
		return 0, 0, err
	}
	return reply.Rcode, len(reply.Answer), nil
}
