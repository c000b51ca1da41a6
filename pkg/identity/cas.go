package identity

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CASConfig holds CAS server settings. ServiceURL is this portal's
// callback that the CAS server redirects back to with a service ticket.
type CASConfig struct {
	BaseURL    string
	ServiceURL string
	// Replay guard sizing; redeemed tickets are remembered for TTL
	TicketCacheSize int
	TicketCacheTTL  time.Duration
}

// CASProvider authenticates via CAS 2.0 serviceValidate. Service tickets
// are single-use; the provider remembers redeemed tickets in an
// expiring cache and rejects any second presentation.
type CASProvider struct {
	cfg      CASConfig
	client   *http.Client
	redeemed *expirable.LRU[string, time.Time]
}

// NewCASProvider creates a CAS provider
func NewCASProvider(cfg CASConfig) *CASProvider {
	if cfg.TicketCacheSize <= 0 {
		cfg.TicketCacheSize = 4096
	}
	if cfg.TicketCacheTTL <= 0 {
		cfg.TicketCacheTTL = 5 * time.Minute
	}
	return &CASProvider{
		cfg:      cfg,
		client:   &http.Client{Timeout: 10 * time.Second},
		redeemed: expirable.NewLRU[string, time.Time](cfg.TicketCacheSize, nil, cfg.TicketCacheTTL),
	}
}

// Name returns the provider name
func (p *CASProvider) Name() string { return "cas" }

// Begin redirects the browser to the CAS login page
func (p *CASProvider) Begin(w http.ResponseWriter, r *http.Request, _ string) error {
	loginURL := fmt.Sprintf("%s/login?service=%s",
		strings.TrimRight(p.cfg.BaseURL, "/"), url.QueryEscape(p.cfg.ServiceURL))
	http.Redirect(w, r, loginURL, http.StatusFound)
	return nil
}

// serviceResponse is the CAS 2.0 validation envelope
type serviceResponse struct {
	XMLName xml.Name `xml:"serviceResponse"`
	Success *struct {
		User string `xml:"user"`
	} `xml:"authenticationSuccess"`
	Failure *struct {
		Code    string `xml:"code,attr"`
		Message string `xml:",chardata"`
	} `xml:"authenticationFailure"`
}

// Complete redeems the service ticket from the callback request
func (p *CASProvider) Complete(r *http.Request) (Ticket, error) {
	serviceTicket := r.URL.Query().Get("ticket")
	if serviceTicket == "" {
		return Ticket{}, fmt.Errorf("%w: missing service ticket", ErrAuthFailed)
	}

	if _, seen := p.redeemed.Get(serviceTicket); seen {
		return Ticket{}, ErrReplay
	}

	principal, err := p.validate(r.Context(), serviceTicket)
	if err != nil {
		return Ticket{}, err
	}

	p.redeemed.Add(serviceTicket, time.Now())

	return Ticket{
		Principal: principal,
		Provider:  p.Name(),
		IssuedAt:  time.Now(),
	}, nil
}

func (p *CASProvider) validate(ctx context.Context, serviceTicket string) (string, error) {
	validateURL := fmt.Sprintf("%s/serviceValidate?service=%s&ticket=%s",
		strings.TrimRight(p.cfg.BaseURL, "/"),
		url.QueryEscape(p.cfg.ServiceURL), url.QueryEscape(serviceTicket))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, validateURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build validation request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ticket validation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ticket validation returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read validation response: %w", err)
	}

	var parsed serviceResponse
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse validation response: %w", err)
	}

	if parsed.Failure != nil {
		return "", fmt.Errorf("%w: %s (%s)", ErrAuthFailed,
			strings.TrimSpace(parsed.Failure.Message), parsed.Failure.Code)
	}
	if parsed.Success == nil || parsed.Success.User == "" {
		return "", fmt.Errorf("%w: validation response had no user", ErrAuthFailed)
	}

	return parsed.Success.User, nil
}
