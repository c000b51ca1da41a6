package enterprise

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// Directory attribute names carried by the enterprise LDAP schema
const (
	attrUID     = "cn"
	attrSurname = "sn"
	attrGiven   = "givenname"
	attrTitle   = "title"
	attrMail    = "mail"
	attrFaculty = "kumcPersonFaculty"
	attrJobCode = "kumcPersonJobcode"
)

var lookupAttrs = []string{attrUID, attrSurname, attrGiven, attrTitle, attrMail, attrFaculty, attrJobCode}

// LDAPConfig holds directory connection settings
type LDAPConfig struct {
	URL      string
	BindDN   string
	BindPass string
	BaseDN   string
	Timeout  time.Duration
}

// LDAPDirectory resolves agents against the enterprise LDAP server. Each
// lookup dials, binds, searches, and closes; no connection or result is
// reused across calls.
type LDAPDirectory struct {
	cfg LDAPConfig
}

// NewLDAPDirectory creates an LDAP-backed directory
func NewLDAPDirectory(cfg LDAPConfig) *LDAPDirectory {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &LDAPDirectory{cfg: cfg}
}

func (d *LDAPDirectory) connect(ctx context.Context) (*ldap.Conn, error) {
	timeout := d.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	conn, err := ldap.DialURL(d.cfg.URL, ldap.DialWithDialer(&net.Dialer{Timeout: timeout}))
	if err != nil {
		return nil, fmt.Errorf("failed to dial directory: %w", err)
	}
	conn.SetTimeout(timeout)

	if d.cfg.BindDN != "" {
		if err := conn.Bind(d.cfg.BindDN, d.cfg.BindPass); err != nil {
			conn.Close()
			return nil, fmt.Errorf("directory bind failed: %w", err)
		}
	}
	return conn, nil
}

// Lookup resolves one principal name to an Agent
func (d *LDAPDirectory) Lookup(ctx context.Context, name string) (Agent, error) {
	conn, err := d.connect(ctx)
	if err != nil {
		return Agent{}, err
	}
	defer conn.Close()

	req := ldap.NewSearchRequest(
		d.cfg.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 2, 0, false,
		fmt.Sprintf("(%s=%s)", attrUID, ldap.EscapeFilter(name)),
		lookupAttrs,
		nil,
	)

	res, err := conn.Search(req)
	if err != nil {
		return Agent{}, fmt.Errorf("directory search failed: %w", err)
	}
	if len(res.Entries) == 0 {
		return Agent{}, ErrNotFound
	}
	// Duplicate cn entries indicate a directory integrity problem
	if len(res.Entries) > 1 {
		return Agent{}, fmt.Errorf("directory returned %d entries for %q", len(res.Entries), name)
	}

	return agentFromEntry(res.Entries[0]), nil
}

// Search browses the directory by surname/given-name for the people picker
func (d *LDAPDirectory) Search(ctx context.Context, filter SearchFilter) ([]Agent, error) {
	conn, err := d.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	max := filter.Max
	if max <= 0 || max > 100 {
		max = 25
	}

	conditions := ""
	if filter.Surname != "" {
		conditions += fmt.Sprintf("(%s=%s*)", attrSurname, ldap.EscapeFilter(filter.Surname))
	}
	if filter.GivenName != "" {
		conditions += fmt.Sprintf("(%s=%s*)", attrGiven, ldap.EscapeFilter(filter.GivenName))
	}
	if conditions == "" {
		return nil, fmt.Errorf("directory search requires a surname or given name")
	}

	req := ldap.NewSearchRequest(
		d.cfg.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, max, 0, false,
		"(&"+conditions+")",
		lookupAttrs,
		nil,
	)

	res, err := conn.Search(req)
	if err != nil && !ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded) {
		return nil, fmt.Errorf("directory search failed: %w", err)
	}

	agents := make([]Agent, 0, len(res.Entries))
	for _, entry := range res.Entries {
		agents = append(agents, agentFromEntry(entry))
	}
	return agents, nil
}

func agentFromEntry(entry *ldap.Entry) Agent {
	return Agent{
		UserID:    entry.GetAttributeValue(attrUID),
		Surname:   entry.GetAttributeValue(attrSurname),
		GivenName: entry.GetAttributeValue(attrGiven),
		Title:     entry.GetAttributeValue(attrTitle),
		Email:     entry.GetAttributeValue(attrMail),
		Faculty:   entry.GetAttributeValue(attrFaculty) == "Y",
		JobCode:   entry.GetAttributeValue(attrJobCode),
	}
}
