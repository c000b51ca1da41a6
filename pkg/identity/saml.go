package identity

import (
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/http"
	"time"

	saml2 "github.com/russellhaering/gosaml2"
	dsig "github.com/russellhaering/goxmldsig"
)

// SAMLConfig holds SAML 2.0 service provider settings. The certificate
// is the IdP's signing certificate in PEM form.
type SAMLConfig struct {
	EntityID    string
	SSOURL      string
	Certificate string
	MetadataURL string
	CallbackURL string
	// Attribute that carries the enterprise principal; defaults to uid
	PrincipalAttr string
}

// SAMLProvider authenticates via SAML 2.0 POST binding
type SAMLProvider struct {
	cfg SAMLConfig
	sp  *saml2.SAMLServiceProvider
}

// NewSAMLProvider creates a SAML service provider
func NewSAMLProvider(cfg SAMLConfig) (*SAMLProvider, error) {
	if cfg.EntityID == "" || cfg.SSOURL == "" || cfg.Certificate == "" {
		return nil, fmt.Errorf("saml entity id, sso url, and certificate are required")
	}
	if cfg.PrincipalAttr == "" {
		cfg.PrincipalAttr = "uid"
	}

	block, _ := pem.Decode([]byte(cfg.Certificate))
	if block == nil {
		return nil, fmt.Errorf("failed to decode IdP certificate PEM")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse IdP certificate: %w", err)
	}

	sp := &saml2.SAMLServiceProvider{
		IdentityProviderSSOURL:      cfg.SSOURL,
		IdentityProviderIssuer:      cfg.EntityID,
		ServiceProviderIssuer:       cfg.MetadataURL,
		AssertionConsumerServiceURL: cfg.CallbackURL,
		AudienceURI:                 cfg.MetadataURL,
		IDPCertificateStore: &dsig.MemoryX509CertificateStore{
			Roots: []*x509.Certificate{cert},
		},
		SPKeyStore: dsig.RandomKeyStoreForTest(),
	}

	return &SAMLProvider{cfg: cfg, sp: sp}, nil
}

// Name returns the provider name
func (p *SAMLProvider) Name() string { return "saml" }

// Begin redirects to the IdP with an AuthnRequest
func (p *SAMLProvider) Begin(w http.ResponseWriter, r *http.Request, state string) error {
	authURL, err := p.sp.BuildAuthURL(state)
	if err != nil {
		return fmt.Errorf("failed to build auth URL: %w", err)
	}
	http.Redirect(w, r, authURL, http.StatusFound)
	return nil
}

// Complete validates the posted SAML assertion
func (p *SAMLProvider) Complete(r *http.Request) (Ticket, error) {
	if err := r.ParseForm(); err != nil {
		return Ticket{}, fmt.Errorf("failed to parse form: %w", err)
	}

	samlResponse := r.FormValue("SAMLResponse")
	if samlResponse == "" {
		return Ticket{}, fmt.Errorf("%w: missing SAMLResponse", ErrAuthFailed)
	}

	raw, err := base64.StdEncoding.DecodeString(samlResponse)
	if err != nil {
		return Ticket{}, fmt.Errorf("%w: malformed SAMLResponse: %v", ErrAuthFailed, err)
	}

	info, err := p.sp.RetrieveAssertionInfo(string(raw))
	if err != nil {
		return Ticket{}, fmt.Errorf("%w: assertion validation failed: %v", ErrAuthFailed, err)
	}
	if info.WarningInfo != nil && (info.WarningInfo.InvalidTime || info.WarningInfo.NotInAudience) {
		return Ticket{}, fmt.Errorf("%w: assertion rejected", ErrAuthFailed)
	}

	attrs := make(map[string]string)
	principal := ""
	for _, attr := range info.Values {
		if len(attr.Values) == 0 {
			continue
		}
		attrs[attr.Name] = attr.Values[0].Value
		if attr.Name == p.cfg.PrincipalAttr {
			principal = attr.Values[0].Value
		}
	}
	if principal == "" {
		principal = info.NameID
	}
	if principal == "" {
		return Ticket{}, fmt.Errorf("%w: assertion carried no principal", ErrAuthFailed)
	}

	return Ticket{
		Principal:  principal,
		Provider:   p.Name(),
		IssuedAt:   time.Now(),
		Attributes: attrs,
	}, nil
}
