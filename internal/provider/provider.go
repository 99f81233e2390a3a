// Package provider implements the password-grant authorization core: grant
// validation, client authentication, redirect validation, ticket issuance, and
// response augmentation.
//
// Every operation returns modeled values. A Denial is a negative validation
// outcome the transport layer formats into an OAuth error response; a non-nil
// error means infrastructure failed (credential store unreachable) and maps to
// a generic server_error at the protocol boundary.
//
// The Provider holds no mutable state after construction and is safe for
// concurrent requests.
package provider

import (
	"context"
	"time"

	"oauth-provider/internal/clients"
	"oauth-provider/internal/common/errors"
	"oauth-provider/internal/common/logging"
	"oauth-provider/internal/storage"
)

// OAuth error codes used in Denial values.
const (
	CodeInvalidGrant   = "invalid_grant"
	CodeInvalidClient  = "invalid_client"
	CodeInvalidRequest = "invalid_request"
	CodeServerError    = "server_error"
)

// ClaimTypeName is the identity claim type carrying the principal's username.
const ClaimTypeName = "name"

// invalidGrantMessage is deliberately generic: it never distinguishes an
// unknown user from a wrong password, preventing user enumeration.
const invalidGrantMessage = "The username or password is incorrect"

// Denial is a modeled negative validation outcome, not a runtime fault.
type Denial struct {
	Code    string `json:"error"`
	Message string `json:"error_description"`
}

// StatusCode returns the HTTP status for this denial's OAuth error code.
func (d *Denial) StatusCode() int {
	switch d.Code {
	case CodeInvalidClient:
		return 401
	case CodeServerError:
		return 500
	default:
		return 400
	}
}

// Principal is the authenticated identity resolved from credentials.
// It is created per validation call and discarded after ticket issuance.
type Principal struct {
	Username string
}

// Claim is a single identity assertion on a ticket.
type Claim struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Ticket is the pre-serialization representation of an authenticated session.
// Its claim set feeds every downstream identity representation (bearer token,
// session cookie); its property bag round-trips into the token response.
type Ticket struct {
	Claims     []Claim
	Properties *Properties
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// Username returns the value of the ticket's name claim.
func (t *Ticket) Username() string {
	for _, claim := range t.Claims {
		if claim.Type == ClaimTypeName {
			return claim.Value
		}
	}
	return ""
}

// CredentialStore is the narrow slice of the storage interface the provider
// needs: a single, context-bound credential lookup.
type CredentialStore interface {
	LookupCredentials(ctx context.Context, username, password string) ([]*storage.User, error)
}

// GrantProvider is the capability set invoked by the protocol driver.
type GrantProvider interface {
	ValidateGrant(ctx context.Context, username, password string) (*Principal, *Denial, error)
	AuthenticateClient(clientID, clientSecret string) *Denial
	ValidateRedirect(clientID, redirectURI, requestRootURI string) *Denial
	IssueTicket(principal *Principal) *Ticket
	AugmentResponse(params map[string]string, props *Properties)
}

// reservedResponseKeys are host-owned token response parameters that ticket
// properties must never overwrite.
var reservedResponseKeys = map[string]bool{
	"access_token":  true,
	"token_type":    true,
	"expires_in":    true,
	"refresh_token": true,
}

// Provider implements GrantProvider against a credential store and a client
// registry.
type Provider struct {
	store    CredentialStore
	registry clients.Registry
	ttl      time.Duration
	now      func() time.Time
	logger   logging.Logger
}

// New creates a Provider. ttl is the ticket lifetime applied at issuance.
func New(store CredentialStore, registry clients.Registry, ttl time.Duration, logger logging.Logger) *Provider {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Provider{
		store:    store,
		registry: registry,
		ttl:      ttl,
		now:      time.Now,
		logger:   logger,
	}
}

// ValidateGrant checks a username/password pair against the credential store.
//
// Zero matches produce an invalid_grant denial with a generic message. More
// than one match is treated as success using the first result in store-return
// order; the anomaly is logged because duplicate credential matches usually
// indicate a store defect. A store failure is returned as an error and must be
// mapped to server_error by the caller - the flow fails closed.
func (p *Provider) ValidateGrant(ctx context.Context, username, password string) (*Principal, *Denial, error) {
	matches, err := p.store.LookupCredentials(ctx, username, password)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, errors.TimeoutError("credential lookup")
		}
		return nil, nil, errors.ConnectionError("credential store lookup failed", err)
	}

	if len(matches) == 0 {
		return nil, &Denial{Code: CodeInvalidGrant, Message: invalidGrantMessage}, nil
	}

	if len(matches) > 1 {
		p.logger.Warn("credential lookup returned multiple matches, using first",
			logging.String("username", username),
			logging.Int("matches", len(matches)))
	}

	return &Principal{Username: matches[0].Username}, nil, nil
}

// AuthenticateClient validates client identity during the token request's
// client-identification phase.
//
// An absent client id is accepted unconditionally: the password grant may be
// exercised by a public, non-confidential client that cannot identify itself.
// A present client id must resolve in the registry - unknown ids are denied,
// public clients must not send a secret, and confidential clients must present
// the registered secret.
func (p *Provider) AuthenticateClient(clientID, clientSecret string) *Denial {
	if clientID == "" {
		// Resource owner password credentials does not require a client id.
		return nil
	}

	reg, ok := p.registry.Lookup(clientID)
	if !ok {
		return &Denial{Code: CodeInvalidClient, Message: "unknown client"}
	}

	if reg.Public {
		if clientSecret != "" {
			return &Denial{Code: CodeInvalidClient, Message: "public client must not present a client secret"}
		}
		return nil
	}

	if !reg.VerifySecret(clientSecret) {
		return &Denial{Code: CodeInvalidClient, Message: "client authentication failed"}
	}

	return nil
}

// ValidateRedirect decides whether a redirect URI is acceptable for a client.
//
// Unknown client ids are denied outright. For the public client the redirect
// URI must equal the request's root origin by exact string comparison, with no
// normalization; confidential clients must match their registered URI exactly.
func (p *Provider) ValidateRedirect(clientID, redirectURI, requestRootURI string) *Denial {
	reg, ok := p.registry.Lookup(clientID)
	if !ok {
		return &Denial{Code: CodeInvalidRequest, Message: "unknown client_id"}
	}

	if redirectURI == "" {
		return &Denial{Code: CodeInvalidRequest, Message: "redirect_uri is required"}
	}

	expected := requestRootURI
	if !reg.Public {
		expected = reg.RedirectURI
	}

	if redirectURI != expected {
		return &Denial{Code: CodeInvalidRequest, Message: "redirect_uri mismatch"}
	}

	return nil
}

// IssueTicket converts an authenticated principal into a ticket.
//
// The claim set carries exactly one identity claim (the username); roles and
// scopes would extend it here. The property bag carries "userName", which
// round-trips into the token response. IssuedAt/ExpiresAt are stamped from the
// provider clock and TTL.
func (p *Provider) IssueTicket(principal *Principal) *Ticket {
	props := NewProperties()
	props.Set("userName", principal.Username)

	issuedAt := p.now()

	return &Ticket{
		Claims: []Claim{
			{Type: ClaimTypeName, Value: principal.Username},
		},
		Properties: props,
		IssuedAt:   issuedAt,
		ExpiresAt:  issuedAt.Add(p.ttl),
	}
}

// AugmentResponse copies every ticket property into the outbound response
// parameter map in insertion order. Host-reserved parameters are skipped so a
// property can never clobber access_token, token_type, expires_in, or
// refresh_token.
func (p *Provider) AugmentResponse(params map[string]string, props *Properties) {
	if props == nil {
		return
	}

	props.Each(func(key, value string) {
		if reservedResponseKeys[key] {
			p.logger.Warn("ticket property collides with reserved response parameter, skipping",
				logging.String("key", key))
			return
		}
		params[key] = value
	})
}
