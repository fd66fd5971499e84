// Package hub resolves the per-request context every connector works from:
// caller identity, backend connection parameters, routing prefix and locale.
package hub

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/cardhub/connectors/internal/domain/shared"
	"github.com/cardhub/connectors/internal/infrastructure/auth"
	"github.com/cardhub/connectors/internal/infrastructure/i18n"
	"golang.org/x/text/language"
)

// Inbound header names set by the hub.
const (
	HeaderAuthorization   = "Authorization"
	HeaderBaseURL         = "X-Connector-Base-Url"
	HeaderConnectorAuth   = "X-Connector-Authorization"
	HeaderRoutingPrefix   = "X-Routing-Prefix"
	HeaderRoutingTemplate = "X-Routing-Template"
	HeaderAcceptLanguage  = "Accept-Language"

	// ObjectTypePlaceholder is replaced in X-Routing-Template.
	ObjectTypePlaceholder = "INSERT_OBJECT_TYPE"
)

// RequestContext is immutable for the lifetime of one inbound request.
type RequestContext struct {
	Email         string
	BaseURL       string
	Credential    string
	RoutingPrefix string
	Locale        language.Tag

	// routingTemplate keeps the raw template so other object types can be
	// routed from the same request.
	routingTemplate string
	text            i18n.Text
}

// NewRequestContext builds a context directly, for callers that do not go
// through Resolve.
func NewRequestContext(email, baseURL, credential, routingPrefix string, text i18n.Text) RequestContext {
	return RequestContext{
		Email:         email,
		BaseURL:       strings.TrimRight(baseURL, "/"),
		Credential:    credential,
		RoutingPrefix: withSlash(routingPrefix),
		Locale:        i18n.Fallback,
		text:          text,
	}
}

// Text returns the display text provider bound to the request locale.
func (rc RequestContext) Text() i18n.Text {
	if rc.text == nil {
		return func(key string, _ ...any) string { return key }
	}
	return rc.text
}

// ActionURL joins the routing prefix with path segments. Segments after the
// first are path-escaped so correlation ids cannot alter the route.
func (rc RequestContext) ActionURL(path string, ids ...string) string {
	var b strings.Builder
	b.WriteString(rc.RoutingPrefix)
	b.WriteString(strings.TrimPrefix(path, "/"))
	for _, id := range ids {
		if !strings.HasSuffix(b.String(), "/") {
			b.WriteByte('/')
		}
		b.WriteString(url.PathEscape(id))
	}
	return b.String()
}

// RoutingPrefixFor returns the prefix for a given object type. Without a
// template it is the plain routing prefix.
func (rc RequestContext) RoutingPrefixFor(objectType string) string {
	if rc.routingTemplate == "" {
		return rc.RoutingPrefix
	}
	return withSlash(strings.ReplaceAll(rc.routingTemplate, ObjectTypePlaceholder, objectType))
}

// WithObjectType returns a copy routed for objectType.
func (rc RequestContext) WithObjectType(objectType string) RequestContext {
	rc.RoutingPrefix = rc.RoutingPrefixFor(objectType)
	return rc
}

// WithCredential returns a copy using credential for backend calls.
func (rc RequestContext) WithCredential(credential string) RequestContext {
	rc.Credential = credential
	return rc
}

// RequireBackend fails unless base URL and credential are present.
func (rc RequestContext) RequireBackend() error {
	if rc.BaseURL == "" {
		return shared.ErrMissingBaseURL
	}
	if rc.Credential == "" {
		return shared.ErrMissingCredential
	}
	return nil
}

// Resolver builds RequestContexts from inbound requests.
type Resolver struct {
	tokens  *auth.TokenParser
	catalog *i18n.Catalog
}

func NewResolver(tokens *auth.TokenParser, catalog *i18n.Catalog) *Resolver {
	return &Resolver{tokens: tokens, catalog: catalog}
}

// Resolve reads identity and connection parameters. It performs no I/O, so a
// request without a usable identity never reaches a backend.
func (r *Resolver) Resolve(header http.Header, objectType string) (RequestContext, error) {
	id, err := r.tokens.Parse(header.Get(HeaderAuthorization))
	if err != nil {
		if id == nil {
			return RequestContext{}, &shared.AuthenticationError{Message: err.Error()}
		}
		return RequestContext{}, &shared.AuthenticationError{Message: "User email is empty in the identity token"}
	}

	rc := RequestContext{
		Email:           id.Email,
		BaseURL:         strings.TrimRight(strings.TrimSpace(header.Get(HeaderBaseURL)), "/"),
		Credential:      strings.TrimSpace(header.Get(HeaderConnectorAuth)),
		routingTemplate: strings.TrimSpace(header.Get(HeaderRoutingTemplate)),
	}
	if prefix := strings.TrimSpace(header.Get(HeaderRoutingPrefix)); prefix != "" {
		rc.RoutingPrefix = withSlash(prefix)
	} else if rc.routingTemplate != "" {
		rc.RoutingPrefix = rc.RoutingPrefixFor(objectType)
	}

	if r.catalog != nil {
		rc.Locale = r.catalog.Match(header.Get(HeaderAcceptLanguage))
		rc.text = r.catalog.For(rc.Locale)
	} else {
		rc.Locale = i18n.Fallback
	}
	return rc, nil
}

func withSlash(s string) string {
	if s == "" || strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}

type contextKey struct{}

// NewContext stores rc in ctx.
func NewContext(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rc)
}

// FromContext returns the RequestContext stored by NewContext.
func FromContext(ctx context.Context) (RequestContext, bool) {
	rc, ok := ctx.Value(contextKey{}).(RequestContext)
	return rc, ok
}
