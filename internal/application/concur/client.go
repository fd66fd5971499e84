package concur

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/cardhub/connectors/internal/application/hub"
	"github.com/cardhub/connectors/internal/domain/shared"
	"github.com/cardhub/connectors/internal/infrastructure/backend"
	"golang.org/x/oauth2"
)

const (
	usersPath         = "/api/v3.0/common/users"
	reportDigestsPath = "/api/v3.0/expense/reportdigests"
	reportPathRoot    = "/api/expense/expensereport/v2.0/report/"
)

// ServiceAccount is the "username:password:client-id:client-secret"
// credential used for the password grant.
type ServiceAccount struct {
	Username     string
	Password     string
	ClientID     string
	ClientSecret string
}

// ParseServiceAccount splits a service credential. Anything other than
// exactly four colon-separated parts is rejected.
func ParseServiceAccount(raw string) (ServiceAccount, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ServiceAccount{}, shared.ErrMissingCredential
	}
	parts := strings.Split(raw, ":")
	if len(parts) != 4 {
		return ServiceAccount{}, &shared.ValidationError{
			Message: "Service account credential must be username:password:client-id:client-secret",
			Keys:    []string{"X-Connector-Authorization"},
		}
	}
	return ServiceAccount{Username: parts[0], Password: parts[1], ClientID: parts[2], ClientSecret: parts[3]}, nil
}

// Client issues the Concur calls. Every call but the token exchange carries
// the bearer token in the request context credential.
type Client struct {
	backend   *backend.Client
	tokenPath string
}

func NewClient(b *backend.Client, tokenPath string) *Client {
	return &Client{backend: b, tokenPath: tokenPath}
}

// Token runs the OAuth2 password grant against the instance and returns an
// Authorization header value.
func (c *Client) Token(ctx context.Context, baseURL string, account ServiceAccount) (string, error) {
	if _, err := backend.ParseBaseURL(baseURL); err != nil {
		return "", err
	}
	conf := oauth2.Config{
		ClientID:     account.ClientID,
		ClientSecret: account.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  strings.TrimRight(baseURL, "/") + c.tokenPath,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.backend.HTTPClient())
	tok, err := conf.PasswordCredentialsToken(ctx, account.Username, account.Password)
	if err != nil {
		return "", c.tokenError(ctx, err)
	}
	return tok.Type() + " " + tok.AccessToken, nil
}

func (c *Client) tokenError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return &shared.BackendError{
			Status:   re.Response.StatusCode,
			Method:   http.MethodPost,
			Endpoint: c.tokenPath,
			Body:     re.Body,
		}
	}
	return &shared.TransportError{Endpoint: c.tokenPath, Err: err}
}

func (c *Client) request(rc hub.RequestContext, operation, method, baseURL, path string) backend.Request {
	h := http.Header{}
	h.Set("Authorization", rc.Credential)
	return backend.Request{
		Connector: ConnectorName,
		Operation: operation,
		Method:    method,
		BaseURL:   baseURL,
		Path:      path,
		Header:    h,
	}
}

// UserByEmail returns the profile whose primary email is email.
func (c *Client) UserByEmail(ctx context.Context, rc hub.RequestContext, email string) (User, bool, error) {
	req := c.request(rc, "get_user", http.MethodGet, rc.BaseURL, usersPath)
	req.Query = url.Values{"primaryEmail": {email}}

	var out usersResult
	if _, err := c.backend.DoJSON(ctx, req, &out); err != nil {
		return User{}, false, err
	}
	if len(out.Items) == 0 {
		return User{}, false, nil
	}
	return out.Items[0], true, nil
}

// ReportDigests lists the reports waiting on the approver with loginID.
func (c *Client) ReportDigests(ctx context.Context, rc hub.RequestContext, loginID string) ([]ReportDigest, error) {
	req := c.request(rc, "list_report_digests", http.MethodGet, rc.BaseURL, reportDigestsPath)
	req.Query = url.Values{"approverLoginID": {loginID}, "user": {"ALL"}}

	var out digestsResult
	if _, err := c.backend.DoJSON(ctx, req, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) Report(ctx context.Context, rc hub.RequestContext, id string) (Report, error) {
	var out Report
	req := c.request(rc, "get_report", http.MethodGet, rc.BaseURL, reportPathRoot+url.PathEscape(id))
	if _, err := c.backend.DoJSON(ctx, req, &out); err != nil {
		return Report{}, err
	}
	if out.ReportID == "" {
		out.ReportID = id
	}
	return out, nil
}

// ErrForeignLink is returned for a report link whose origin differs from the
// caller's instance. The bearer token is never sent to such a link.
var ErrForeignLink = errors.New("report link points outside the Concur instance")

// sameInstance checks that link has the scheme and host of baseURL.
func sameInstance(baseURL, link string) error {
	base, err := backend.ParseBaseURL(baseURL)
	if err != nil {
		return err
	}
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrForeignLink, err)
	}
	if !strings.EqualFold(u.Scheme, base.Scheme) || !strings.EqualFold(u.Host, base.Host) {
		return fmt.Errorf("%w: host %q", ErrForeignLink, u.Host)
	}
	return nil
}

// WorkflowAction posts an approve or send-back decision to the report's
// workflow URL, which is absolute.
func (c *Client) WorkflowAction(ctx context.Context, rc hub.RequestContext, workflowURL, action, comment string) (*backend.Response, error) {
	if err := sameInstance(rc.BaseURL, workflowURL); err != nil {
		return nil, err
	}
	body, err := xml.Marshal(workflowAction{Action: action, Comment: comment})
	if err != nil {
		return nil, err
	}
	req := c.request(rc, "workflow_action", http.MethodPost, workflowURL, "")
	req.Body = append([]byte(xml.Header), body...)
	req.ContentType = "application/xml"
	return c.backend.Do(ctx, req)
}

// ReportImage opens the report's receipt image for streaming.
func (c *Client) ReportImage(ctx context.Context, rc hub.RequestContext, imageURL string) (*backend.StreamResponse, error) {
	if err := sameInstance(rc.BaseURL, imageURL); err != nil {
		return nil, err
	}
	return c.backend.Stream(ctx, c.request(rc, "get_report_image", http.MethodGet, imageURL, ""))
}
