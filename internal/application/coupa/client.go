package coupa

import (
	"context"
	"net/http"
	"net/url"

	"github.com/cardhub/connectors/internal/application/hub"
	"github.com/cardhub/connectors/internal/infrastructure/backend"
)

const (
	apiKeyHeader = "X-COUPA-API-KEY"

	usersPath        = "/api/users"
	approvalsPath    = "/api/approvals"
	requisitionsPath = "/api/requisitions"

	statusPendingApproval = "pending_approval"
)

// Approval decisions, as named in the approvals API.
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

// Client issues the Coupa REST calls with the API key of the request context.
type Client struct {
	backend *backend.Client
}

func NewClient(b *backend.Client) *Client {
	return &Client{backend: b}
}

func (c *Client) request(rc hub.RequestContext, operation, method, path string, query url.Values) backend.Request {
	h := http.Header{}
	h.Set(apiKeyHeader, rc.Credential)
	h.Set("Accept", "application/json")
	return backend.Request{
		Connector: ConnectorName,
		Operation: operation,
		Method:    method,
		BaseURL:   rc.BaseURL,
		Path:      path,
		Query:     query,
		Header:    h,
	}
}

// UsersByEmail lists the accounts registered under email.
func (c *Client) UsersByEmail(ctx context.Context, rc hub.RequestContext, email string) ([]User, error) {
	var out []User
	req := c.request(rc, "list_users", http.MethodGet, usersPath, url.Values{"email": {email}})
	if _, err := c.backend.DoJSON(ctx, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PendingApprovals lists the approvals waiting on approverID.
func (c *Client) PendingApprovals(ctx context.Context, rc hub.RequestContext, approverID string) ([]Approval, error) {
	var out []Approval
	req := c.request(rc, "list_approvals", http.MethodGet, approvalsPath, url.Values{
		"approver_id": {approverID},
		"status":      {statusPendingApproval},
	})
	if _, err := c.backend.DoJSON(ctx, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PendingRequisitions reads the pending requisitions with id. Coupa answers
// with a list even for a single id.
func (c *Client) PendingRequisitions(ctx context.Context, rc hub.RequestContext, id string) ([]Requisition, error) {
	var out []Requisition
	req := c.request(rc, "list_requisitions", http.MethodGet, requisitionsPath, url.Values{
		"id":     {id},
		"status": {statusPendingApproval},
	})
	if _, err := c.backend.DoJSON(ctx, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Decide applies decision to an approval and returns the backend reply.
func (c *Client) Decide(ctx context.Context, rc hub.RequestContext, approvalID, decision, reason string) (*backend.Response, error) {
	path := approvalsPath + "/" + url.PathEscape(approvalID) + "/" + decision
	req := c.request(rc, decision+"_approval", http.MethodPut, path, url.Values{"reason": {reason}})
	return c.backend.Do(ctx, req)
}

// Attachment opens a user attachment for streaming. The caller closes Body.
func (c *Client) Attachment(ctx context.Context, rc hub.RequestContext, userID, attachmentID string) (*backend.StreamResponse, error) {
	path := usersPath + "/" + url.PathEscape(userID) + "/attachments/" + url.PathEscape(attachmentID)
	req := c.request(rc, "get_attachment", http.MethodGet, path, nil)
	req.Header.Del("Accept")
	return c.backend.Stream(ctx, req)
}
