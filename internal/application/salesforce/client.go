package salesforce

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/cardhub/connectors/internal/application/extract"
	"github.com/cardhub/connectors/internal/application/hub"
	"github.com/cardhub/connectors/internal/infrastructure/backend"
)

const (
	workItemsQuery = "SELECT Id, TargetObjectId, Status, " +
		"(SELECT Id, Actor.Name, Actor.Id, Actor.Email, Actor.Username FROM Workitems WHERE Actor.Email = '%s'), " +
		"(SELECT Id, StepStatus, Comments, Actor.Name, Actor.Id, Actor.Email, Actor.Username FROM Steps) " +
		"FROM ProcessInstance WHERE Status = 'Pending'"
	opportunityQuery = "SELECT Id, Name, FORMAT(ExpectedRevenue), Account.Owner.Name, %s, %s FROM Opportunity WHERE Id IN ('%s')"
)

// Client runs SOQL queries and workflow actions with the caller's credential.
type Client struct {
	backend      *backend.Client
	queryPath    string
	workflowPath string
}

func NewClient(b *backend.Client, queryPath, workflowPath string) *Client {
	return &Client{backend: b, queryPath: queryPath, workflowPath: workflowPath}
}

func (c *Client) request(rc hub.RequestContext, operation, method, path string) backend.Request {
	h := http.Header{}
	h.Set("Authorization", rc.Credential)
	return backend.Request{
		Connector: ConnectorName,
		Operation: operation,
		Method:    method,
		BaseURL:   rc.BaseURL,
		Path:      path,
		Header:    h,
	}
}

func (c *Client) query(ctx context.Context, rc hub.RequestContext, operation, soql string, out any) error {
	req := c.request(rc, operation, http.MethodGet, c.queryPath)
	req.Query = url.Values{"q": {soql}}
	_, err := c.backend.DoJSON(ctx, req, out)
	return err
}

// PendingWorkItems lists the pending approval processes, each with the work
// items assigned to email.
func (c *Client) PendingWorkItems(ctx context.Context, rc hub.RequestContext, email string) ([]ProcessInstance, error) {
	var out workItemsResult
	if err := c.query(ctx, rc, "query_work_items", fmt.Sprintf(workItemsQuery, soqlEscape(email)), &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

// Opportunities reads the opportunities with ids, selecting the two
// configured discount columns besides the fixed ones.
func (c *Client) Opportunities(ctx context.Context, rc hub.RequestContext, ids []string, discountField, reasonField string) ([]Opportunity, error) {
	escaped := make([]string, len(ids))
	for i, id := range ids {
		escaped[i] = soqlEscape(id)
	}
	soql := fmt.Sprintf(opportunityQuery, discountField, reasonField, strings.Join(escaped, "', '"))

	var out opportunitiesResult
	if err := c.query(ctx, rc, "query_opportunities", soql, &out); err != nil {
		return nil, err
	}
	opps := make([]Opportunity, 0, len(out.Records))
	for _, raw := range out.Records {
		opp, err := extract.Decode[Opportunity](raw)
		if err != nil {
			return nil, fmt.Errorf("decode opportunity: %w", err)
		}
		opps = append(opps, opp)
	}
	return opps, nil
}

// Act posts one approve or reject request for a work item.
func (c *Client) Act(ctx context.Context, rc hub.RequestContext, actionType, workItemID, comments string) (*backend.Response, error) {
	body, err := backend.JSONBody(approvalRequests{Requests: []approvalRequest{{
		ActionType: actionType,
		ContextID:  workItemID,
		Comments:   comments,
	}}})
	if err != nil {
		return nil, err
	}
	req := c.request(rc, strings.ToLower(actionType)+"_work_item", http.MethodPost, c.workflowPath)
	req.Body = body
	req.ContentType = "application/json"
	return c.backend.Do(ctx, req)
}
