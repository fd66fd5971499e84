package servicenow

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/cardhub/connectors/internal/application/extract"
	"github.com/cardhub/connectors/internal/application/hub"
	"github.com/cardhub/connectors/internal/domain/shared"
	"github.com/cardhub/connectors/internal/infrastructure/backend"
)

// Backend paths
const (
	catalogsPath       = "/api/sn_sc/servicecatalog/catalogs"
	itemsPath          = "/api/sn_sc/servicecatalog/items"
	cartPath           = "/api/sn_sc/servicecatalog/cart"
	checkoutPath       = "/api/sn_sc/servicecatalog/cart/checkout"
	taskTablePathRoot  = "/api/now/table/"
	defaultTaskTable   = "task"
	orderByNewestFirst = "ORDERBYDESCsys_created_on"
)

// Client issues the ServiceNow REST calls. The caller's connector credential
// is forwarded verbatim in Authorization.
type Client struct {
	backend *backend.Client
}

func NewClient(b *backend.Client) *Client {
	return &Client{backend: b}
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

// Catalogs lists every service catalog.
func (c *Client) Catalogs(ctx context.Context, rc hub.RequestContext) ([]Catalog, error) {
	var out catalogsResult
	if _, err := c.backend.DoJSON(ctx, c.request(rc, "list_catalogs", http.MethodGet, catalogsPath), &out); err != nil {
		return nil, err
	}
	return out.Result, nil
}

// Categories lists the categories of one catalog.
func (c *Client) Categories(ctx context.Context, rc hub.RequestContext, catalogID string) ([]Category, error) {
	path := catalogsPath + "/" + url.PathEscape(catalogID) + "/categories"
	var out categoriesResult
	if _, err := c.backend.DoJSON(ctx, c.request(rc, "list_categories", http.MethodGet, path), &out); err != nil {
		return nil, err
	}
	return out.Result.Categories, nil
}

// ItemQuery scopes an item search. Limit and Offset are forwarded as given.
type ItemQuery struct {
	Text       string
	CategoryID string
	Limit      string
	Offset     string
}

func (c *Client) Items(ctx context.Context, rc hub.RequestContext, q ItemQuery) ([]CatalogItem, error) {
	req := c.request(rc, "list_items", http.MethodGet, itemsPath)
	req.Query = url.Values{}
	req.Query.Set("sysparm_text", q.Text)
	req.Query.Set("sysparm_category", q.CategoryID)
	req.Query.Set("sysparm_limit", q.Limit)
	req.Query.Set("sysparm_offset", q.Offset)

	var out catalogItemsResult
	if _, err := c.backend.DoJSON(ctx, req, &out); err != nil {
		return nil, err
	}
	return out.Result, nil
}

func (c *Client) Cart(ctx context.Context, rc hub.RequestContext) (Cart, error) {
	var out cartResult
	if _, err := c.backend.DoJSON(ctx, c.request(rc, "get_cart", http.MethodGet, cartPath), &out); err != nil {
		return Cart{}, err
	}
	return out.Result, nil
}

func (c *Client) AddToCart(ctx context.Context, rc hub.RequestContext, itemID string, quantity int) error {
	body, err := backend.JSONBody(map[string]any{"sysparm_quantity": quantity})
	if err != nil {
		return err
	}
	req := c.request(rc, "add_to_cart", http.MethodPost, itemsPath+"/"+url.PathEscape(itemID)+"/add_to_cart")
	req.Body = body
	req.ContentType = "application/json"
	_, err = c.backend.Do(ctx, req)
	return err
}

// RemoveCartItem deletes one cart entry.
func (c *Client) RemoveCartItem(ctx context.Context, rc hub.RequestContext, entryID string) (*backend.Response, error) {
	return c.backend.Do(ctx, c.request(rc, "remove_cart_item", http.MethodDelete, cartPath+"/"+url.PathEscape(entryID)))
}

func (c *Client) EmptyCart(ctx context.Context, rc hub.RequestContext, cartID string) (*backend.Response, error) {
	return c.backend.Do(ctx, c.request(rc, "empty_cart", http.MethodDelete, cartPath+"/"+url.PathEscape(cartID)+"/empty"))
}

// Checkout orders the cart and returns the new request number.
func (c *Client) Checkout(ctx context.Context, rc hub.RequestContext) (string, error) {
	var out checkoutResult
	if _, err := c.backend.DoJSON(ctx, c.request(rc, "checkout", http.MethodPost, checkoutPath), &out); err != nil {
		return "", err
	}
	return out.Result.RequestNumber, nil
}

// TaskQuery selects task rows. A non-blank Number reads that task whatever
// its state; otherwise the caller's newest active tasks are read.
type TaskQuery struct {
	Table  string
	Number string
	Email  string
	Limit  int
}

func (q TaskQuery) values() url.Values {
	v := url.Values{}
	v.Set("sysparm_display_value", "true")
	if q.Number != "" {
		v.Set("number", q.Number)
		return v
	}
	v.Set("sysparm_limit", strconv.Itoa(q.Limit))
	v.Set("sysparm_offset", "0")
	v.Set("opened_by.email", q.Email)
	v.Set("active", "true")
	v.Set("sysparm_query", orderByNewestFirst)
	return v
}

func (c *Client) Tasks(ctx context.Context, rc hub.RequestContext, q TaskQuery) ([]Task, error) {
	table := q.Table
	if table == "" {
		table = defaultTaskTable
	}
	req := c.request(rc, "list_tasks", http.MethodGet, taskTablePathRoot+url.PathEscape(table))
	req.Query = q.values()

	var out tasksResult
	if _, err := c.backend.DoJSON(ctx, req, &out); err != nil {
		return nil, err
	}
	return out.Result, nil
}

// CreateTask files a row in table and returns its number.
func (c *Client) CreateTask(ctx context.Context, rc hub.RequestContext, table, shortDescription string) (string, error) {
	body, err := backend.JSONBody(map[string]string{
		"short_description": shortDescription,
		"caller_id":         rc.Email,
	})
	if err != nil {
		return "", err
	}
	req := c.request(rc, "create_task", http.MethodPost, taskTablePathRoot+url.PathEscape(table))
	req.Body = body
	req.ContentType = "application/json"

	var out createTaskResult
	if _, err := c.backend.DoJSON(ctx, req, &out); err != nil {
		return "", err
	}
	return out.Result.Number, nil
}

func (c *Client) DeleteTask(ctx context.Context, rc hub.RequestContext, sysID string) (*backend.Response, error) {
	return c.backend.Do(ctx, c.request(rc, "delete_task", http.MethodDelete, taskTablePathRoot+defaultTaskTable+"/"+url.PathEscape(sysID)))
}

// DeleteResult is what a delete-style action reports back to the hub: the
// backend status, and on failure the backend's error message.
type DeleteResult struct {
	Status  int
	Body    []byte
	Message string
}

// Failed reports whether the backend rejected the delete.
func (r DeleteResult) Failed() bool { return r.Status >= http.StatusBadRequest }

// toDeleteResult folds a delete reply into a DeleteResult. Rejections other
// than an invalid connector credential are reported, not raised, so the hub
// sees the backend's own status.
func toDeleteResult(resp *backend.Response, err error) (DeleteResult, error) {
	if err == nil {
		return DeleteResult{Status: resp.Status, Body: resp.Body}, nil
	}
	var be *shared.BackendError
	if !errors.As(err, &be) || be.Status == http.StatusUnauthorized {
		return DeleteResult{}, err
	}
	res := DeleteResult{Status: be.Status}
	if parsed, decodeErr := extract.Decode[errorResult](be.Body); decodeErr == nil {
		res.Message = parsed.Error.Message
	}
	return res, nil
}
