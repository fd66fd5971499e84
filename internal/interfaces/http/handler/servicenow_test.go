package handler

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/cardhub/connectors/internal/application/hub"
	"github.com/cardhub/connectors/internal/application/servicenow"
	"github.com/cardhub/connectors/internal/domain/card"
	"github.com/cardhub/connectors/internal/domain/shared"
	"github.com/cardhub/connectors/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockServiceNow struct {
	mock.Mock
}

func (m *mockServiceNow) BotDiscovery(ctx context.Context, rc hub.RequestContext, req hub.CardRequest) (card.Card, error) {
	args := m.Called(ctx, rc, req)
	return args.Get(0).(card.Card), args.Error(1)
}

func (m *mockServiceNow) CatalogItems(ctx context.Context, rc hub.RequestContext, q servicenow.CatalogItemsQuery) ([]card.Card, error) {
	args := m.Called(ctx, rc, q)
	return args.Get(0).([]card.Card), args.Error(1)
}

func (m *mockServiceNow) CatalogPageLimit() int {
	return m.Called().Int(0)
}

func (m *mockServiceNow) Tasks(ctx context.Context, rc hub.RequestContext, number string) ([]card.Card, error) {
	args := m.Called(ctx, rc, number)
	return args.Get(0).([]card.Card), args.Error(1)
}

func (m *mockServiceNow) DeleteTask(ctx context.Context, rc hub.RequestContext, sysID string) (servicenow.DeleteResult, error) {
	args := m.Called(ctx, rc, sysID)
	return args.Get(0).(servicenow.DeleteResult), args.Error(1)
}

func (m *mockServiceNow) CreateTask(ctx context.Context, rc hub.RequestContext, table, shortDescription string) ([]card.Card, error) {
	args := m.Called(ctx, rc, table, shortDescription)
	return args.Get(0).([]card.Card), args.Error(1)
}

func (m *mockServiceNow) Cart(ctx context.Context, rc hub.RequestContext, contextID string) (card.Card, error) {
	args := m.Called(ctx, rc, contextID)
	return args.Get(0).(card.Card), args.Error(1)
}

func (m *mockServiceNow) AddToCart(ctx context.Context, rc hub.RequestContext, itemID string, count int) (card.Card, error) {
	args := m.Called(ctx, rc, itemID, count)
	return args.Get(0).(card.Card), args.Error(1)
}

func (m *mockServiceNow) RemoveFromCart(ctx context.Context, rc hub.RequestContext, entryID string) (card.Card, error) {
	args := m.Called(ctx, rc, entryID)
	return args.Get(0).(card.Card), args.Error(1)
}

func (m *mockServiceNow) EmptyCart(ctx context.Context, rc hub.RequestContext) (servicenow.DeleteResult, error) {
	args := m.Called(ctx, rc)
	return args.Get(0).(servicenow.DeleteResult), args.Error(1)
}

func (m *mockServiceNow) Checkout(ctx context.Context, rc hub.RequestContext) ([]card.Card, error) {
	args := m.Called(ctx, rc)
	return args.Get(0).([]card.Card), args.Error(1)
}

func setupServiceNow(t *testing.T) (*gin.Engine, *mockServiceNow) {
	t.Helper()
	svc := new(mockServiceNow)
	h := NewServiceNowHandler(newBase(t), svc)
	r := gin.New()
	h.Register(r.Group("/servicenow"))
	return r, svc
}

func formRequest(t *testing.T, method, target, form string) *http.Request {
	t.Helper()
	req := hubRequest(t, method, target, &form)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func jsonRequest(t *testing.T, method, target, body string) *http.Request {
	t.Helper()
	req := hubRequest(t, method, target, &body)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func rcWithEmail(email string) any {
	return mock.MatchedBy(func(rc hub.RequestContext) bool { return rc.Email == email })
}

func TestServiceNowHandler_BotDiscovery(t *testing.T) {
	r, svc := setupServiceNow(t)
	svc.On("BotDiscovery", mock.Anything, rcWithEmail("admin@acme.com"), mock.MatchedBy(func(req hub.CardRequest) bool {
		return req.ConfigValue("ticket_table_name", "task") == "incident"
	})).Return(card.New(card.WithTitle("Bot discovery")), nil)

	w := serve(r, jsonRequest(t, http.MethodPost, "/servicenow/bot-discovery", `{"config":{"ticket_table_name":"incident"}}`))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"objects":[{"itemDetails":{`)
	assert.Contains(t, w.Body.String(), `"title":"Bot discovery"`)
	svc.AssertExpectations(t)
}

func TestServiceNowHandler_BotDiscovery_RoutesByObjectType(t *testing.T) {
	r, svc := setupServiceNow(t)
	svc.On("BotDiscovery", mock.Anything, mock.MatchedBy(func(rc hub.RequestContext) bool {
		return rc.RoutingPrefix == "https://hub.example.com/connectors/c1/botDiscovery/"
	}), mock.Anything).Return(card.New(), nil)

	w := serve(r, hubRequest(t, http.MethodPost, "/servicenow/bot-discovery", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestServiceNowHandler_CatalogItems(t *testing.T) {
	body := `{"tokens":{"catalog":"Service Catalog","category":["Hardware"],"text":["mac"],"contextId":"ctx-1"}}`

	t.Run("defaults the page", func(t *testing.T) {
		r, svc := setupServiceNow(t)
		svc.On("CatalogPageLimit").Return(10)
		svc.On("CatalogItems", mock.Anything, mock.Anything, servicenow.CatalogItemsQuery{
			Catalog:   "Service Catalog",
			Category:  "Hardware",
			Text:      "mac",
			ContextID: "ctx-1",
			Limit:     "10",
			Offset:    "0",
		}).Return([]card.Card{card.New(card.WithTitle("MacBook Pro"))}, nil)

		w := serve(r, jsonRequest(t, http.MethodPost, "/servicenow/api/v1/catalog-items", body))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "MacBook Pro")
		svc.AssertExpectations(t)
	})

	t.Run("forwards the page", func(t *testing.T) {
		r, svc := setupServiceNow(t)
		svc.On("CatalogItems", mock.Anything, mock.Anything, mock.MatchedBy(func(q servicenow.CatalogItemsQuery) bool {
			return q.Limit == "5" && q.Offset == "15"
		})).Return([]card.Card{}, nil)

		w := serve(r, jsonRequest(t, http.MethodPost, "/servicenow/api/v1/catalog-items?limit=5&offset=15", body))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"objects":[]}`, w.Body.String())
		svc.AssertNotCalled(t, "CatalogPageLimit")
	})

	t.Run("rejects a non numeric limit", func(t *testing.T) {
		r, svc := setupServiceNow(t)

		w := serve(r, jsonRequest(t, http.MethodPost, "/servicenow/api/v1/catalog-items?limit=ten", body))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "limit")
		svc.AssertNotCalled(t, "CatalogItems", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("ambiguous category", func(t *testing.T) {
		r, svc := setupServiceNow(t)
		svc.On("CatalogPageLimit").Return(10)
		svc.On("CatalogItems", mock.Anything, mock.Anything, mock.Anything).
			Return([]card.Card(nil), &shared.LookupAmbiguityError{Title: "Hardware", Endpoint: "categories", Matches: 0})

		w := serve(r, jsonRequest(t, http.MethodPost, "/servicenow/api/v1/catalog-items", body))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestServiceNowHandler_Tasks(t *testing.T) {
	r, svc := setupServiceNow(t)
	svc.On("Tasks", mock.Anything, mock.Anything, "INC0010001").
		Return([]card.Card{card.New(card.WithTitle("INC0010001"))}, nil)

	w := serve(r, formRequest(t, http.MethodPost, "/servicenow/api/v1/tasks", "number=INC0010001"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "INC0010001")
	svc.AssertExpectations(t)
}

func TestServiceNowHandler_DeleteTask(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		r, svc := setupServiceNow(t)
		svc.On("DeleteTask", mock.Anything, mock.Anything, "abc123").
			Return(servicenow.DeleteResult{Status: http.StatusNoContent}, nil)

		w := serve(r, hubRequest(t, http.MethodDelete, "/servicenow/api/v1/tasks/abc123", nil))

		assert.Equal(t, http.StatusNoContent, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("backend rejection is reported", func(t *testing.T) {
		r, svc := setupServiceNow(t)
		svc.On("DeleteTask", mock.Anything, mock.Anything, "abc123").
			Return(servicenow.DeleteResult{Status: http.StatusForbidden, Message: "Operation Failed"}, nil)

		w := serve(r, hubRequest(t, http.MethodDelete, "/servicenow/api/v1/tasks/abc123", nil))

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "403", w.Header().Get(dto.HeaderBackendStatus))
		assert.JSONEq(t, `{"result":{"message":"Operation Failed"}}`, w.Body.String())
	})

	t.Run("rejected credential", func(t *testing.T) {
		r, svc := setupServiceNow(t)
		svc.On("DeleteTask", mock.Anything, mock.Anything, "abc123").
			Return(servicenow.DeleteResult{}, &shared.BackendError{Status: http.StatusUnauthorized, Method: http.MethodDelete, Endpoint: "/api/now/table/task/abc123"})

		w := serve(r, hubRequest(t, http.MethodDelete, "/servicenow/api/v1/tasks/abc123", nil))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"message":"invalid_connector_token"}`, w.Body.String())
	})
}

func TestServiceNowHandler_CreateTask(t *testing.T) {
	t.Run("files the ticket", func(t *testing.T) {
		r, svc := setupServiceNow(t)
		svc.On("CreateTask", mock.Anything, mock.Anything, "incident", "My laptop is broken").
			Return([]card.Card{card.New(card.WithTitle("INC0010002"))}, nil)

		w := serve(r, formRequest(t, http.MethodPost, "/servicenow/api/v1/task/create", "type=incident&shortDescription=My+laptop+is+broken"))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "INC0010002")
		svc.AssertExpectations(t)
	})

	t.Run("description too long", func(t *testing.T) {
		r, svc := setupServiceNow(t)
		form := "type=incident&shortDescription=" + strings.Repeat("a", 161)

		w := serve(r, formRequest(t, http.MethodPost, "/servicenow/api/v1/task/create", form))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "shortDescription: Must be at most 160 characters")
		svc.AssertNotCalled(t, "CreateTask", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("blank type", func(t *testing.T) {
		r, svc := setupServiceNow(t)

		w := serve(r, formRequest(t, http.MethodPost, "/servicenow/api/v1/task/create", "type=+&shortDescription=help"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "type: This field is required")
		svc.AssertNotCalled(t, "CreateTask", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestServiceNowHandler_Cart(t *testing.T) {
	t.Run("view", func(t *testing.T) {
		r, svc := setupServiceNow(t)
		svc.On("Cart", mock.Anything, mock.Anything, "ctx-9").Return(card.New(card.WithTitle("Cart")), nil)

		w := serve(r, jsonRequest(t, http.MethodPost, "/servicenow/api/v1/cart", `{"tokens":{"contextId":"ctx-9"}}`))

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("add", func(t *testing.T) {
		r, svc := setupServiceNow(t)
		svc.On("AddToCart", mock.Anything, mock.Anything, "item-1", 2).Return(card.New(card.WithTitle("Cart")), nil)

		w := serve(r, formRequest(t, http.MethodPut, "/servicenow/api/v1/cart", "itemId=item-1&itemCount=2"))

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("add without item", func(t *testing.T) {
		r, svc := setupServiceNow(t)

		w := serve(r, formRequest(t, http.MethodPut, "/servicenow/api/v1/cart", "itemCount=2"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "itemId")
		svc.AssertNotCalled(t, "AddToCart", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("remove", func(t *testing.T) {
		r, svc := setupServiceNow(t)
		svc.On("RemoveFromCart", mock.Anything, mock.Anything, "entry-1").Return(card.New(card.WithTitle("Cart")), nil)

		w := serve(r, hubRequest(t, http.MethodDelete, "/servicenow/api/v1/cart/entry-1", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("empty", func(t *testing.T) {
		r, svc := setupServiceNow(t)
		svc.On("EmptyCart", mock.Anything, mock.Anything).
			Return(servicenow.DeleteResult{Status: http.StatusOK, Body: []byte(`{"result":{}}`)}, nil)

		w := serve(r, hubRequest(t, http.MethodDelete, "/servicenow/api/v1/cart", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"result":{}}`, w.Body.String())
	})

	t.Run("checkout", func(t *testing.T) {
		r, svc := setupServiceNow(t)
		svc.On("Checkout", mock.Anything, mock.MatchedBy(func(rc hub.RequestContext) bool {
			return rc.RoutingPrefix == "https://hub.example.com/connectors/c1/task/"
		})).Return([]card.Card{card.New(card.WithTitle("REQ0010001"))}, nil)

		w := serve(r, hubRequest(t, http.MethodPost, "/servicenow/api/v1/checkout", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "REQ0010001")
		svc.AssertExpectations(t)
	})
}

func TestServiceNowHandler_BlankIdentityNeverReachesService(t *testing.T) {
	r, svc := setupServiceNow(t)
	req := hubRequest(t, http.MethodPost, "/servicenow/api/v1/checkout", nil)
	req.Header.Set(hub.HeaderAuthorization, identityToken(t, ""))

	w := serve(r, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, svc.Calls)
}
