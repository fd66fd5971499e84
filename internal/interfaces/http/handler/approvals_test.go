package handler

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/cardhub/connectors/internal/application/coupa"
	"github.com/cardhub/connectors/internal/application/hub"
	"github.com/cardhub/connectors/internal/domain/card"
	"github.com/cardhub/connectors/internal/domain/shared"
	"github.com/cardhub/connectors/internal/interfaces/http/dto"
	"github.com/cardhub/connectors/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockCoupa struct {
	mock.Mock
}

func (m *mockCoupa) Cards(ctx context.Context, rc hub.RequestContext) ([]card.Card, error) {
	args := m.Called(ctx, rc)
	return args.Get(0).([]card.Card), args.Error(1)
}

func (m *mockCoupa) Approve(ctx context.Context, rc hub.RequestContext, requisitionID, comment string) (hub.Decision, error) {
	args := m.Called(ctx, rc, requisitionID, comment)
	return args.Get(0).(hub.Decision), args.Error(1)
}

func (m *mockCoupa) Decline(ctx context.Context, rc hub.RequestContext, requisitionID, reason string) (hub.Decision, error) {
	args := m.Called(ctx, rc, requisitionID, reason)
	return args.Get(0).(hub.Decision), args.Error(1)
}

func (m *mockCoupa) Attachment(ctx context.Context, rc hub.RequestContext, ref coupa.AttachmentRef) (*hub.Download, error) {
	args := m.Called(ctx, rc, ref)
	d, _ := args.Get(0).(*hub.Download)
	return d, args.Error(1)
}

type mockConcur struct {
	mock.Mock
}

func (m *mockConcur) Cards(ctx context.Context, rc hub.RequestContext) ([]card.Card, error) {
	args := m.Called(ctx, rc)
	return args.Get(0).([]card.Card), args.Error(1)
}

func (m *mockConcur) Approve(ctx context.Context, rc hub.RequestContext, id, comment string) (hub.Decision, error) {
	args := m.Called(ctx, rc, id, comment)
	return args.Get(0).(hub.Decision), args.Error(1)
}

func (m *mockConcur) Reject(ctx context.Context, rc hub.RequestContext, id, reason string) (hub.Decision, error) {
	args := m.Called(ctx, rc, id, reason)
	return args.Get(0).(hub.Decision), args.Error(1)
}

func (m *mockConcur) Attachment(ctx context.Context, rc hub.RequestContext, id string) (*hub.Download, error) {
	args := m.Called(ctx, rc, id)
	d, _ := args.Get(0).(*hub.Download)
	return d, args.Error(1)
}

type mockSalesforce struct {
	mock.Mock
}

func (m *mockSalesforce) Cards(ctx context.Context, rc hub.RequestContext, req hub.CardRequest) ([]card.Card, error) {
	args := m.Called(ctx, rc, req)
	return args.Get(0).([]card.Card), args.Error(1)
}

func (m *mockSalesforce) Approve(ctx context.Context, rc hub.RequestContext, workItemID, reason string) (hub.Decision, error) {
	args := m.Called(ctx, rc, workItemID, reason)
	return args.Get(0).(hub.Decision), args.Error(1)
}

func (m *mockSalesforce) Reject(ctx context.Context, rc hub.RequestContext, workItemID, reason string) (hub.Decision, error) {
	args := m.Called(ctx, rc, workItemID, reason)
	return args.Get(0).(hub.Decision), args.Error(1)
}

func setupCoupa(t *testing.T) (*gin.Engine, *mockCoupa) {
	t.Helper()
	svc := new(mockCoupa)
	r := gin.New()
	NewCoupaHandler(newBase(t), svc).Register(r.Group("/coupa"))
	return r, svc
}

func setupConcur(t *testing.T) (*gin.Engine, *mockConcur) {
	t.Helper()
	svc := new(mockConcur)
	r := gin.New()
	NewConcurHandler(newBase(t), svc).Register(r.Group("/concur"))
	return r, svc
}

func setupSalesforce(t *testing.T) (*gin.Engine, *mockSalesforce) {
	t.Helper()
	svc := new(mockSalesforce)
	r := gin.New()
	NewSalesforceHandler(newBase(t), svc).Register(r.Group("/salesforce"))
	return r, svc
}

func TestCoupaHandler_Cards(t *testing.T) {
	r, svc := setupCoupa(t)
	svc.On("Cards", mock.Anything, mock.MatchedBy(func(rc hub.RequestContext) bool {
		return rc.Email == "admin@acme.com" && rc.RoutingPrefix == "https://hub.example.com/connectors/c1/card/"
	})).Return([]card.Card{card.New(card.WithBackendID("182"))}, nil)

	w := serve(r, hubRequest(t, http.MethodPost, "/coupa/cards/requests", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cards":[{`)
	assert.Contains(t, w.Body.String(), `"backend_id":"182"`)
	svc.AssertExpectations(t)
}

func TestCoupaHandler_CardsEmpty(t *testing.T) {
	r, svc := setupCoupa(t)
	svc.On("Cards", mock.Anything, mock.Anything).Return([]card.Card(nil), nil)

	w := serve(r, hubRequest(t, http.MethodPost, "/coupa/cards/requests", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"cards":[]}`, w.Body.String())
}

func TestCoupaHandler_Decisions(t *testing.T) {
	t.Run("approve", func(t *testing.T) {
		r, svc := setupCoupa(t)
		svc.On("Approve", mock.Anything, mock.Anything, "182", "looks good").
			Return(hub.Decision{Body: []byte(`{"id":182,"status":"approved"}`)}, nil)

		w := serve(r, formRequest(t, http.MethodPost, "/coupa/api/approve/182", "comment=looks+good"))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"id":182,"status":"approved"}`, w.Body.String())
		svc.AssertExpectations(t)
	})

	t.Run("replayed decline", func(t *testing.T) {
		r, svc := setupCoupa(t)
		svc.On("Decline", mock.Anything, mock.Anything, "182", "too expensive").
			Return(hub.Decision{Replayed: true}, nil)

		w := serve(r, formRequest(t, http.MethodPost, "/coupa/api/decline/182", "reason=too+expensive"))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{}`, w.Body.String())
	})

	t.Run("not the caller's requisition", func(t *testing.T) {
		r, svc := setupCoupa(t)
		svc.On("Approve", mock.Anything, mock.Anything, "999", "").
			Return(hub.Decision{}, shared.NewNotFoundError("Requisition 999 is not pending for admin@acme.com"))

		w := serve(r, formRequest(t, http.MethodPost, "/coupa/api/approve/999", ""))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestCoupaHandler_Attachment(t *testing.T) {
	r, svc := setupCoupa(t)
	ref := coupa.AttachmentRef{UserID: "15", ApprovableID: "182", FileName: "quote.pdf", AttachmentID: "33"}
	svc.On("Attachment", mock.Anything, mock.Anything, ref).Return(&hub.Download{
		FileName:    "quote.pdf",
		ContentType: "application/pdf",
		Size:        8,
		Body:        io.NopCloser(strings.NewReader("%PDF-1.4")),
	}, nil)

	w := serve(r, hubRequest(t, http.MethodGet, "/coupa/api/user/15/182/attachment/quote.pdf/33", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, "8", w.Header().Get("Content-Length"))
	assert.Equal(t, "inline; filename=quote.pdf", w.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF-1.4", w.Body.String())
}

func TestCoupaHandler_AttachmentMasksBackendStatus(t *testing.T) {
	r, svc := setupCoupa(t)
	svc.On("Attachment", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, shared.MaskBackendStatus(&shared.BackendError{Status: http.StatusNotFound, Method: http.MethodGet, Endpoint: "/api/users/15"}))

	w := serve(r, hubRequest(t, http.MethodGet, "/coupa/api/user/15/182/attachment/quote.pdf/33", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "404", w.Header().Get(dto.HeaderBackendStatus))
}

func TestConcurHandler(t *testing.T) {
	t.Run("cards", func(t *testing.T) {
		r, svc := setupConcur(t)
		svc.On("Cards", mock.Anything, mock.Anything).Return([]card.Card{card.New(card.WithTitle("Trip to Paris"))}, nil)

		w := serve(r, hubRequest(t, http.MethodPost, "/concur/cards/requests", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Trip to Paris")
	})

	t.Run("approve passes the xml reply through", func(t *testing.T) {
		r, svc := setupConcur(t)
		reply := `<?xml version="1.0" encoding="utf-8"?><ActionStatus><Status>SUCCESS</Status></ActionStatus>`
		svc.On("Approve", mock.Anything, mock.Anything, "nHnl$p", "ok").Return(hub.Decision{Body: []byte(reply)}, nil)

		w := serve(r, formRequest(t, http.MethodPost, "/concur/api/expense/approve/nHnl$p", "comment=ok"))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "xml")
		assert.Equal(t, reply, w.Body.String())
		svc.AssertExpectations(t)
	})

	t.Run("reject", func(t *testing.T) {
		r, svc := setupConcur(t)
		svc.On("Reject", mock.Anything, mock.Anything, "r1", "missing receipt").Return(hub.Decision{Replayed: true}, nil)

		w := serve(r, formRequest(t, http.MethodPost, "/concur/api/expense/reject/r1", "reason=missing+receipt"))

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("attachment", func(t *testing.T) {
		r, svc := setupConcur(t)
		svc.On("Attachment", mock.Anything, mock.Anything, "r1").Return(&hub.Download{
			FileName: "r1.pdf",
			Size:     -1,
			Body:     io.NopCloser(strings.NewReader("%PDF-1.4\n")),
		}, nil)

		w := serve(r, hubRequest(t, http.MethodGet, "/concur/api/expense/report/r1/attachment", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
		assert.Equal(t, "inline; filename=r1.pdf", w.Header().Get("Content-Disposition"))
	})

	t.Run("missing identity", func(t *testing.T) {
		r, svc := setupConcur(t)
		req := hubRequest(t, http.MethodPost, "/concur/cards/requests", nil)
		req.Header.Del(hub.HeaderAuthorization)

		w := serve(r, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, svc.Calls)
	})
}

func TestSalesforceHandler(t *testing.T) {
	t.Run("cards read the config from the body", func(t *testing.T) {
		r, svc := setupSalesforce(t)
		svc.On("Cards", mock.Anything, mock.Anything, mock.MatchedBy(func(req hub.CardRequest) bool {
			return req.ConfigValue("sf_query_path", "") == "/services/data/v44.0/query"
		})).Return([]card.Card{}, nil)

		w := serve(r, jsonRequest(t, http.MethodPost, "/salesforce/cards/requests", `{"config":{"sf_query_path":"/services/data/v44.0/query"}}`))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"cards":[]}`, w.Body.String())
		svc.AssertExpectations(t)
	})

	t.Run("malformed body", func(t *testing.T) {
		r, svc := setupSalesforce(t)

		w := serve(r, jsonRequest(t, http.MethodPost, "/salesforce/cards/requests", `{"config":`))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, svc.Calls)
	})

	t.Run("chunked body over the size cap", func(t *testing.T) {
		svc := new(mockSalesforce)
		r := gin.New()
		g := r.Group("/salesforce", middleware.BodyLimit(64))
		NewSalesforceHandler(newBase(t), svc).Register(g)

		body := `{"tokens":["` + strings.Repeat("006", 40) + `"]}`
		req := jsonRequest(t, http.MethodPost, "/salesforce/cards/requests", body)
		req.Body = io.NopCloser(strings.NewReader(body))
		req.ContentLength = -1

		w := serve(r, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Empty(t, svc.Calls)
	})

	t.Run("approve", func(t *testing.T) {
		r, svc := setupSalesforce(t)
		svc.On("Approve", mock.Anything, mock.Anything, "04i1", "fine").
			Return(hub.Decision{Body: []byte(`[{"instanceStatus":"Approved","success":true}]`)}, nil)

		w := serve(r, formRequest(t, http.MethodPost, "/salesforce/api/expense/approve/04i1", "reason=fine"))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `[{"instanceStatus":"Approved","success":true}]`, w.Body.String())
		svc.AssertExpectations(t)
	})

	t.Run("reject", func(t *testing.T) {
		r, svc := setupSalesforce(t)
		svc.On("Reject", mock.Anything, mock.Anything, "04i1", "too deep").Return(hub.Decision{}, nil)

		w := serve(r, formRequest(t, http.MethodPost, "/salesforce/api/expense/reject/04i1", "reason=too+deep"))

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})
}
