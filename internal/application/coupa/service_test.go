package coupa

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/cardhub/connectors/internal/application/hub"
	"github.com/cardhub/connectors/internal/domain/card"
	"github.com/cardhub/connectors/internal/domain/shared"
	"github.com/cardhub/connectors/internal/infrastructure/backend"
	"github.com/cardhub/connectors/internal/infrastructure/cache"
	"github.com/cardhub/connectors/internal/infrastructure/config"
	"github.com/cardhub/connectors/internal/infrastructure/i18n"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

const (
	testEmail  = "admin@acme.com"
	testKey    = "caller-key"
	testPrefix = "https://hub.example.com/connectors/coupa/"
)

const usersBody = `[{"id":15882,"email":"admin@acme.com","firstname":"Ad","lastname":"Min"}]`

const approvalsBody = `[{"id":9001,"approvable-id":182964,"approvable-type":"RequisitionHeader","status":"pending_approval"}]`

func requisitionsBody(approver string) string {
	return `[{
		"id": 182964,
		"requisition-description": "New laptops for the design team",
		"justification": "Current machines are out of warranty",
		"mobile-total": "2500.5",
		"requested-by": {"firstname": "Jane", "lastname": "Doe", "email": "jane@acme.com"},
		"current-approval": {"id": 5555, "approver": {"id": 15882, "email": "` + approver + `"}},
		"ship-to-address": {"street1": "1 Main St", "street2": "", "city": "Springfield", "postal-code": "12345", "state": "IL", "location-code": "SPR-1"},
		"requisition-lines": [
			{"description": "Dell Latitude", "quantity": "2.0", "unit-price": "1200.25", "total": "2400.50",
			 "commodity": {"name": "Hardware"}, "supplier": {"company-code": "DELL01"},
			 "need-by-date": "2024-06-01", "payment-term": {"code": "Net 30"}, "shipping-term": {"code": "FOB"}},
			{"description": "USB-C dock", "quantity": 1, "unit-price": 100, "total": 100}
		],
		"attachments": [
			{"id": 2701685, "file": "requisition/attachments/quote.pdf"},
			{"id": 2701686, "file": ""}
		]
	}]`
}

// fakeCoupa records every request the service sends.
type fakeCoupa struct {
	*httptest.Server
	mux *http.ServeMux

	mu    sync.Mutex
	calls []string
}

func newFakeCoupa(t *testing.T, apiKey string) *fakeCoupa {
	t.Helper()
	f := &fakeCoupa{mux: http.NewServeMux()}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls = append(f.calls, r.Method+" "+r.URL.Path)
		f.mu.Unlock()
		assert.Equal(t, apiKey, r.Header.Get("X-COUPA-API-KEY"))
		f.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeCoupa) handle(pattern string, status int, body string) {
	f.mux.HandleFunc(pattern, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	})
}

func (f *fakeCoupa) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeCoupa) count(call string) int {
	n := 0
	for _, c := range f.called() {
		if c == call {
			n++
		}
	}
	return n
}

// withChain serves the users, approvals and requisitions lookups.
func (f *fakeCoupa) withChain(t *testing.T, approver string) {
	t.Helper()
	f.mux.HandleFunc("GET /api/users", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, testEmail, r.URL.Query().Get("email"))
		_, _ = io.WriteString(w, usersBody)
	})
	f.mux.HandleFunc("GET /api/approvals", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "15882", r.URL.Query().Get("approver_id"))
		assert.Equal(t, "pending_approval", r.URL.Query().Get("status"))
		_, _ = io.WriteString(w, approvalsBody)
	})
	f.mux.HandleFunc("GET /api/requisitions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "182964", r.URL.Query().Get("id"))
		_, _ = io.WriteString(w, requisitionsBody(approver))
	})
}

func newTestService(cfg config.CoupaConfig, guard shared.ReplayGuard) *Service {
	client := NewClient(backend.NewClient(backend.Options{}, zap.NewNop()))
	return NewService(client, cfg, hub.ServiceOptions{FanOutLimit: 4, Guard: guard})
}

func requestContext(t *testing.T, baseURL, credential string) hub.RequestContext {
	t.Helper()
	catalog, err := i18n.Load()
	require.NoError(t, err)
	return hub.NewRequestContext(testEmail, baseURL, credential, testPrefix, catalog.For(language.English))
}

func TestCards(t *testing.T) {
	f := newFakeCoupa(t, testKey)
	f.withChain(t, "ADMIN@acme.com")

	cards, err := newTestService(config.CoupaConfig{}, nil).Cards(context.Background(), requestContext(t, f.URL, testKey))
	require.NoError(t, err)
	require.Len(t, cards, 1)

	c := cards[0]
	assert.Equal(t, "182964", c.BackendID)
	assert.Equal(t, "Coupa", c.Name)
	require.NotNil(t, c.Header)
	assert.Equal(t, "Purchase request: Dell Latitude", c.Header.Title)
	require.NotNil(t, c.Header.Links)
	assert.Equal(t, f.URL+"/requisition_headers/182964", c.Header.Links.Title)

	require.NotNil(t, c.Body)
	fields := c.Body.Fields
	require.Len(t, fields, 7)
	assert.Equal(t, "New laptops for the design team", fields[0].Description)
	assert.Equal(t, "Jane Doe", fields[1].Description)
	assert.Equal(t, "2,500.50", fields[2].Description)
	assert.Equal(t, "Current machines are out of warranty", fields[3].Description)

	line := fields[4]
	assert.Equal(t, card.FieldSection, line.Type)
	assert.Equal(t, "Line item 1", line.Title)
	assert.Contains(t, line.Items, card.General("Unit price", "1,200.25"))
	assert.Contains(t, line.Items, card.General("Billing address", "1 Main St Springfield 12345 IL"))
	assert.Contains(t, line.Items, card.General("Location code", "SPR-1"))
	assert.Equal(t, "Line item 2", fields[5].Title)

	files := fields[6]
	assert.Equal(t, "Attachments", files.Title)
	require.Len(t, files.Items, 1)
	require.NotNil(t, files.Items[0].AttachmentRef)
	assert.Equal(t, testPrefix+"api/user/15882/182964/attachment/quote.pdf/2701685", files.Items[0].AttachmentRef.URL)
	assert.Equal(t, "application/pdf", files.Items[0].AttachmentRef.ContentType)

	require.Len(t, c.Actions, 2)
	assert.Equal(t, testPrefix+"api/approve/182964", c.Actions[0].URL)
	assert.True(t, c.Actions[0].IsPrimary())
	assert.Equal(t, CommentKey, c.Actions[0].UserInputs[0].ID)
	assert.Equal(t, testPrefix+"api/decline/182964", c.Actions[1].URL)
	assert.Equal(t, ReasonKey, c.Actions[1].UserInputs[0].ID)
	assert.Equal(t, card.ApprovalGroup, c.Actions[1].MutuallyExclusiveGroup)
}

func TestCards_OtherApprover(t *testing.T) {
	f := newFakeCoupa(t, testKey)
	f.withChain(t, "someone.else@acme.com")

	cards, err := newTestService(config.CoupaConfig{}, nil).Cards(context.Background(), requestContext(t, f.URL, testKey))
	require.NoError(t, err)
	assert.NotNil(t, cards)
	assert.Empty(t, cards)
}

func TestCards_ConfiguredKeyWins(t *testing.T) {
	f := newFakeCoupa(t, "configured-key")
	f.handle("GET /api/users", http.StatusOK, `[]`)

	svc := newTestService(config.CoupaConfig{APIKey: "configured-key"}, nil)
	cards, err := svc.Cards(context.Background(), requestContext(t, f.URL, testKey))
	require.NoError(t, err)
	assert.Empty(t, cards)
	assert.Equal(t, []string{"GET /api/users"}, f.called())
}

func TestCards_MissingCredential(t *testing.T) {
	f := newFakeCoupa(t, "")

	_, err := newTestService(config.CoupaConfig{}, nil).Cards(context.Background(), requestContext(t, f.URL, ""))
	var ve *shared.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Empty(t, f.called())
}

func TestCards_BlankEmail(t *testing.T) {
	f := newFakeCoupa(t, testKey)
	rc := requestContext(t, f.URL, testKey)
	rc.Email = " "

	_, err := newTestService(config.CoupaConfig{}, nil).Cards(context.Background(), rc)
	var ve *shared.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Empty(t, f.called())
}

func TestApprove(t *testing.T) {
	f := newFakeCoupa(t, testKey)
	f.withChain(t, testEmail)
	f.mux.HandleFunc("PUT /api/approvals/5555/approve", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "looks good", r.URL.Query().Get("reason"))
		_, _ = io.WriteString(w, `{"id":5555,"status":"approved"}`)
	})

	d, err := newTestService(config.CoupaConfig{}, nil).Approve(context.Background(), requestContext(t, f.URL, testKey), "182964", "looks good")
	require.NoError(t, err)
	assert.False(t, d.Replayed)
	assert.JSONEq(t, `{"id":5555,"status":"approved"}`, string(d.Body))
}

func TestApprove_NotCurrentApprover(t *testing.T) {
	f := newFakeCoupa(t, testKey)
	f.withChain(t, "someone.else@acme.com")

	_, err := newTestService(config.CoupaConfig{}, nil).Approve(context.Background(), requestContext(t, f.URL, testKey), "182964", "ok")
	var nf *shared.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Zero(t, f.count("PUT /api/approvals/5555/approve"))
}

func TestApprove_BlankComment(t *testing.T) {
	f := newFakeCoupa(t, testKey)

	_, err := newTestService(config.CoupaConfig{}, nil).Approve(context.Background(), requestContext(t, f.URL, testKey), "182964", "  ")
	var ve *shared.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{CommentKey}, ve.Keys)
	assert.Empty(t, f.called())
}

func TestApprove_ReplaySkipsBackend(t *testing.T) {
	f := newFakeCoupa(t, testKey)
	f.withChain(t, testEmail)
	f.handle("PUT /api/approvals/5555/approve", http.StatusOK, `{}`)

	guard := cache.NewInMemoryReplayGuard()
	t.Cleanup(func() { _ = guard.Close() })
	svc := newTestService(config.CoupaConfig{}, guard)
	rc := requestContext(t, f.URL, testKey)

	first, err := svc.Approve(context.Background(), rc, "182964", "ok")
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := svc.Approve(context.Background(), rc, "182964", "ok")
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, 1, f.count("PUT /api/approvals/5555/approve"))
}

func TestApprove_FailureReleasesClaim(t *testing.T) {
	f := newFakeCoupa(t, testKey)
	f.withChain(t, testEmail)
	f.handle("PUT /api/approvals/5555/approve", http.StatusBadRequest, `{"errors":{"approval":["already decided"]}}`)

	guard := cache.NewInMemoryReplayGuard()
	t.Cleanup(func() { _ = guard.Close() })
	svc := newTestService(config.CoupaConfig{}, guard)
	rc := requestContext(t, f.URL, testKey)

	for range 2 {
		_, err := svc.Approve(context.Background(), rc, "182964", "ok")
		var be *shared.BackendError
		require.ErrorAs(t, err, &be)
		assert.Equal(t, http.StatusBadRequest, be.Status)
		assert.False(t, be.Masked)
	}
	assert.Equal(t, 2, f.count("PUT /api/approvals/5555/approve"))
}

func TestDecline(t *testing.T) {
	f := newFakeCoupa(t, testKey)
	f.withChain(t, testEmail)
	f.mux.HandleFunc("PUT /api/approvals/5555/reject", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "over budget", r.URL.Query().Get("reason"))
		_, _ = io.WriteString(w, `{"status":"rejected"}`)
	})

	d, err := newTestService(config.CoupaConfig{}, nil).Decline(context.Background(), requestContext(t, f.URL, testKey), "182964", "over budget")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"rejected"}`, string(d.Body))
}

var quoteRef = AttachmentRef{UserID: "15882", ApprovableID: "182964", FileName: "quote.pdf", AttachmentID: "2701685"}

func TestAttachment(t *testing.T) {
	f := newFakeCoupa(t, testKey)
	f.withChain(t, testEmail)
	f.mux.HandleFunc("GET /api/users/15882/attachments/2701685", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = io.WriteString(w, "%PDF-1.4 quote")
	})

	d, err := newTestService(config.CoupaConfig{}, nil).Attachment(context.Background(), requestContext(t, f.URL, testKey), quoteRef)
	require.NoError(t, err)
	defer d.Body.Close()

	assert.Equal(t, "quote.pdf", d.FileName)
	assert.Equal(t, "application/pdf", d.ContentType)
	body, err := io.ReadAll(d.Body)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 quote", string(body))
}

func TestAttachment_BrokenChain(t *testing.T) {
	cases := map[string]AttachmentRef{
		"foreign user":       {UserID: "99", ApprovableID: "182964", FileName: "quote.pdf", AttachmentID: "2701685"},
		"foreign approval":   {UserID: "15882", ApprovableID: "1", FileName: "quote.pdf", AttachmentID: "2701685"},
		"foreign attachment": {UserID: "15882", ApprovableID: "182964", FileName: "quote.pdf", AttachmentID: "42"},
	}
	for name, ref := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFakeCoupa(t, testKey)
			f.withChain(t, testEmail)

			_, err := newTestService(config.CoupaConfig{}, nil).Attachment(context.Background(), requestContext(t, f.URL, testKey), ref)
			var nf *shared.NotFoundError
			require.ErrorAs(t, err, &nf)
			for _, call := range f.called() {
				assert.NotContains(t, call, "/attachments/")
			}
		})
	}
}

func TestAttachment_NotOwnedRequisition(t *testing.T) {
	f := newFakeCoupa(t, testKey)
	f.withChain(t, "someone.else@acme.com")

	_, err := newTestService(config.CoupaConfig{}, nil).Attachment(context.Background(), requestContext(t, f.URL, testKey), quoteRef)
	var nf *shared.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestAttachment_BackendErrorIsMasked(t *testing.T) {
	f := newFakeCoupa(t, testKey)
	f.withChain(t, testEmail)
	f.handle("GET /api/users/15882/attachments/2701685", http.StatusForbidden, `{}`)

	_, err := newTestService(config.CoupaConfig{}, nil).Attachment(context.Background(), requestContext(t, f.URL, testKey), quoteRef)
	var be *shared.BackendError
	require.True(t, errors.As(err, &be))
	assert.True(t, be.Masked)
	assert.Equal(t, http.StatusForbidden, be.Status)
}
