package handler

import (
	"context"

	"github.com/cardhub/connectors/internal/application/coupa"
	"github.com/cardhub/connectors/internal/application/hub"
	"github.com/cardhub/connectors/internal/domain/card"
	"github.com/gin-gonic/gin"
)

// objectTypeCard is the object type of every approval connector.
const objectTypeCard = "card"

type commentForm struct {
	Comment string `form:"comment"`
}

type reasonForm struct {
	Reason string `form:"reason"`
}

// CoupaService is the application service behind the Coupa routes.
type CoupaService interface {
	Cards(ctx context.Context, rc hub.RequestContext) ([]card.Card, error)
	Approve(ctx context.Context, rc hub.RequestContext, requisitionID, comment string) (hub.Decision, error)
	Decline(ctx context.Context, rc hub.RequestContext, requisitionID, reason string) (hub.Decision, error)
	Attachment(ctx context.Context, rc hub.RequestContext, ref coupa.AttachmentRef) (*hub.Download, error)
}

// CoupaHandler serves requisition approvals from Coupa
type CoupaHandler struct {
	BaseHandler
	service CoupaService
}

func NewCoupaHandler(base BaseHandler, service CoupaService) *CoupaHandler {
	return &CoupaHandler{BaseHandler: base, service: service}
}

// Register mounts the routes on a /coupa group
func (h *CoupaHandler) Register(g *gin.RouterGroup) {
	g.POST("/cards/requests", h.Cards)
	g.POST("/api/approve/:id", h.Approve)
	g.POST("/api/decline/:id", h.Decline)
	g.GET("/api/user/:userId/:approvableId/attachment/:fileName/:attachmentId", h.Attachment)
}

// Cards lists requisitions awaiting the caller's approval.
// POST /coupa/cards/requests
func (h *CoupaHandler) Cards(c *gin.Context) {
	rc, ok := h.requestContext(c, objectTypeCard)
	if !ok {
		return
	}
	cards, err := h.service.Cards(c.Request.Context(), rc)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.respondCards(c, cards)
}

// Approve approves a requisition with a comment.
// POST /coupa/api/approve/:id
func (h *CoupaHandler) Approve(c *gin.Context) {
	rc, ok := h.requestContext(c, objectTypeCard)
	if !ok {
		return
	}
	var form commentForm
	if !h.bind(c, &form) {
		return
	}
	d, err := h.service.Approve(c.Request.Context(), rc, c.Param("id"), form.Comment)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.respondDecision(c, d)
}

// Decline rejects a requisition with a reason.
// POST /coupa/api/decline/:id
func (h *CoupaHandler) Decline(c *gin.Context) {
	rc, ok := h.requestContext(c, objectTypeCard)
	if !ok {
		return
	}
	var form reasonForm
	if !h.bind(c, &form) {
		return
	}
	d, err := h.service.Decline(c.Request.Context(), rc, c.Param("id"), form.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.respondDecision(c, d)
}

// Attachment streams a requisition attachment.
// GET /coupa/api/user/:userId/:approvableId/attachment/:fileName/:attachmentId
func (h *CoupaHandler) Attachment(c *gin.Context) {
	rc, ok := h.requestContext(c, objectTypeCard)
	if !ok {
		return
	}
	d, err := h.service.Attachment(c.Request.Context(), rc, coupa.AttachmentRef{
		UserID:       c.Param("userId"),
		ApprovableID: c.Param("approvableId"),
		FileName:     c.Param("fileName"),
		AttachmentID: c.Param("attachmentId"),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.respondDownload(c, d)
}

// ConcurService is the application service behind the Concur routes.
type ConcurService interface {
	Cards(ctx context.Context, rc hub.RequestContext) ([]card.Card, error)
	Approve(ctx context.Context, rc hub.RequestContext, id, comment string) (hub.Decision, error)
	Reject(ctx context.Context, rc hub.RequestContext, id, reason string) (hub.Decision, error)
	Attachment(ctx context.Context, rc hub.RequestContext, id string) (*hub.Download, error)
}

// ConcurHandler serves expense report approvals from Concur
type ConcurHandler struct {
	BaseHandler
	service ConcurService
}

func NewConcurHandler(base BaseHandler, service ConcurService) *ConcurHandler {
	return &ConcurHandler{BaseHandler: base, service: service}
}

// Register mounts the routes on a /concur group
func (h *ConcurHandler) Register(g *gin.RouterGroup) {
	g.POST("/cards/requests", h.Cards)
	g.POST("/api/expense/approve/:id", h.Approve)
	g.POST("/api/expense/reject/:id", h.Reject)
	g.GET("/api/expense/report/:id/attachment", h.Attachment)
}

// POST /concur/cards/requests
func (h *ConcurHandler) Cards(c *gin.Context) {
	rc, ok := h.requestContext(c, objectTypeCard)
	if !ok {
		return
	}
	cards, err := h.service.Cards(c.Request.Context(), rc)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.respondCards(c, cards)
}

// POST /concur/api/expense/approve/:id
func (h *ConcurHandler) Approve(c *gin.Context) {
	rc, ok := h.requestContext(c, objectTypeCard)
	if !ok {
		return
	}
	var form commentForm
	if !h.bind(c, &form) {
		return
	}
	d, err := h.service.Approve(c.Request.Context(), rc, c.Param("id"), form.Comment)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.respondDecision(c, d)
}

// POST /concur/api/expense/reject/:id
func (h *ConcurHandler) Reject(c *gin.Context) {
	rc, ok := h.requestContext(c, objectTypeCard)
	if !ok {
		return
	}
	var form reasonForm
	if !h.bind(c, &form) {
		return
	}
	d, err := h.service.Reject(c.Request.Context(), rc, c.Param("id"), form.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.respondDecision(c, d)
}

// Attachment streams the report's receipt images as one file.
// GET /concur/api/expense/report/:id/attachment
func (h *ConcurHandler) Attachment(c *gin.Context) {
	rc, ok := h.requestContext(c, objectTypeCard)
	if !ok {
		return
	}
	d, err := h.service.Attachment(c.Request.Context(), rc, c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.respondDownload(c, d)
}

// SalesforceService is the application service behind the Salesforce routes.
type SalesforceService interface {
	Cards(ctx context.Context, rc hub.RequestContext, req hub.CardRequest) ([]card.Card, error)
	Approve(ctx context.Context, rc hub.RequestContext, workItemID, reason string) (hub.Decision, error)
	Reject(ctx context.Context, rc hub.RequestContext, workItemID, reason string) (hub.Decision, error)
}

// SalesforceHandler serves opportunity discount approvals from Salesforce
type SalesforceHandler struct {
	BaseHandler
	service SalesforceService
}

func NewSalesforceHandler(base BaseHandler, service SalesforceService) *SalesforceHandler {
	return &SalesforceHandler{BaseHandler: base, service: service}
}

// Register mounts the routes on a /salesforce group
func (h *SalesforceHandler) Register(g *gin.RouterGroup) {
	g.POST("/cards/requests", h.Cards)
	g.POST("/api/expense/approve/:workItemId", h.Approve)
	g.POST("/api/expense/reject/:workItemId", h.Reject)
}

// Cards lists discounts awaiting the caller's approval. The connector
// config arrives in the JSON body.
// POST /salesforce/cards/requests
func (h *SalesforceHandler) Cards(c *gin.Context) {
	rc, ok := h.requestContext(c, objectTypeCard)
	if !ok {
		return
	}
	req, ok := h.cardRequest(c)
	if !ok {
		return
	}
	cards, err := h.service.Cards(c.Request.Context(), rc, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.respondCards(c, cards)
}

// POST /salesforce/api/expense/approve/:workItemId
func (h *SalesforceHandler) Approve(c *gin.Context) {
	h.decide(c, h.service.Approve)
}

// POST /salesforce/api/expense/reject/:workItemId
func (h *SalesforceHandler) Reject(c *gin.Context) {
	h.decide(c, h.service.Reject)
}

func (h *SalesforceHandler) decide(c *gin.Context, act func(context.Context, hub.RequestContext, string, string) (hub.Decision, error)) {
	rc, ok := h.requestContext(c, objectTypeCard)
	if !ok {
		return
	}
	var form reasonForm
	if !h.bind(c, &form) {
		return
	}
	d, err := act(c.Request.Context(), rc, c.Param("workItemId"), form.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.respondDecision(c, d)
}
