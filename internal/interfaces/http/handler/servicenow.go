package handler

import (
	"context"
	"strconv"

	"github.com/cardhub/connectors/internal/application/hub"
	"github.com/cardhub/connectors/internal/application/servicenow"
	"github.com/cardhub/connectors/internal/domain/card"
	"github.com/cardhub/connectors/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// ServiceNowService is the application service behind the ServiceNow routes.
type ServiceNowService interface {
	BotDiscovery(ctx context.Context, rc hub.RequestContext, req hub.CardRequest) (card.Card, error)
	CatalogItems(ctx context.Context, rc hub.RequestContext, q servicenow.CatalogItemsQuery) ([]card.Card, error)
	CatalogPageLimit() int
	Tasks(ctx context.Context, rc hub.RequestContext, number string) ([]card.Card, error)
	DeleteTask(ctx context.Context, rc hub.RequestContext, sysID string) (servicenow.DeleteResult, error)
	CreateTask(ctx context.Context, rc hub.RequestContext, table, shortDescription string) ([]card.Card, error)
	Cart(ctx context.Context, rc hub.RequestContext, contextID string) (card.Card, error)
	AddToCart(ctx context.Context, rc hub.RequestContext, itemID string, count int) (card.Card, error)
	RemoveFromCart(ctx context.Context, rc hub.RequestContext, entryID string) (card.Card, error)
	EmptyCart(ctx context.Context, rc hub.RequestContext) (servicenow.DeleteResult, error)
	Checkout(ctx context.Context, rc hub.RequestContext) ([]card.Card, error)
}

// ServiceNowHandler serves the ServiceNow bot connector
type ServiceNowHandler struct {
	BaseHandler
	service ServiceNowService
}

func NewServiceNowHandler(base BaseHandler, service ServiceNowService) *ServiceNowHandler {
	return &ServiceNowHandler{BaseHandler: base, service: service}
}

// Register mounts the routes on a /servicenow group
func (h *ServiceNowHandler) Register(g *gin.RouterGroup) {
	g.POST("/bot-discovery", h.BotDiscovery)
	g.POST("/api/v1/catalog-items", h.CatalogItems)
	g.POST("/api/v1/tasks", h.Tasks)
	g.DELETE("/api/v1/tasks/:taskId", h.DeleteTask)
	g.POST("/api/v1/task/create", h.CreateTask)
	g.POST("/api/v1/cart", h.Cart)
	g.PUT("/api/v1/cart", h.AddToCart)
	g.DELETE("/api/v1/cart", h.EmptyCart)
	g.DELETE("/api/v1/cart/:cartItemId", h.RemoveFromCart)
	g.POST("/api/v1/checkout", h.Checkout)
}

type catalogPage struct {
	Limit  string `form:"limit" binding:"omitempty,numeric"`
	Offset string `form:"offset" binding:"omitempty,numeric"`
}

type tasksForm struct {
	Number string `form:"number"`
}

type addToCartForm struct {
	ItemID    string `form:"itemId" binding:"required,notblank"`
	ItemCount int    `form:"itemCount" binding:"required,min=1"`
}

type createTaskForm struct {
	Type             string `form:"type" binding:"required,notblank"`
	ShortDescription string `form:"shortDescription" binding:"required,notblank,max=160"`
}

// BotDiscovery advertises the bot flows.
// POST /servicenow/bot-discovery
func (h *ServiceNowHandler) BotDiscovery(c *gin.Context) {
	rc, ok := h.requestContext(c, servicenow.ObjectTypeBotDiscovery)
	if !ok {
		return
	}
	req, ok := h.cardRequest(c)
	if !ok {
		return
	}
	discovery, err := h.service.BotDiscovery(c.Request.Context(), rc, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.respondBotObjects(c, discovery)
}

// CatalogItems lists the items of a catalog category.
// POST /servicenow/api/v1/catalog-items?limit=&offset=
func (h *ServiceNowHandler) CatalogItems(c *gin.Context) {
	rc, ok := h.requestContext(c, servicenow.ObjectTypeCart)
	if !ok {
		return
	}
	var page catalogPage
	if err := c.ShouldBindQuery(&page); err != nil {
		h.HandleError(c, middleware.BindingError(err))
		return
	}
	if page.Limit == "" {
		page.Limit = strconv.Itoa(h.service.CatalogPageLimit())
	}
	if page.Offset == "" {
		page.Offset = "0"
	}
	req, ok := h.cardRequest(c)
	if !ok {
		return
	}

	cards, err := h.service.CatalogItems(c.Request.Context(), rc, servicenow.CatalogItemsQuery{
		Catalog:   req.Token("catalog"),
		Category:  req.Token("category"),
		Text:      req.Token("text"),
		ContextID: req.Token("contextId"),
		Limit:     page.Limit,
		Offset:    page.Offset,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.respondBotObjects(c, cards...)
}

// Tasks lists the caller's open tasks, or one task by number.
// POST /servicenow/api/v1/tasks
func (h *ServiceNowHandler) Tasks(c *gin.Context) {
	rc, ok := h.requestContext(c, servicenow.ObjectTypeBotDiscovery)
	if !ok {
		return
	}
	var form tasksForm
	if !h.bind(c, &form) {
		return
	}
	cards, err := h.service.Tasks(c.Request.Context(), rc, form.Number)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.respondBotObjects(c, cards...)
}

// DeleteTask removes one task.
// DELETE /servicenow/api/v1/tasks/:taskId
func (h *ServiceNowHandler) DeleteTask(c *gin.Context) {
	rc, ok := h.requestContext(c, servicenow.ObjectTypeBotDiscovery)
	if !ok {
		return
	}
	res, err := h.service.DeleteTask(c.Request.Context(), rc, c.Param("taskId"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.respondDelete(c, res.Status, res.Body, res.Message, res.Failed())
}

// CreateTask files a ticket and returns it.
// POST /servicenow/api/v1/task/create
func (h *ServiceNowHandler) CreateTask(c *gin.Context) {
	rc, ok := h.requestContext(c, servicenow.ObjectTypeBotDiscovery)
	if !ok {
		return
	}
	var form createTaskForm
	if !h.bind(c, &form) {
		return
	}
	cards, err := h.service.CreateTask(c.Request.Context(), rc, form.Type, form.ShortDescription)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.respondBotObjects(c, cards...)
}

// Cart returns the caller's cart.
// POST /servicenow/api/v1/cart
func (h *ServiceNowHandler) Cart(c *gin.Context) {
	rc, ok := h.requestContext(c, servicenow.ObjectTypeCart)
	if !ok {
		return
	}
	req, ok := h.cardRequest(c)
	if !ok {
		return
	}
	cart, err := h.service.Cart(c.Request.Context(), rc, req.Token("contextId"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.respondBotObjects(c, cart)
}

// AddToCart adds an item and returns the cart.
// PUT /servicenow/api/v1/cart
func (h *ServiceNowHandler) AddToCart(c *gin.Context) {
	rc, ok := h.requestContext(c, servicenow.ObjectTypeCart)
	if !ok {
		return
	}
	var form addToCartForm
	if !h.bind(c, &form) {
		return
	}
	cart, err := h.service.AddToCart(c.Request.Context(), rc, form.ItemID, form.ItemCount)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.respondBotObjects(c, cart)
}

// EmptyCart empties the caller's cart.
// DELETE /servicenow/api/v1/cart
func (h *ServiceNowHandler) EmptyCart(c *gin.Context) {
	rc, ok := h.requestContext(c, servicenow.ObjectTypeCart)
	if !ok {
		return
	}
	res, err := h.service.EmptyCart(c.Request.Context(), rc)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.respondDelete(c, res.Status, res.Body, res.Message, res.Failed())
}

// RemoveFromCart deletes one entry and returns the cart.
// DELETE /servicenow/api/v1/cart/:cartItemId
func (h *ServiceNowHandler) RemoveFromCart(c *gin.Context) {
	rc, ok := h.requestContext(c, servicenow.ObjectTypeCart)
	if !ok {
		return
	}
	cart, err := h.service.RemoveFromCart(c.Request.Context(), rc, c.Param("cartItemId"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.respondBotObjects(c, cart)
}

// Checkout orders the cart and returns the resulting request's tasks.
// POST /servicenow/api/v1/checkout
func (h *ServiceNowHandler) Checkout(c *gin.Context) {
	rc, ok := h.requestContext(c, servicenow.ObjectTypeTask)
	if !ok {
		return
	}
	cards, err := h.service.Checkout(c.Request.Context(), rc)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.respondBotObjects(c, cards...)
}
