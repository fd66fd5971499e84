// Package servicenow serves the service catalog, cart and ticket flows of
// the ServiceNow bot connector.
package servicenow

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/cardhub/connectors/internal/application/extract"
	"github.com/cardhub/connectors/internal/application/hub"
	"github.com/cardhub/connectors/internal/domain/card"
	"github.com/cardhub/connectors/internal/domain/shared"
	"github.com/cardhub/connectors/internal/infrastructure/config"
	"github.com/cardhub/connectors/internal/infrastructure/logger"
	"github.com/cardhub/connectors/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	ConnectorName = "servicenow"

	// ConfigTicketTable names the table bot discovery files tickets in.
	ConfigTicketTable = "file_ticket_table_name"
)

// Service orchestrates the backend calls behind each ServiceNow route.
type Service struct {
	client    *Client
	cfg       config.ServiceNowConfig
	validator *hub.ConfigValidator
	metrics   *telemetry.ConnectorMetrics
}

// NewService builds a Service. metrics may be nil.
func NewService(client *Client, cfg config.ServiceNowConfig, metrics *telemetry.ConnectorMetrics) (*Service, error) {
	meta, err := Metadata()
	if err != nil {
		return nil, err
	}
	validator, err := hub.NewConfigValidator(meta)
	if err != nil {
		return nil, err
	}
	if cfg.DefaultTicketTable == "" {
		cfg.DefaultTicketTable = defaultTaskTable
	}
	if cfg.TaskPageLimit <= 0 {
		cfg.TaskPageLimit = 5
	}
	if cfg.CatalogPageLimit <= 0 {
		cfg.CatalogPageLimit = 10
	}
	return &Service{client: client, cfg: cfg, validator: validator, metrics: metrics}, nil
}

// CatalogPageLimit is the item page size used when the caller sends none.
func (s *Service) CatalogPageLimit() int { return s.cfg.CatalogPageLimit }

func (s *Service) span(ctx context.Context, operation string) (context.Context, trace.Span) {
	return telemetry.StartConnectorSpan(ctx, ConnectorName, operation)
}

func (s *Service) emitted(ctx context.Context, cards []card.Card) []card.Card {
	s.metrics.CardsEmitted(ctx, ConnectorName, len(cards))
	return cards
}

func finish(span trace.Span, err error) {
	if err != nil {
		telemetry.RecordError(span, err)
	}
	span.End()
}

// CatalogItemsQuery selects items by catalog title, category title and
// free text. Limit and Offset are passed through to the backend.
type CatalogItemsQuery struct {
	Catalog   string
	Category  string
	Text      string
	ContextID string
	Limit     string
	Offset    string
}

// CatalogItems resolves the catalog, then the category within it, then lists
// the category's items. Each title must match exactly one entry.
func (s *Service) CatalogItems(ctx context.Context, rc hub.RequestContext, q CatalogItemsQuery) (cards []card.Card, err error) {
	ctx, span := s.span(ctx, "catalog_items")
	defer func() { finish(span, err) }()

	if strings.TrimSpace(q.Catalog) == "" || strings.TrimSpace(q.Category) == "" {
		return nil, &shared.ValidationError{Message: "Both catalog and category tokens are required", Keys: []string{"catalog", "category"}}
	}
	if err := rc.RequireBackend(); err != nil {
		return nil, err
	}

	catalogs, err := s.client.Catalogs(ctx, rc)
	if err != nil {
		return nil, err
	}
	catalog, err := extract.SelectOneByTitle(catalogs, q.Catalog, catalogsPath, func(c Catalog) string { return c.Title })
	if err != nil {
		logger.L(ctx).Debug("Catalog lookup failed", zap.String("catalog", q.Catalog), zap.Int("candidates", len(catalogs)))
		return nil, err
	}

	categories, err := s.client.Categories(ctx, rc, catalog.SysID)
	if err != nil {
		return nil, err
	}
	category, err := extract.SelectOneByTitle(categories, q.Category, catalogsPath+"/{catalog_id}/categories", func(c Category) string { return c.Title })
	if err != nil {
		logger.L(ctx).Debug("Category lookup failed",
			zap.String("category", q.Category),
			zap.String("catalog_id", catalog.SysID),
			zap.Int("candidates", len(categories)),
		)
		return nil, err
	}

	items, err := s.client.Items(ctx, rc, ItemQuery{
		Text:       q.Text,
		CategoryID: category.SysID,
		Limit:      q.Limit,
		Offset:     q.Offset,
	})
	if err != nil {
		return nil, err
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrCardCount, len(items))
	return s.emitted(ctx, CatalogItemCards(items, rc, q.ContextID)), nil
}

// Tasks lists the caller's newest open tasks, or the task with number when
// it is given.
func (s *Service) Tasks(ctx context.Context, rc hub.RequestContext, number string) (cards []card.Card, err error) {
	ctx, span := s.span(ctx, "tasks")
	defer func() { finish(span, err) }()
	return s.tasks(ctx, rc, defaultTaskTable, strings.TrimSpace(number), TaskUIStatus)
}

func (s *Service) tasks(ctx context.Context, rc hub.RequestContext, table, number, uiType string) ([]card.Card, error) {
	if err := rc.RequireBackend(); err != nil {
		return nil, err
	}
	q := TaskQuery{Table: table, Number: number, Email: rc.Email, Limit: s.cfg.TaskPageLimit}
	tasks, err := s.client.Tasks(ctx, rc, q)
	if err != nil {
		return nil, err
	}
	pageLimit := s.cfg.TaskPageLimit
	if number != "" {
		pageLimit = 0
	}
	return s.emitted(ctx, TaskCards(tasks, rc, pageLimit, uiType)), nil
}

// DeleteTask removes a task. Backend rejections come back as a failed
// DeleteResult carrying the backend status.
func (s *Service) DeleteTask(ctx context.Context, rc hub.RequestContext, sysID string) (res DeleteResult, err error) {
	ctx, span := s.span(ctx, "delete_task")
	defer func() { finish(span, err) }()

	if err := rc.RequireBackend(); err != nil {
		return DeleteResult{}, err
	}
	res, err = toDeleteResult(s.client.DeleteTask(ctx, rc, sysID))
	if err == nil && !res.Failed() {
		s.metrics.ActionApplied(ctx, ConnectorName, "delete_task")
	}
	return res, err
}

// CreateTask files a ticket in table for the caller and returns it.
func (s *Service) CreateTask(ctx context.Context, rc hub.RequestContext, table, shortDescription string) (cards []card.Card, err error) {
	ctx, span := s.span(ctx, "create_task")
	defer func() { finish(span, err) }()

	table = strings.TrimSpace(table)
	if table == "" {
		table = s.cfg.DefaultTicketTable
	}
	if err := s.validator.Validate(map[string]string{ConfigTicketTable: table}); err != nil {
		return nil, err
	}
	shortDescription = strings.TrimSpace(shortDescription)
	if shortDescription == "" || len([]rune(shortDescription)) > shortDescriptionMaxLength {
		return nil, &shared.ValidationError{Message: "shortDescription must be 1 to 160 characters", Keys: []string{"shortDescription"}}
	}
	if err := rc.RequireBackend(); err != nil {
		return nil, err
	}

	number, err := s.client.CreateTask(ctx, rc, table, shortDescription)
	if err != nil {
		return nil, err
	}
	if number == "" {
		return nil, shared.NewNotFoundError("Created %s has no number", table)
	}
	s.metrics.ActionApplied(ctx, ConnectorName, "create_task")
	logger.L(ctx).Info("Ticket filed", zap.String("table", table), zap.String("number", number))
	return s.tasks(ctx, rc, table, number, TaskUIConfirmation)
}

// Cart returns the caller's cart card.
func (s *Service) Cart(ctx context.Context, rc hub.RequestContext, contextID string) (c card.Card, err error) {
	ctx, span := s.span(ctx, "cart")
	defer func() { finish(span, err) }()

	if err := rc.RequireBackend(); err != nil {
		return card.Card{}, err
	}
	return s.cart(ctx, rc, contextID)
}

func (s *Service) cart(ctx context.Context, rc hub.RequestContext, contextID string) (card.Card, error) {
	cart, err := s.client.Cart(ctx, rc)
	if err != nil {
		return card.Card{}, err
	}
	s.metrics.CardsEmitted(ctx, ConnectorName, 1+len(cart.Items))
	return CartCard(cart, rc, contextID), nil
}

// AddToCart adds count units of item and returns the updated cart.
func (s *Service) AddToCart(ctx context.Context, rc hub.RequestContext, itemID string, count int) (c card.Card, err error) {
	ctx, span := s.span(ctx, "add_to_cart")
	defer func() { finish(span, err) }()

	if strings.TrimSpace(itemID) == "" {
		return card.Card{}, &shared.ValidationError{Message: "itemId is required", Keys: []string{"itemId"}}
	}
	if count < 1 {
		return card.Card{}, &shared.ValidationError{Message: "itemCount must be at least 1", Keys: []string{"itemCount"}}
	}
	if err := rc.RequireBackend(); err != nil {
		return card.Card{}, err
	}

	if err := s.client.AddToCart(ctx, rc, itemID, count); err != nil {
		return card.Card{}, err
	}
	s.metrics.ActionApplied(ctx, ConnectorName, "add_to_cart")
	return s.cart(ctx, rc, "")
}

// RemoveFromCart deletes one cart entry and returns the updated cart. An
// entry that is already gone is not an error.
func (s *Service) RemoveFromCart(ctx context.Context, rc hub.RequestContext, entryID string) (c card.Card, err error) {
	ctx, span := s.span(ctx, "remove_from_cart")
	defer func() { finish(span, err) }()

	if err := rc.RequireBackend(); err != nil {
		return card.Card{}, err
	}
	if _, err := s.client.RemoveCartItem(ctx, rc, entryID); err != nil {
		var be *shared.BackendError
		if !errors.As(err, &be) || be.Status != http.StatusNotFound {
			return card.Card{}, err
		}
		logger.L(ctx).Debug("Cart entry already removed", zap.String("entry_id", entryID))
	} else {
		s.metrics.ActionApplied(ctx, ConnectorName, "remove_from_cart")
	}
	return s.cart(ctx, rc, "")
}

// EmptyCart looks up the cart and empties it. An empty cart is left alone.
func (s *Service) EmptyCart(ctx context.Context, rc hub.RequestContext) (res DeleteResult, err error) {
	ctx, span := s.span(ctx, "empty_cart")
	defer func() { finish(span, err) }()

	if err := rc.RequireBackend(); err != nil {
		return DeleteResult{}, err
	}
	cart, err := s.client.Cart(ctx, rc)
	if err != nil {
		return DeleteResult{}, err
	}
	if cart.CartID == "" || len(cart.Items) == 0 {
		return DeleteResult{Status: http.StatusNoContent}, nil
	}
	res, err = toDeleteResult(s.client.EmptyCart(ctx, rc, cart.CartID))
	if err == nil && !res.Failed() {
		s.metrics.ActionApplied(ctx, ConnectorName, "empty_cart")
	}
	return res, err
}

// Checkout orders the cart and returns the tasks of the resulting request.
func (s *Service) Checkout(ctx context.Context, rc hub.RequestContext) (cards []card.Card, err error) {
	ctx, span := s.span(ctx, "checkout")
	defer func() { finish(span, err) }()

	if err := rc.RequireBackend(); err != nil {
		return nil, err
	}
	number, err := s.client.Checkout(ctx, rc)
	if err != nil {
		return nil, err
	}
	if number == "" {
		return nil, shared.NewNotFoundError("Checkout returned no request number")
	}
	s.metrics.ActionApplied(ctx, ConnectorName, "checkout")
	logger.L(ctx).Debug("Cart ordered", zap.String("request_number", number))
	return s.tasks(ctx, rc, defaultTaskTable, number, TaskUIStatus)
}

// BotDiscovery advertises the connector's bot flows. The ticket table comes
// from the connector config and defaults to the configured table.
func (s *Service) BotDiscovery(ctx context.Context, rc hub.RequestContext, req hub.CardRequest) (card.Card, error) {
	if err := s.validator.Validate(req.Config); err != nil {
		return card.Card{}, err
	}
	table := req.ConfigValue(ConfigTicketTable, s.cfg.DefaultTicketTable)
	logger.L(ctx).Debug("Bot discovery", zap.String("table", table))
	return DiscoveryCard(table, rc), nil
}
