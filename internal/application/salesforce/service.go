// Package salesforce serves opportunity discount approval cards backed by
// Salesforce approval processes.
package salesforce

import (
	"context"
	"strings"

	"github.com/cardhub/connectors/internal/application/extract"
	"github.com/cardhub/connectors/internal/application/hub"
	"github.com/cardhub/connectors/internal/application/orchestrator"
	"github.com/cardhub/connectors/internal/domain/card"
	"github.com/cardhub/connectors/internal/domain/shared"
	"github.com/cardhub/connectors/internal/infrastructure/backend"
	"github.com/cardhub/connectors/internal/infrastructure/logger"
	"github.com/cardhub/connectors/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const ConnectorName = "salesforce"

// Config keys naming the opportunity discount columns.
const (
	ConfigDiscountPercentage = "Discount Percentage"
	ConfigReasonForDiscount  = "Reason for Discount"
)

type Service struct {
	client    *Client
	validator *hub.ConfigValidator
	opts      hub.ServiceOptions
	actions   *hub.ActionGuard
}

func NewService(client *Client, opts hub.ServiceOptions) (*Service, error) {
	meta, err := Metadata()
	if err != nil {
		return nil, err
	}
	validator, err := hub.NewConfigValidator(meta)
	if err != nil {
		return nil, err
	}
	return &Service{
		client:    client,
		validator: validator,
		opts:      opts,
		actions:   hub.NewActionGuard(ConnectorName, opts),
	}, nil
}

func (s *Service) span(ctx context.Context, operation string) (context.Context, trace.Span) {
	return telemetry.StartConnectorSpan(ctx, ConnectorName, operation)
}

func finish(span trace.Span, err error) {
	if err != nil {
		telemetry.RecordError(span, err)
	}
	span.End()
}

// Cards lists one card per work item assigned to the caller. The discount
// columns come from the connector config and are checked against the
// metadata schema before they reach a query.
func (s *Service) Cards(ctx context.Context, rc hub.RequestContext, req hub.CardRequest) (cards []card.Card, err error) {
	ctx, span := s.span(ctx, "cards")
	defer func() { finish(span, err) }()

	if strings.TrimSpace(rc.Email) == "" {
		return nil, &shared.ValidationError{Message: "Caller email is required", Keys: []string{"email"}}
	}
	if err := s.validator.Validate(req.Config); err != nil {
		return nil, err
	}
	if err := rc.RequireBackend(); err != nil {
		return nil, err
	}
	fields := Fields{
		DiscountPercentage: req.ConfigValue(ConfigDiscountPercentage, ""),
		ReasonForDiscount:  req.ConfigValue(ConfigReasonForDiscount, ""),
	}

	var (
		processes     []ProcessInstance
		opportunities map[string]Opportunity
	)
	plan, err := orchestrator.NewPlan(
		orchestrator.Step{
			Name: "work_items",
			Run: func(ctx context.Context) error {
				var err error
				processes, err = s.client.PendingWorkItems(ctx, rc, rc.Email)
				return err
			},
		},
		orchestrator.Step{
			Name:  "opportunities",
			After: []string{"work_items"},
			Run: func(ctx context.Context) error {
				var err error
				opportunities, err = s.opportunities(ctx, rc, processes, fields)
				return err
			},
		},
	)
	if err != nil {
		return nil, err
	}
	if err := plan.Run(ctx); err != nil {
		return nil, err
	}

	cards = []card.Card{}
	for _, p := range processes {
		item, ok := p.WorkItem()
		if !ok {
			continue
		}
		opp, ok := opportunities[p.TargetObjectID]
		if !ok {
			logger.L(ctx).Debug("Work item target not returned", zap.String("target_id", p.TargetObjectID))
			continue
		}
		cards = append(cards, DiscountCard(ctx, item, opp, fields, rc))
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrCardCount, len(cards))
	s.opts.Metrics.CardsEmitted(ctx, ConnectorName, len(cards))
	return cards, nil
}

// opportunities reads the targets of the processes that have a work item for
// the caller, keyed by opportunity id.
func (s *Service) opportunities(ctx context.Context, rc hub.RequestContext, processes []ProcessInstance, fields Fields) (map[string]Opportunity, error) {
	var ids []string
	for _, p := range processes {
		if _, ok := p.WorkItem(); ok && p.TargetObjectID != "" {
			ids = append(ids, p.TargetObjectID)
		}
	}
	ids = extract.UniqueBy(ids, func(id string) string { return id })
	if len(ids) == 0 {
		logger.L(ctx).Debug("No pending work items for caller")
		return map[string]Opportunity{}, nil
	}

	opps, err := s.client.Opportunities(ctx, rc, ids, fields.DiscountPercentage, fields.ReasonForDiscount)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Opportunity, len(opps))
	for _, o := range opps {
		byID[o.Field(ctx, "Id")] = o
	}
	return byID, nil
}

// Approve approves work item id with reason.
func (s *Service) Approve(ctx context.Context, rc hub.RequestContext, workItemID, reason string) (hub.Decision, error) {
	return s.act(ctx, rc, ActionApprove, workItemID, reason)
}

// Reject rejects work item id with reason.
func (s *Service) Reject(ctx context.Context, rc hub.RequestContext, workItemID, reason string) (hub.Decision, error) {
	return s.act(ctx, rc, ActionReject, workItemID, reason)
}

func (s *Service) act(ctx context.Context, rc hub.RequestContext, actionType, workItemID, reason string) (d hub.Decision, err error) {
	ctx, span := s.span(ctx, strings.ToLower(actionType))
	defer func() { finish(span, err) }()

	if strings.TrimSpace(reason) == "" {
		return hub.Decision{}, &shared.ValidationError{Message: ReasonKey + " is required", Keys: []string{ReasonKey}}
	}
	if err := rc.RequireBackend(); err != nil {
		return hub.Decision{}, err
	}

	var resp *backend.Response
	applied, err := s.actions.Do(ctx, strings.ToLower(actionType), workItemID, rc.Email, func(ctx context.Context) error {
		var err error
		resp, err = s.client.Act(ctx, rc, actionType, workItemID, reason)
		return err
	})
	if err != nil || !applied {
		return hub.Decision{Replayed: err == nil}, err
	}
	logger.L(ctx).Info("Work item decided", zap.String("work_item_id", workItemID), zap.String("action", actionType))
	return hub.Decision{Body: resp.Body}, nil
}
