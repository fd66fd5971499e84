// Package coupa serves purchase requisition approval cards for Coupa.
package coupa

import (
	"context"
	"strings"

	"github.com/cardhub/connectors/internal/application/extract"
	"github.com/cardhub/connectors/internal/application/hub"
	"github.com/cardhub/connectors/internal/application/orchestrator"
	"github.com/cardhub/connectors/internal/domain/card"
	"github.com/cardhub/connectors/internal/domain/shared"
	"github.com/cardhub/connectors/internal/infrastructure/backend"
	"github.com/cardhub/connectors/internal/infrastructure/config"
	"github.com/cardhub/connectors/internal/infrastructure/logger"
	"github.com/cardhub/connectors/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const ConnectorName = "coupa"

// Service orchestrates the backend calls behind each Coupa route.
type Service struct {
	client  *Client
	cfg     config.CoupaConfig
	opts    hub.ServiceOptions
	actions *hub.ActionGuard
}

func NewService(client *Client, cfg config.CoupaConfig, opts hub.ServiceOptions) *Service {
	return &Service{client: client, cfg: cfg, opts: opts, actions: hub.NewActionGuard(ConnectorName, opts)}
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

// authorize applies the configured API key, which takes precedence over the
// caller's connector credential.
func (s *Service) authorize(rc hub.RequestContext) (hub.RequestContext, error) {
	if strings.TrimSpace(rc.Email) == "" {
		return rc, &shared.ValidationError{Message: "Caller email is required", Keys: []string{"email"}}
	}
	if key := strings.TrimSpace(s.cfg.APIKey); key != "" {
		rc = rc.WithCredential(key)
	}
	return rc, rc.RequireBackend()
}

// Cards lists the requisitions whose current approval is assigned to the
// caller, one card per requisition.
func (s *Service) Cards(ctx context.Context, rc hub.RequestContext) (cards []card.Card, err error) {
	ctx, span := s.span(ctx, "cards")
	defer func() { finish(span, err) }()

	rc, err = s.authorize(rc)
	if err != nil {
		return nil, err
	}
	pending, err := s.pendingRequisitions(ctx, rc)
	if err != nil {
		return nil, err
	}

	cards = make([]card.Card, 0, len(pending))
	for _, p := range pending {
		cards = append(cards, RequisitionCard(p, rc))
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrCardCount, len(cards))
	s.opts.Metrics.CardsEmitted(ctx, ConnectorName, len(cards))
	return cards, nil
}

type userApproval struct {
	userID   string
	approval Approval
}

// pendingRequisitions walks users, their pending approvals and the
// requisitions behind them. Requisitions reached through several approvals
// are reported once.
func (s *Service) pendingRequisitions(ctx context.Context, rc hub.RequestContext) ([]pendingRequisition, error) {
	users, err := s.client.UsersByEmail(ctx, rc, rc.Email)
	if err != nil {
		return nil, err
	}

	perUser, err := orchestrator.Collect(ctx, s.opts.FanOutLimit, users, func(ctx context.Context, u User) ([]userApproval, error) {
		approvals, err := s.client.PendingApprovals(ctx, rc, u.ID.String())
		if err != nil {
			return nil, err
		}
		out := make([]userApproval, 0, len(approvals))
		for _, a := range approvals {
			out = append(out, userApproval{userID: u.ID.String(), approval: a})
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	var approvals []userApproval
	for _, ua := range perUser {
		approvals = append(approvals, ua...)
	}

	perApproval, err := orchestrator.Collect(ctx, s.opts.FanOutLimit, approvals, func(ctx context.Context, ua userApproval) ([]pendingRequisition, error) {
		approvableID := ua.approval.ApprovableID.String()
		reqs, err := s.ownedRequisitions(ctx, rc, approvableID)
		if err != nil {
			return nil, err
		}
		out := make([]pendingRequisition, 0, len(reqs))
		for _, r := range reqs {
			out = append(out, pendingRequisition{Requisition: r, UserID: ua.userID, ApprovableID: approvableID})
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	var pending []pendingRequisition
	for _, p := range perApproval {
		pending = append(pending, p...)
	}

	logger.L(ctx).Debug("Coupa requisitions collected",
		zap.Int("users", len(users)),
		zap.Int("approvals", len(approvals)),
		zap.Int("requisitions", len(pending)),
	)
	return extract.UniqueBy(pending, func(p pendingRequisition) string { return p.ID.String() }), nil
}

// ownedRequisitions reads the pending requisitions with id whose current
// approver is the caller.
func (s *Service) ownedRequisitions(ctx context.Context, rc hub.RequestContext, id string) ([]Requisition, error) {
	reqs, err := s.client.PendingRequisitions(ctx, rc, id)
	if err != nil {
		return nil, err
	}
	return extract.FilterByOwnerEmail(reqs, rc.Email, approverEmail), nil
}

// Approve approves the caller's current approval step on a requisition.
func (s *Service) Approve(ctx context.Context, rc hub.RequestContext, requisitionID, comment string) (hub.Decision, error) {
	return s.decide(ctx, rc, requisitionID, DecisionApprove, CommentKey, comment)
}

// Decline rejects the caller's current approval step on a requisition.
func (s *Service) Decline(ctx context.Context, rc hub.RequestContext, requisitionID, reason string) (hub.Decision, error) {
	return s.decide(ctx, rc, requisitionID, DecisionReject, ReasonKey, reason)
}

func (s *Service) decide(ctx context.Context, rc hub.RequestContext, requisitionID, decision, inputKey, reason string) (d hub.Decision, err error) {
	ctx, span := s.span(ctx, decision)
	defer func() { finish(span, err) }()

	if strings.TrimSpace(reason) == "" {
		return hub.Decision{}, &shared.ValidationError{Message: inputKey + " is required", Keys: []string{inputKey}}
	}
	rc, err = s.authorize(rc)
	if err != nil {
		return hub.Decision{}, err
	}

	reqs, err := s.ownedRequisitions(ctx, rc, requisitionID)
	if err != nil {
		return hub.Decision{}, err
	}
	req, ok := extract.First(reqs)
	if !ok {
		logger.L(ctx).Info("Requisition not pending on caller", zap.String("requisition_id", requisitionID))
		return hub.Decision{}, shared.NewNotFoundError("Requisition %s is not awaiting approval by the caller", requisitionID)
	}
	approvalID := req.CurrentApproval.ID.String()

	var resp *backend.Response
	applied, err := s.actions.Do(ctx, decision, approvalID, rc.Email, func(ctx context.Context) error {
		var err error
		resp, err = s.client.Decide(ctx, rc, approvalID, decision, reason)
		return err
	})
	if err != nil || !applied {
		return hub.Decision{Replayed: err == nil}, err
	}
	logger.L(ctx).Info("Requisition decided",
		zap.String("requisition_id", requisitionID),
		zap.String("approval_id", approvalID),
		zap.String("decision", decision),
	)
	return hub.Decision{Body: resp.Body}, nil
}

// AttachmentRef names an attachment the way the card links it.
type AttachmentRef struct {
	UserID       string
	ApprovableID string
	FileName     string
	AttachmentID string
}

// Attachment streams an attachment after checking the whole ownership chain:
// the user belongs to the caller, the approval to the user, the requisition
// to the caller and the attachment to the requisition. Backend failures other
// than an invalid API key surface as server errors.
func (s *Service) Attachment(ctx context.Context, rc hub.RequestContext, ref AttachmentRef) (d *hub.Download, err error) {
	ctx, span := s.span(ctx, "attachment")
	defer func() {
		err = shared.MaskBackendStatus(err)
		finish(span, err)
	}()

	rc, err = s.authorize(rc)
	if err != nil {
		return nil, err
	}

	users, err := s.client.UsersByEmail(ctx, rc, rc.Email)
	if err != nil {
		return nil, err
	}
	if !containsBy(users, ref.UserID, func(u User) string { return u.ID.String() }) {
		return nil, shared.NewNotFoundError("User %s does not belong to the caller", ref.UserID)
	}

	approvals, err := s.client.PendingApprovals(ctx, rc, ref.UserID)
	if err != nil {
		return nil, err
	}
	if !containsBy(approvals, ref.ApprovableID, func(a Approval) string { return a.ApprovableID.String() }) {
		return nil, shared.NewNotFoundError("Requisition %s is not pending on user %s", ref.ApprovableID, ref.UserID)
	}

	reqs, err := s.ownedRequisitions(ctx, rc, ref.ApprovableID)
	if err != nil {
		return nil, err
	}
	found := false
	for _, r := range reqs {
		if r.HasAttachment(ref.AttachmentID) {
			found = true
			break
		}
	}
	if !found {
		return nil, shared.NewNotFoundError("Attachment %s not found on requisition %s", ref.AttachmentID, ref.ApprovableID)
	}

	resp, err := s.client.Attachment(ctx, rc, ref.UserID, ref.AttachmentID)
	if err != nil {
		return nil, err
	}
	return hub.NewDownload(ref.FileName, resp), nil
}

func containsBy[T any](items []T, want string, keyOf func(T) string) bool {
	for _, item := range items {
		if keyOf(item) == want {
			return true
		}
	}
	return false
}
