// Package concur serves expense report approval cards for SAP Concur. Calls
// are authorized with a bearer token obtained through the OAuth2 password
// grant of a service account.
package concur

import (
	"context"
	"strings"

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

const ConnectorName = "concur"

// Not-found messages reported to the hub.
const (
	ErrUserEmailNotFound = "user_email_not_found"
	ErrUserLoginNotFound = "user_login_not_found"
)

type Service struct {
	client  *Client
	cfg     config.ConcurConfig
	opts    hub.ServiceOptions
	actions *hub.ActionGuard
}

func NewService(client *Client, cfg config.ConcurConfig, opts hub.ServiceOptions) *Service {
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

// authorize exchanges the service account for a bearer token. A configured
// service credential takes precedence over the caller's header.
func (s *Service) authorize(ctx context.Context, rc hub.RequestContext) (hub.RequestContext, error) {
	if strings.TrimSpace(rc.Email) == "" {
		return rc, &shared.ValidationError{Message: "Caller email is required", Keys: []string{"email"}}
	}
	raw := rc.Credential
	if configured := strings.TrimSpace(s.cfg.ServiceCredential); configured != "" {
		raw = configured
	}
	account, err := ParseServiceAccount(raw)
	if err != nil {
		return rc, err
	}
	token, err := s.client.Token(ctx, rc.BaseURL, account)
	if err != nil {
		return rc, err
	}
	return rc.WithCredential(token), nil
}

// approver resolves the caller's Concur profile.
func (s *Service) approver(ctx context.Context, rc hub.RequestContext) (User, error) {
	user, ok, err := s.client.UserByEmail(ctx, rc, rc.Email)
	if err != nil {
		return User{}, err
	}
	if !ok {
		logger.L(ctx).Info("No Concur user for caller email")
		return User{}, &shared.NotFoundError{Message: ErrUserEmailNotFound}
	}
	return user, nil
}

// Cards lists one card per report waiting on the caller.
func (s *Service) Cards(ctx context.Context, rc hub.RequestContext) (cards []card.Card, err error) {
	ctx, span := s.span(ctx, "cards")
	defer func() { finish(span, err) }()

	rc, err = s.authorize(ctx, rc)
	if err != nil {
		return nil, err
	}
	user, err := s.approver(ctx, rc)
	if err != nil {
		return nil, err
	}
	digests, err := s.client.ReportDigests(ctx, rc, user.LoginID)
	if err != nil {
		return nil, err
	}

	reports, err := orchestrator.Collect(ctx, s.opts.FanOutLimit, digests, func(ctx context.Context, d ReportDigest) (Report, error) {
		return s.client.Report(ctx, rc, d.ID)
	})
	if err != nil {
		return nil, err
	}

	cards = make([]card.Card, 0, len(reports))
	for _, r := range reports {
		cards = append(cards, ReportCard(r, rc))
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrCardCount, len(cards))
	s.opts.Metrics.CardsEmitted(ctx, ConnectorName, len(cards))
	return cards, nil
}

// ownedReport loads report id after checking it waits on the caller.
func (s *Service) ownedReport(ctx context.Context, rc hub.RequestContext, id string) (Report, error) {
	user, err := s.approver(ctx, rc)
	if err != nil {
		return Report{}, err
	}
	digests, err := s.client.ReportDigests(ctx, rc, user.LoginID)
	if err != nil {
		return Report{}, err
	}
	owned := false
	for _, d := range digests {
		if d.ID == id {
			owned = true
			break
		}
	}
	if !owned {
		logger.L(ctx).Info("Report not pending on caller", zap.String("report_id", id))
		return Report{}, &shared.NotFoundError{Message: ErrUserLoginNotFound}
	}
	return s.client.Report(ctx, rc, id)
}

// Approve approves report id with comment.
func (s *Service) Approve(ctx context.Context, rc hub.RequestContext, id, comment string) (hub.Decision, error) {
	return s.decide(ctx, rc, id, WorkflowApprove, CommentKey, comment)
}

// Reject sends report id back to its submitter with reason.
func (s *Service) Reject(ctx context.Context, rc hub.RequestContext, id, reason string) (hub.Decision, error) {
	return s.decide(ctx, rc, id, WorkflowReject, ReasonKey, reason)
}

func (s *Service) decide(ctx context.Context, rc hub.RequestContext, id, action, inputKey, comment string) (d hub.Decision, err error) {
	ctx, span := s.span(ctx, "workflow_action")
	defer func() { finish(span, err) }()

	if strings.TrimSpace(comment) == "" {
		return hub.Decision{}, &shared.ValidationError{Message: inputKey + " is required", Keys: []string{inputKey}}
	}
	rc, err = s.authorize(ctx, rc)
	if err != nil {
		return hub.Decision{}, err
	}
	report, err := s.ownedReport(ctx, rc, id)
	if err != nil {
		return hub.Decision{}, err
	}
	if strings.TrimSpace(report.WorkflowActionURL) == "" {
		return hub.Decision{}, shared.NewNotFoundError("Report %s has no workflow action", id)
	}

	var resp *backend.Response
	applied, err := s.actions.Do(ctx, action, id, rc.Email, func(ctx context.Context) error {
		var err error
		resp, err = s.client.WorkflowAction(ctx, rc, report.WorkflowActionURL, action, comment)
		return err
	})
	if err != nil || !applied {
		return hub.Decision{Replayed: err == nil}, err
	}
	logger.L(ctx).Info("Expense report decided", zap.String("report_id", id), zap.String("action", action))
	return hub.Decision{Body: resp.Body}, nil
}

// Attachment streams the receipt image of report id once the caller is
// shown to be its approver. Backend failures other than an invalid
// credential surface as server errors.
func (s *Service) Attachment(ctx context.Context, rc hub.RequestContext, id string) (d *hub.Download, err error) {
	ctx, span := s.span(ctx, "attachment")
	defer func() {
		err = shared.MaskBackendStatus(err)
		finish(span, err)
	}()

	rc, err = s.authorize(ctx, rc)
	if err != nil {
		return nil, err
	}
	report, err := s.ownedReport(ctx, rc, id)
	if err != nil {
		return nil, err
	}
	if report.ImageURL() == "" {
		return nil, shared.NewNotFoundError("Report %s has no receipt image", id)
	}
	resp, err := s.client.ReportImage(ctx, rc, report.ImageURL())
	if err != nil {
		return nil, err
	}
	return hub.NewDownload(ReceiptFileName(id), resp), nil
}
