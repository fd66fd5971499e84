package salesforce

import (
	"context"
	"net/http"

	"github.com/cardhub/connectors/internal/application/hub"
	"github.com/cardhub/connectors/internal/domain/card"
)

const (
	cardName = "Salesforce"

	ReasonKey = "reason"
)

// Fields names the configured opportunity columns shown on the card.
type Fields struct {
	DiscountPercentage string
	ReasonForDiscount  string
}

// DiscountCard renders the discount approval for one work item.
func DiscountCard(ctx context.Context, item WorkItem, opp Opportunity, fields Fields, rc hub.RequestContext) card.Card {
	text := rc.Text()

	approve := card.NewAction(http.MethodPost, rc.ActionURL("api/expense/approve", item.ID),
		card.WithLabel(text("ws1.sf.approve"), ""),
		card.WithUserInput(card.CommentInput(ReasonKey, text("ws1.sf.reason.label"))),
	)
	reject := card.NewAction(http.MethodPost, rc.ActionURL("api/expense/reject", item.ID),
		card.WithLabel(text("ws1.sf.reject"), ""),
		card.WithUserInput(card.CommentInput(ReasonKey, text("ws1.sf.reason.label"))),
	)

	name := opp.Field(ctx, "Name")
	return card.New(
		card.WithBackendID(item.ID),
		card.WithName(cardName),
		card.WithHeader(text("ws1.sf.card.header", name)),
		card.WithFields(
			card.General(text("ws1.sf.customer.name"), name),
			card.General(text("ws1.sf.opportunity.owner"), opp.Field(ctx, "Account.Owner.Name")),
			card.General(text("ws1.sf.revenue.opportunity"), opp.Field(ctx, "ExpectedRevenue")),
			card.General(text("ws1.sf.discount.percent"), opp.Field(ctx, fields.DiscountPercentage)),
			card.General(text("ws1.sf.reason.for.discount"), opp.Field(ctx, fields.ReasonForDiscount)),
		),
		card.WithActions(card.ApprovalPair(approve, reject)...),
	)
}
