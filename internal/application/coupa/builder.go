package coupa

import (
	"net/http"
	"net/url"

	"github.com/cardhub/connectors/internal/application/hub"
	"github.com/cardhub/connectors/internal/domain/card"
	"github.com/cardhub/connectors/internal/infrastructure/i18n"
)

const (
	cardName = "Coupa"

	// Form keys read by the approve and decline routes.
	CommentKey = "comment"
	ReasonKey  = "reason"
)

// RequisitionCard renders one pending requisition with its lines,
// attachments and the approve/decline pair.
func RequisitionCard(p pendingRequisition, rc hub.RequestContext) card.Card {
	text := rc.Text()
	id := p.ID.String()

	approve := card.NewAction(http.MethodPost, rc.ActionURL("api/approve", id),
		card.WithLabel(text("hub.coupa.approve"), ""),
		card.WithUserInput(card.CommentInput(CommentKey, text("hub.coupa.approve.comment.label"))),
	)
	decline := card.NewAction(http.MethodPost, rc.ActionURL("api/decline", id),
		card.WithLabel(text("hub.coupa.decline"), ""),
		card.WithUserInput(card.CommentInput(ReasonKey, text("hub.coupa.decline.reason.label"))),
	)

	opts := []card.Option{
		card.WithBackendID(id),
		card.WithName(cardName),
		card.WithHeader(text("hub.coupa.header", p.Title())),
		card.WithHeaderLink(rc.BaseURL + "/requisition_headers/" + url.PathEscape(id)),
		card.WithFields(
			card.General(text("hub.coupa.requestDescription"), p.Description),
			card.General(text("hub.coupa.requester"), p.RequestedBy.FullName()),
			card.General(text("hub.coupa.expenseAmount"), amount(p.MobileTotal.String())),
			card.General(text("hub.coupa.justification"), p.Justification),
		),
		card.WithActions(card.ApprovalPair(approve, decline)...),
	}
	for i, line := range p.Lines {
		opts = append(opts, card.WithField(lineSection(i+1, line, p.ShipTo, text)))
	}
	if files := attachmentFields(p, rc); len(files) > 0 {
		opts = append(opts, card.WithField(card.Section(text("hub.coupa.attachments"), files...)))
	}
	return card.New(opts...)
}

func lineSection(n int, line RequisitionLine, shipTo Address, text i18n.Text) card.Field {
	return card.Section(text("hub.coupa.lineItem", n),
		card.General(text("hub.coupa.item.name"), line.Description),
		card.General(text("hub.coupa.quantity"), line.Quantity.String()),
		card.General(text("hub.coupa.unit.price"), amount(line.UnitPrice.String())),
		card.General(text("hub.coupa.total.price"), amount(line.Total.String())),
		card.General(text("hub.coupa.commodity.name"), line.Commodity.Name),
		card.General(text("hub.coupa.supplier.company_code"), line.Supplier.CompanyCode),
		card.General(text("hub.coupa.need.by"), line.NeedByDate),
		card.General(text("hub.coupa.payment.term"), line.PaymentTerm.Code),
		card.General(text("hub.coupa.shipping.term"), line.ShippingTerm.Code),
		card.General(text("hub.coupa.sap.material.group"), line.SAPMaterialGroupID.String()),
		card.General(text("hub.coupa.billing.address"), shipTo.String()),
		card.General(text("hub.coupa.location.code"), shipTo.LocationCode),
	)
}

// attachmentFields links each attachment through the connector's own
// attachment route, which re-checks ownership before streaming.
func attachmentFields(p pendingRequisition, rc hub.RequestContext) []card.Field {
	fields := make([]card.Field, 0, len(p.Attachments))
	for _, a := range p.Attachments {
		name := a.FileName()
		if name == "" || a.ID == "" {
			continue
		}
		link := rc.ActionURL("api/user", p.UserID, p.ApprovableID, "attachment", name, a.ID.String())
		fields = append(fields, card.Attachment(name, name, link))
	}
	return fields
}

func amount(raw string) string {
	if raw == "" {
		return ""
	}
	return card.Amount(raw)
}
