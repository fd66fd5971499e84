package concur

import (
	"net/http"
	"strings"

	"github.com/cardhub/connectors/internal/application/hub"
	"github.com/cardhub/connectors/internal/domain/card"
	"github.com/cardhub/connectors/internal/infrastructure/i18n"
)

const (
	cardName = "Concur"

	CommentKey = "comment"
	ReasonKey  = "reason"
)

// ReportCard renders an expense report awaiting the caller's approval.
func ReportCard(r Report, rc hub.RequestContext) card.Card {
	text := rc.Text()

	approve := card.NewAction(http.MethodPost, rc.ActionURL("api/expense/approve", r.ReportID),
		card.WithLabel(text("hub.concur.approve"), ""),
		card.WithUserInput(card.CommentInput(CommentKey, text("hub.concur.approve.comment.label"))),
	)
	reject := card.NewAction(http.MethodPost, rc.ActionURL("api/expense/reject", r.ReportID),
		card.WithLabel(text("hub.concur.reject"), ""),
		card.WithUserInput(card.CommentInput(ReasonKey, text("hub.concur.reject.reason.label"))),
	)

	opts := []card.Option{
		card.WithBackendID(r.ReportID),
		card.WithName(cardName),
		card.WithHeader(text("hub.concur.header", r.ReportName)),
		card.WithFields(
			card.General(text("hub.concur.report.name"), r.ReportName),
			card.General(text("hub.concur.report.total"), money(r.ReportTotal.String(), r.CurrencyCode)),
			card.General(text("hub.concur.submitted.by"), r.EmployeeName),
			card.General(text("hub.concur.purpose"), r.Purpose),
			card.General(text("hub.concur.submit.date"), r.SubmitDate),
		),
		card.WithActions(card.ApprovalPair(approve, reject)...),
	}
	for i, e := range r.Entries {
		opts = append(opts, card.WithField(entrySection(i+1, e, text)))
	}
	if r.ImageURL() != "" {
		name := ReceiptFileName(r.ReportID)
		opts = append(opts, card.WithField(card.Section(text("hub.concur.receipts"),
			card.Attachment(name, name, rc.ActionURL("api/expense/report", r.ReportID, "attachment")))))
	}
	return card.New(opts...)
}

func entrySection(n int, e ExpenseEntry, text i18n.Text) card.Field {
	return card.Section(text("hub.concur.entry", n),
		card.General(text("hub.concur.entry.type"), e.ExpenseTypeName),
		card.General(text("hub.concur.entry.amount"), money(e.TransactionAmount.String(), e.CurrencyCode)),
		card.General(text("hub.concur.entry.date"), e.TransactionDate),
		card.General(text("hub.concur.entry.vendor"), e.VendorDescription),
	)
}

// ReceiptFileName is the name the receipt image is served under.
func ReceiptFileName(reportID string) string {
	return reportID + ".pdf"
}

func money(amount, currency string) string {
	if amount == "" {
		return ""
	}
	return strings.TrimSpace(card.Amount(amount) + " " + currency)
}
