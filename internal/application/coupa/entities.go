package coupa

import (
	"path"
	"strings"

	"github.com/cardhub/connectors/internal/application/extract"
)

// User is one Coupa user account.
type User struct {
	ID        extract.Scalar `json:"id"`
	Email     string         `json:"email"`
	FirstName string         `json:"firstname"`
	LastName  string         `json:"lastname"`
}

// FullName joins the first and last name, skipping blanks.
func (u User) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
}

// Approval is a pending approval step assigned to a user.
type Approval struct {
	ID             extract.Scalar `json:"id"`
	ApprovableID   extract.Scalar `json:"approvable-id"`
	ApprovableType string         `json:"approvable-type"`
	Status         string         `json:"status"`
	Approver       User           `json:"approver"`
}

// Requisition is a purchase request awaiting approval.
type Requisition struct {
	ID              extract.Scalar    `json:"id"`
	Description     string            `json:"requisition-description"`
	Justification   string            `json:"justification"`
	MobileTotal     extract.Scalar    `json:"mobile-total"`
	RequestedBy     User              `json:"requested-by"`
	CurrentApproval Approval          `json:"current-approval"`
	Lines           []RequisitionLine `json:"requisition-lines"`
	ShipTo          Address           `json:"ship-to-address"`
	Attachments     []Attachment      `json:"attachments"`
}

// Title is the description of the first line, which Coupa shows as the
// request title.
func (r Requisition) Title() string {
	if len(r.Lines) == 0 {
		return ""
	}
	return r.Lines[0].Description
}

// HasAttachment reports whether id is one of the requisition's attachments.
func (r Requisition) HasAttachment(id string) bool {
	for _, a := range r.Attachments {
		if a.ID.String() == id {
			return true
		}
	}
	return false
}

// approverEmail is the owner used to filter requisitions for a caller.
func approverEmail(r Requisition) string { return r.CurrentApproval.Approver.Email }

type RequisitionLine struct {
	Description        string         `json:"description"`
	Quantity           extract.Scalar `json:"quantity"`
	UnitPrice          extract.Scalar `json:"unit-price"`
	Total              extract.Scalar `json:"total"`
	NeedByDate         string         `json:"need-by-date"`
	SAPMaterialGroupID extract.Scalar `json:"sap-material-group-id"`
	Commodity          struct {
		Name string `json:"name"`
	} `json:"commodity"`
	Supplier struct {
		CompanyCode string `json:"company-code"`
	} `json:"supplier"`
	PaymentTerm struct {
		Code string `json:"code"`
	} `json:"payment-term"`
	ShippingTerm struct {
		Code string `json:"code"`
	} `json:"shipping-term"`
}

type Address struct {
	Street1      string `json:"street1"`
	Street2      string `json:"street2"`
	City         string `json:"city"`
	PostalCode   string `json:"postal-code"`
	State        string `json:"state"`
	LocationCode string `json:"location-code"`
}

// String joins the non-blank address parts with spaces.
func (a Address) String() string {
	parts := make([]string, 0, 5)
	for _, p := range []string{a.Street1, a.Street2, a.City, a.PostalCode, a.State} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// Attachment is a file on a requisition. File is the stored path.
type Attachment struct {
	ID   extract.Scalar `json:"id"`
	File string         `json:"file"`
}

// FileName is the last segment of the stored path.
func (a Attachment) FileName() string {
	name := path.Base(strings.TrimSpace(a.File))
	if name == "." || name == "/" {
		return ""
	}
	return name
}

// pendingRequisition is a requisition paired with the approval that put it
// in front of the caller.
type pendingRequisition struct {
	Requisition
	UserID       string
	ApprovableID string
}
