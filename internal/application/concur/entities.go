package concur

import (
	"encoding/xml"
	"strings"

	"github.com/cardhub/connectors/internal/application/extract"
)

// User is a Concur user profile.
type User struct {
	ID           string `json:"ID"`
	LoginID      string `json:"LoginID"`
	EmployeeID   string `json:"EmployeeID"`
	FirstName    string `json:"FirstName"`
	LastName     string `json:"LastName"`
	EmailAddress string `json:"EmailAddress"`
}

type usersResult struct {
	Items []User `json:"Items"`
}

// ReportDigest is the summary of a report waiting on an approver.
type ReportDigest struct {
	ID           string         `json:"ID"`
	Name         string         `json:"Name"`
	Total        extract.Scalar `json:"Total"`
	CurrencyCode string         `json:"CurrencyCode"`
	OwnerName    string         `json:"OwnerName"`
	ApprovalURL  string         `json:"ApprovalURL"`
}

type digestsResult struct {
	Items []ReportDigest `json:"Items"`
}

// Report is the detail view of an expense report.
type Report struct {
	ReportID          string         `json:"ReportID"`
	ReportName        string         `json:"ReportName"`
	ReportTotal       extract.Scalar `json:"ReportTotal"`
	CurrencyCode      string         `json:"CurrencyCode"`
	EmployeeName      string         `json:"EmployeeName"`
	Purpose           string         `json:"Purpose"`
	SubmitDate        string         `json:"SubmitDate"`
	WorkflowActionURL string         `json:"WorkflowActionURL"`
	ReportImageURL    string         `json:"ReportImageURL"`
	Entries           []ExpenseEntry `json:"ExpenseEntriesList"`
}

type ExpenseEntry struct {
	ReportEntryID     string         `json:"ReportEntryID"`
	ExpenseTypeName   string         `json:"ExpenseTypeName"`
	TransactionAmount extract.Scalar `json:"TransactionAmount"`
	TransactionDate   string         `json:"TransactionDate"`
	VendorDescription string         `json:"VendorDescription"`
	CurrencyCode      string         `json:"TransactionCurrencyName"`
}

// ImageURL is the receipt image link, blank when the report has none.
func (r Report) ImageURL() string { return strings.TrimSpace(r.ReportImageURL) }

// Workflow actions accepted by the report workflow endpoint.
const (
	WorkflowApprove = "Approve"
	WorkflowReject  = "Send Back to Employee"
)

// workflowAction is the XML document posted to a report's workflow URL.
type workflowAction struct {
	XMLName xml.Name `xml:"http://www.concursolutions.com/api/expense/expensereport/2011/03 WorkflowAction"`
	Action  string   `xml:"Action"`
	Comment string   `xml:"Comment"`
}
