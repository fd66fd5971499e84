package salesforce

import "encoding/json"

// ProcessInstance is a pending approval process with the caller's work items.
type ProcessInstance struct {
	ID             string `json:"Id"`
	TargetObjectID string `json:"TargetObjectId"`
	Status         string `json:"Status"`
	Workitems      *struct {
		Records []WorkItem `json:"records"`
	} `json:"Workitems"`
}

// WorkItem returns the caller's first work item on the process, if any.
func (p ProcessInstance) WorkItem() (WorkItem, bool) {
	if p.Workitems == nil || len(p.Workitems.Records) == 0 {
		return WorkItem{}, false
	}
	return p.Workitems.Records[0], true
}

type WorkItem struct {
	ID    string `json:"Id"`
	Actor struct {
		Name  string `json:"Name"`
		Email string `json:"Email"`
	} `json:"Actor"`
}

type workItemsResult struct {
	TotalSize int               `json:"totalSize"`
	Records   []ProcessInstance `json:"records"`
}

// Opportunity is one opportunity row. Its columns depend on the configured
// field names, so it stays an untyped document read through field paths.
type Opportunity map[string]any

type opportunitiesResult struct {
	Records []json.RawMessage `json:"records"`
}

// Workflow action types accepted by the approvals endpoint.
const (
	ActionApprove = "Approve"
	ActionReject  = "Reject"
)

type approvalRequest struct {
	ActionType string `json:"actionType"`
	ContextID  string `json:"contextId"`
	Comments   string `json:"comments"`
}

type approvalRequests struct {
	Requests []approvalRequest `json:"requests"`
}
