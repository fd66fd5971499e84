package card

import (
	"strings"

	"github.com/google/uuid"
)

const (
	ActionKeyDirect    = "DIRECT"
	ActionKeyUserInput = "USER_INPUT"

	// ApprovalGroup ties approve and reject together; the hub completes at most one.
	ApprovalGroup = "approval-actions"

	FormatTextarea = "textarea"
	FormatText     = "text"
)

// Action is an operation the hub can invoke on behalf of the user.
type Action struct {
	ID                     string            `json:"id"`
	ActionKey              string            `json:"action_key"`
	Title                  string            `json:"title"`
	Description            string            `json:"description,omitempty"`
	CompletedLabel         string            `json:"completed_label,omitempty"`
	Method                 string            `json:"method"`
	URL                    string            `json:"url"`
	Primary                *bool             `json:"primary,omitempty"`
	MutuallyExclusiveGroup string            `json:"mutually_exclusive_group,omitempty"`
	RequestParams          map[string]string `json:"request_params,omitempty"`
	UserInputs             []UserInput       `json:"user_inputs,omitempty"`
}

// UserInput is a field the hub collects before invoking the action.
type UserInput struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Format    string `json:"format"`
	MinLength int    `json:"min_length"`
	MaxLength int    `json:"max_length,omitempty"`
}

type ActionOption func(*Action)

// NewAction creates an action calling url with method.
func NewAction(method, url string, opts ...ActionOption) Action {
	a := Action{
		ID:        uuid.NewString(),
		ActionKey: ActionKeyDirect,
		Method:    strings.ToUpper(method),
		URL:       url,
	}
	for _, opt := range opts {
		opt(&a)
	}
	if len(a.UserInputs) > 0 {
		a.ActionKey = ActionKeyUserInput
	}
	return a
}

func WithLabel(title, description string) ActionOption {
	return func(a *Action) {
		a.Title = title
		a.Description = description
	}
}

func WithCompletedLabel(label string) ActionOption {
	return func(a *Action) {
		a.CompletedLabel = label
	}
}

func AsPrimary(primary bool) ActionOption {
	return func(a *Action) {
		a.Primary = &primary
	}
}

func InGroup(group string) ActionOption {
	return func(a *Action) {
		a.MutuallyExclusiveGroup = group
	}
}

// WithParam adds a fixed request parameter. Blank values are skipped.
func WithParam(key, value string) ActionOption {
	return func(a *Action) {
		if isBlank(value) {
			return
		}
		if a.RequestParams == nil {
			a.RequestParams = map[string]string{}
		}
		a.RequestParams[key] = value
	}
}

func WithUserInput(in UserInput) ActionOption {
	return func(a *Action) {
		a.UserInputs = append(a.UserInputs, in)
	}
}

// IsPrimary is false when the flag was never set.
func (a Action) IsPrimary() bool {
	return a.Primary != nil && *a.Primary
}

// ApprovalPair builds the approve/reject alternatives shared by approval
// connectors. Both carry a required free-text input and the same group.
func ApprovalPair(approve, reject Action) []Action {
	approve.MutuallyExclusiveGroup = ApprovalGroup
	reject.MutuallyExclusiveGroup = ApprovalGroup
	t, f := true, false
	approve.Primary = &t
	reject.Primary = &f
	return []Action{approve, reject}
}

// CommentInput is the textarea a user fills in to approve or reject.
func CommentInput(id, label string) UserInput {
	return UserInput{ID: id, Label: label, Format: FormatTextarea, MinLength: 1}
}
