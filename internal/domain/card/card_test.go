package card

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_OmitsBlankValues(t *testing.T) {
	c := New(
		WithBackendID("  "),
		WithTitle(""),
		WithDescription("Laptop"),
		WithHeader("", "", "sub"),
		WithField(General("Requester", "")),
		WithField(General("Amount", "1,000.00")),
		WithField(Section("Lines")),
		WithImage(""),
	)

	assert.NotEmpty(t, c.ID)
	assert.Empty(t, c.BackendID)
	assert.Empty(t, c.Title)
	assert.Equal(t, "Laptop", c.Description)
	require.NotNil(t, c.Header)
	assert.Equal(t, []string{"sub"}, c.Header.Subtitle)
	require.NotNil(t, c.Body)
	require.Len(t, c.Body.Fields, 1)
	assert.Equal(t, "Amount", c.Body.Fields[0].Title)
	assert.Nil(t, c.Image)

	raw, err := json.Marshal(c)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.NotContains(t, m, "backend_id")
	assert.NotContains(t, m, "title")
	assert.NotContains(t, m, "children")
	assert.Equal(t, []any{}, m["actions"])
}

func TestNew_UniqueIDs(t *testing.T) {
	assert.NotEqual(t, New().ID, New().ID)
}

func TestSection_DropsEmptyItems(t *testing.T) {
	s := Section("Line 1", General("Item", "Laptop"), General("Quantity", " "))
	require.Len(t, s.Items, 1)
	assert.False(t, s.IsEmpty())
	assert.True(t, Section("Nothing", General("x", "")).IsEmpty())
}

func TestAttachment(t *testing.T) {
	f := Attachment("Attachments", "quote.pdf", "https://hub/coupa/api/user/1/2/attachment/quote.pdf/3")

	assert.Equal(t, FieldAttachment, f.Type)
	require.NotNil(t, f.AttachmentRef)
	assert.Equal(t, http.MethodGet, f.AttachmentRef.Method)
	assert.Equal(t, "application/pdf", f.AttachmentRef.ContentType)
	assert.False(t, f.IsEmpty())
}

func TestAttachment_JSONKeysOnField(t *testing.T) {
	raw, err := json.Marshal(Attachment("Attachments", "quote.pdf", "https://hub/quote"))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type": "ATTACHMENT_URL",
		"title": "Attachments",
		"attachment_name": "quote.pdf",
		"attachment_url": "https://hub/quote",
		"attachment_method": "GET",
		"attachment_content_type": "application/pdf"
	}`, string(raw))

	raw, err = json.Marshal(General("Requester", "Ann"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"GENERAL","title":"Requester","description":"Ann"}`, string(raw))
}

func TestContentTypeFor(t *testing.T) {
	tests := map[string]string{
		"quote.pdf":     "application/pdf",
		"image.PNG":     "image/png",
		"noextension":   "application/octet-stream",
		"weird.zzzzzzz": "application/octet-stream",
	}
	for name, want := range tests {
		assert.Equal(t, want, ContentTypeFor(name), name)
	}
}

func TestNewAction(t *testing.T) {
	a := NewAction("delete", "https://hub/sn/api/v1/cart/42", WithLabel("Remove", "Remove from cart"))
	assert.Equal(t, http.MethodDelete, a.Method)
	assert.Equal(t, ActionKeyDirect, a.ActionKey)
	assert.Nil(t, a.Primary)
	assert.False(t, a.IsPrimary())

	b := NewAction(http.MethodPut, "https://hub/sn/api/v1/cart",
		WithParam("itemId", "abc"),
		WithParam("empty", ""),
		WithUserInput(UserInput{ID: "itemCount", Label: "Quantity", Format: FormatText, MinLength: 1}),
	)
	assert.Equal(t, ActionKeyUserInput, b.ActionKey)
	assert.Equal(t, map[string]string{"itemId": "abc"}, b.RequestParams)
}

func TestApprovalPair(t *testing.T) {
	actions := ApprovalPair(
		NewAction(http.MethodPost, "u/approve", WithUserInput(CommentInput("comment", "Comment"))),
		NewAction(http.MethodPost, "u/reject", WithUserInput(CommentInput("reason", "Reason"))),
	)

	require.Len(t, actions, 2)
	assert.True(t, actions[0].IsPrimary())
	require.NotNil(t, actions[1].Primary)
	assert.False(t, *actions[1].Primary)
	for _, a := range actions {
		assert.Equal(t, ApprovalGroup, a.MutuallyExclusiveGroup)
		require.Len(t, a.UserInputs, 1)
		assert.Equal(t, 1, a.UserInputs[0].MinLength)
		assert.Equal(t, FormatTextarea, a.UserInputs[0].Format)
	}
}

func TestEnvelopes(t *testing.T) {
	raw, err := json.Marshal(NewCards())
	require.NoError(t, err)
	assert.JSONEq(t, `{"cards":[]}`, string(raw))

	child := New(WithBackendID("item-1"))
	parent := New(WithBackendID("cart-1"), WithChildren(child))
	objs := NewBotObjects(parent)
	require.Len(t, objs.Objects, 1)
	assert.Equal(t, []string{"cart-1", "item-1"}, BackendIDs([]Card{parent}))
}

func TestAmount(t *testing.T) {
	cases := map[string]string{
		"2000":        "2,000.00",
		"1234567.891": "1,234,567.89",
		"0.125":       "0.12",
		"999.995":     "1,000.00",
		"-4500.5":     "-4,500.50",
		"12":          "12.00",
		"n/a":         "n/a",
	}
	for in, want := range cases {
		assert.Equal(t, want, Amount(in), in)
	}
}
