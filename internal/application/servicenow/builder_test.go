package servicenow

import (
	"encoding/json"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemImage(t *testing.T) {
	assert.Equal(t, "https://acme.service-now.com/a/b.png", itemImage("https://acme.service-now.com/sub?x=1", "a/b.png"))
	assert.Equal(t, "", itemImage("https://acme.service-now.com", "  "))
	assert.Equal(t, "", itemImage("not a url", "a.png"))
}

func TestBackendLink(t *testing.T) {
	got := backendLink("https://acme.service-now.com", "task.do", url.Values{"sys_id": {"a b"}})
	assert.Equal(t, "https://acme.service-now.com/task.do?sys_id=a+b", got)
}

func TestDisplayValue(t *testing.T) {
	var task Task
	require.NoError(t, json.Unmarshal([]byte(`{
		"state": "Open",
		"priority": 4,
		"assigned_to": {"display_value": "Fred Luddy", "link": "https://x"},
		"opened_at": "2024-01-02 10:00:00"
	}`), &task))

	assert.Equal(t, "Open", task.State.String())
	assert.Equal(t, "4", task.Priority.String())
	assert.Equal(t, "Fred Luddy", task.AssignedTo.String())

	require.NoError(t, json.Unmarshal([]byte(`{"assigned_to": null}`), &task))
	assert.Equal(t, "", task.AssignedTo.String())
}
