package hub

import (
	"bytes"
	"encoding/json"
	"strings"
)

// CardRequest is the JSON body the hub posts to card and bot endpoints.
type CardRequest struct {
	Tokens map[string]TokenValues `json:"tokens,omitempty"`
	Config map[string]string      `json:"config,omitempty"`
}

// TokenValues holds the values extracted for one token. The hub sends either
// a single string or a list.
type TokenValues []string

func (v *TokenValues) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if bytes.Equal(raw, []byte("null")) {
		*v = nil
		return nil
	}
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		*v = TokenValues{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return err
	}
	*v = list
	return nil
}

// Token returns the first non-blank value of name, trimmed.
func (r CardRequest) Token(name string) string {
	for _, v := range r.Tokens[name] {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// ConfigValue returns the trimmed config entry or def when blank.
func (r CardRequest) ConfigValue(key, def string) string {
	if v := strings.TrimSpace(r.Config[key]); v != "" {
		return v
	}
	return def
}
