// Package extract turns backend JSON into typed entities and selects the ones
// a card request is about.
package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cardhub/connectors/internal/domain/shared"
)

// Decode unmarshals body into a T. Unknown fields are ignored; an empty body
// yields the zero T.
func Decode[T any](body []byte) (T, error) {
	var out T
	if len(bytes.TrimSpace(body)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("decode %T: %w", out, err)
	}
	return out, nil
}

// SelectOneByTitle returns the single item whose title contains title,
// ignoring case. Zero or several matches fail with a LookupAmbiguityError
// naming title and endpoint.
func SelectOneByTitle[T any](items []T, title, endpoint string, titleOf func(T) string) (T, error) {
	var (
		found   T
		matches int
	)
	needle := strings.ToLower(title)
	for _, item := range items {
		if strings.Contains(strings.ToLower(titleOf(item)), needle) {
			found = item
			matches++
		}
	}
	if matches != 1 {
		var zero T
		return zero, &shared.LookupAmbiguityError{Title: title, Endpoint: endpoint, Matches: matches}
	}
	return found, nil
}

// FilterByOwnerEmail keeps the items whose owner email equals email, ignoring
// case and surrounding space.
func FilterByOwnerEmail[T any](items []T, email string, ownerOf func(T) string) []T {
	want := strings.TrimSpace(email)
	out := make([]T, 0, len(items))
	for _, item := range items {
		if strings.EqualFold(strings.TrimSpace(ownerOf(item)), want) {
			out = append(out, item)
		}
	}
	return out
}

// UniqueBy drops later items whose key was already seen, keeping order.
func UniqueBy[T any](items []T, keyOf func(T) string) []T {
	seen := make(map[string]struct{}, len(items))
	out := make([]T, 0, len(items))
	for _, item := range items {
		k := keyOf(item)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, item)
	}
	return out
}

// First returns the first item or false.
func First[T any](items []T) (T, bool) {
	if len(items) == 0 {
		var zero T
		return zero, false
	}
	return items[0], true
}

// Scalar is a JSON string, number or boolean read as text. Backends disagree
// on whether ids and amounts are quoted; null reads as "".
type Scalar string

func (s *Scalar) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
		*s = ""
	case raw[0] == '"':
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return err
		}
		*s = Scalar(str)
	case raw[0] == '{' || raw[0] == '[':
		return fmt.Errorf("expected scalar, got %.20s", raw)
	default:
		*s = Scalar(raw)
	}
	return nil
}

func (s Scalar) String() string { return string(s) }
