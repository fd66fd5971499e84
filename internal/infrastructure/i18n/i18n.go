// Package i18n provides locale-keyed display text for card builders.
//
// Message bundles are YAML files embedded from messages/<language>.yaml and
// loaded into an x/text catalog. Builders never see the catalog; they receive
// a Text function already bound to the caller's locale.
package i18n

import (
	"embed"
	"fmt"
	"path"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"gopkg.in/yaml.v3"
)

//go:embed messages/*.yaml
var bundles embed.FS

// Fallback is used when no bundle matches the caller's Accept-Language.
var Fallback = language.English

// Text resolves a message key with printf-style arguments.
type Text func(key string, args ...any) string

// Catalog holds every loaded message bundle.
type Catalog struct {
	builder *catalog.Builder
	matcher language.Matcher
	keys    map[language.Tag]map[string]struct{}
}

// Load reads the embedded bundles.
func Load() (*Catalog, error) {
	entries, err := bundles.ReadDir("messages")
	if err != nil {
		return nil, fmt.Errorf("read message bundles: %w", err)
	}

	c := &Catalog{
		builder: catalog.NewBuilder(catalog.Fallback(Fallback)),
		keys:    map[language.Tag]map[string]struct{}{},
	}
	tags := []language.Tag{Fallback}

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || path.Ext(name) != ".yaml" {
			continue
		}
		tag, err := language.Parse(strings.TrimSuffix(name, ".yaml"))
		if err != nil {
			return nil, fmt.Errorf("bundle %s: %w", name, err)
		}
		raw, err := bundles.ReadFile(path.Join("messages", name))
		if err != nil {
			return nil, err
		}
		if err := c.add(tag, raw); err != nil {
			return nil, fmt.Errorf("bundle %s: %w", name, err)
		}
		if tag != Fallback {
			tags = append(tags, tag)
		}
	}

	c.matcher = language.NewMatcher(tags)
	return c, nil
}

func (c *Catalog) add(tag language.Tag, raw []byte) error {
	var messages map[string]string
	if err := yaml.Unmarshal(raw, &messages); err != nil {
		return err
	}
	keys := make(map[string]struct{}, len(messages))
	for key, msg := range messages {
		if err := c.builder.SetString(tag, key, msg); err != nil {
			return fmt.Errorf("key %s: %w", key, err)
		}
		keys[key] = struct{}{}
	}
	c.keys[tag] = keys
	return nil
}

// Match picks the best supported language for an Accept-Language header.
func (c *Catalog) Match(acceptLanguage string) language.Tag {
	if strings.TrimSpace(acceptLanguage) == "" {
		return Fallback
	}
	tag, _ := language.MatchStrings(c.matcher, acceptLanguage)
	return tag
}

// For returns a Text bound to tag. Unknown keys render as the key itself.
func (c *Catalog) For(tag language.Tag) Text {
	printer := message.NewPrinter(tag, message.Catalog(c.builder))
	return func(key string, args ...any) string {
		if !c.known(key) {
			return key
		}
		return printer.Sprintf(key, args...)
	}
}

func (c *Catalog) known(key string) bool {
	_, ok := c.keys[Fallback][key]
	return ok
}

// Languages lists the loaded bundle languages.
func (c *Catalog) Languages() []language.Tag {
	return c.builder.Languages()
}
