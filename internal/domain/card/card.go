// Package card holds the normalized response graph returned to the hub:
// cards, their body fields, actions and nested children.
//
// Values are built with constructors and functional options. Options given a
// blank value leave the card untouched, so empty text never reaches the JSON.
package card

import (
	"strings"

	"github.com/google/uuid"
)

// Card is the renderable unit returned to the hub. Bot objects use the same
// shape wrapped in an itemDetails envelope.
type Card struct {
	ID          string   `json:"id"`
	BackendID   string   `json:"backend_id,omitempty"`
	Name        string   `json:"name,omitempty"`
	Type        string   `json:"type,omitempty"`
	ContextID   string   `json:"context_id,omitempty"`
	WorkflowID  string   `json:"workflow_id,omitempty"`
	Title       string   `json:"title,omitempty"`
	Subtitle    string   `json:"subtitle,omitempty"`
	Description string   `json:"description,omitempty"`
	Header      *Header  `json:"header,omitempty"`
	Body        *Body    `json:"body,omitempty"`
	Image       *Link    `json:"image,omitempty"`
	URL         *Link    `json:"url,omitempty"`
	Actions     []Action `json:"actions"`
	Children    []Card   `json:"children,omitempty"`
}

// Header is the card heading. Links.Title points at the entity in the backend UI.
type Header struct {
	Title    string       `json:"title,omitempty"`
	Subtitle []string     `json:"subtitle,omitempty"`
	Links    *HeaderLinks `json:"links,omitempty"`
}

type HeaderLinks struct {
	Title string `json:"title,omitempty"`
}

// Body groups the card description and its ordered fields.
type Body struct {
	Description string  `json:"description,omitempty"`
	Fields      []Field `json:"fields,omitempty"`
}

type Link struct {
	Href string `json:"href"`
}

// Option configures a Card under construction.
type Option func(*Card)

// New builds a card with a fresh identifier.
func New(opts ...Option) Card {
	c := Card{
		ID:      uuid.NewString(),
		Actions: []Action{},
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func isBlank(s string) bool { return strings.TrimSpace(s) == "" }

func WithBackendID(id string) Option {
	return func(c *Card) {
		if !isBlank(id) {
			c.BackendID = id
		}
	}
}

func WithName(name string) Option {
	return func(c *Card) {
		if !isBlank(name) {
			c.Name = name
		}
	}
}

func WithType(t string) Option {
	return func(c *Card) {
		if !isBlank(t) {
			c.Type = t
		}
	}
}

func WithContextID(id string) Option {
	return func(c *Card) {
		if !isBlank(id) {
			c.ContextID = id
		}
	}
}

// WithWorkflowID tags the card with the bot workflow it belongs to.
func WithWorkflowID(id string) Option {
	return func(c *Card) {
		if !isBlank(id) {
			c.WorkflowID = id
		}
	}
}

func WithTitle(title string) Option {
	return func(c *Card) {
		if !isBlank(title) {
			c.Title = title
		}
	}
}

func WithSubtitle(subtitle string) Option {
	return func(c *Card) {
		if !isBlank(subtitle) {
			c.Subtitle = subtitle
		}
	}
}

func WithDescription(description string) Option {
	return func(c *Card) {
		if !isBlank(description) {
			c.Description = description
		}
	}
}

// WithHeader sets the header title and non-blank subtitles.
func WithHeader(title string, subtitles ...string) Option {
	return func(c *Card) {
		h := c.header()
		if !isBlank(title) {
			h.Title = title
		}
		for _, s := range subtitles {
			if !isBlank(s) {
				h.Subtitle = append(h.Subtitle, s)
			}
		}
	}
}

// WithHeaderLink links the header title to href.
func WithHeaderLink(href string) Option {
	return func(c *Card) {
		if isBlank(href) {
			return
		}
		c.header().Links = &HeaderLinks{Title: href}
	}
}

func (c *Card) header() *Header {
	if c.Header == nil {
		c.Header = &Header{}
	}
	return c.Header
}

func (c *Card) body() *Body {
	if c.Body == nil {
		c.Body = &Body{}
	}
	return c.Body
}

func WithBodyDescription(description string) Option {
	return func(c *Card) {
		if !isBlank(description) {
			c.body().Description = description
		}
	}
}

// WithField appends f to the body unless it is empty.
func WithField(f Field) Option {
	return func(c *Card) {
		if f.IsEmpty() {
			return
		}
		c.body().Fields = append(c.body().Fields, f)
	}
}

// WithFields appends every non-empty field in order.
func WithFields(fields ...Field) Option {
	return func(c *Card) {
		for _, f := range fields {
			WithField(f)(c)
		}
	}
}

func WithImage(href string) Option {
	return func(c *Card) {
		if !isBlank(href) {
			c.Image = &Link{Href: href}
		}
	}
}

func WithURL(href string) Option {
	return func(c *Card) {
		if !isBlank(href) {
			c.URL = &Link{Href: href}
		}
	}
}

func WithActions(actions ...Action) Option {
	return func(c *Card) {
		c.Actions = append(c.Actions, actions...)
	}
}

func WithChildren(children ...Card) Option {
	return func(c *Card) {
		c.Children = append(c.Children, children...)
	}
}
