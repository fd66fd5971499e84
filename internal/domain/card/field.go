package card

import (
	"mime"
	"net/http"
	"path"
	"strings"
)

type FieldType string

const (
	FieldGeneral    FieldType = "GENERAL"
	FieldSection    FieldType = "SECTION"
	FieldAttachment FieldType = "ATTACHMENT_URL"
)

const DefaultContentType = "application/octet-stream"

// Field is one body entry: a title/description pair, a section of nested
// items, or an attachment reference. The attachment keys sit on the field
// itself.
type Field struct {
	Type        FieldType `json:"type"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	Items       []Field   `json:"items,omitempty"`
	*AttachmentRef
}

// AttachmentRef tells the hub how to stream an attachment back through the connector.
type AttachmentRef struct {
	Name        string `json:"attachment_name"`
	URL         string `json:"attachment_url"`
	Method      string `json:"attachment_method"`
	ContentType string `json:"attachment_content_type"`
}

// IsEmpty reports whether the field would render nothing.
func (f Field) IsEmpty() bool {
	switch f.Type {
	case FieldSection:
		return len(f.Items) == 0
	case FieldAttachment:
		return f.AttachmentRef == nil || isBlank(f.AttachmentRef.URL)
	default:
		return isBlank(f.Description)
	}
}

// General is a key/value field. A blank value makes the field empty.
func General(title, value string) Field {
	return Field{Type: FieldGeneral, Title: title, Description: strings.TrimSpace(value)}
}

// Section groups items under a title, dropping empty items.
func Section(title string, items ...Field) Field {
	f := Field{Type: FieldSection, Title: title}
	for _, item := range items {
		if !item.IsEmpty() {
			f.Items = append(f.Items, item)
		}
	}
	return f
}

// Attachment references a file the hub retrieves with GET on url.
func Attachment(title, fileName, url string) Field {
	return Field{
		Type:  FieldAttachment,
		Title: title,
		AttachmentRef: &AttachmentRef{
			Name:        fileName,
			URL:         url,
			Method:      http.MethodGet,
			ContentType: ContentTypeFor(fileName),
		},
	}
}

// ContentTypeFor returns the MIME type for a file name's extension.
func ContentTypeFor(fileName string) string {
	ext := strings.ToLower(path.Ext(fileName))
	if ext == "" {
		return DefaultContentType
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return DefaultContentType
}
