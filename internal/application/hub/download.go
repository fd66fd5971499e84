package hub

import (
	"io"
	"mime"
	"strconv"

	"github.com/cardhub/connectors/internal/domain/card"
	"github.com/cardhub/connectors/internal/infrastructure/backend"
)

// Download is an attachment streamed from a backend to the hub. The
// receiver closes Body.
type Download struct {
	FileName    string
	ContentType string
	// Size is -1 when the backend sent no length.
	Size int64
	Body io.ReadCloser
}

// NewDownload wraps an open backend stream. The content type is derived from
// fileName, then from the backend's own header; it stays
// application/octet-stream when neither is known.
func NewDownload(fileName string, resp *backend.StreamResponse) *Download {
	d := &Download{
		FileName:    fileName,
		ContentType: card.ContentTypeFor(fileName),
		Size:        -1,
		Body:        resp.Body,
	}
	if d.ContentType == card.DefaultContentType {
		if mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil && mediaType != card.DefaultContentType {
			d.ContentType = mediaType
		}
	}
	if n, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64); err == nil && n >= 0 {
		d.Size = n
	}
	return d
}
