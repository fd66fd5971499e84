package middleware

import (
	"errors"
	"net/http"

	"github.com/cardhub/connectors/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

const bodyTooLargeMessage = "Request body exceeds maximum allowed size"

// BodyLimit caps inbound bodies at maxBytes. A declared Content-Length over
// the cap is refused before the handler runs; a chunked body is cut off by
// http.MaxBytesReader and reported through RequestTooLarge when the handler
// binds it. A non-positive maxBytes disables the cap.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	if maxBytes <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, dto.NewErrorResponse(bodyTooLargeMessage))
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// RequestTooLarge answers 413 and returns true when err came from reading a
// body past the BodyLimit cap.
func RequestTooLarge(c *gin.Context, err error) bool {
	var tooLarge *http.MaxBytesError
	if !errors.As(err, &tooLarge) {
		return false
	}
	c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, dto.NewErrorResponse(bodyTooLargeMessage))
	return true
}
