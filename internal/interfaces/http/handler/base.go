package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/cardhub/connectors/internal/application/hub"
	"github.com/cardhub/connectors/internal/domain/card"
	"github.com/cardhub/connectors/internal/domain/shared"
	"github.com/cardhub/connectors/internal/infrastructure/logger"
	"github.com/cardhub/connectors/internal/interfaces/http/dto"
	"github.com/cardhub/connectors/internal/interfaces/http/middleware"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// sniffLen is how much of an attachment is peeked at when neither the file
// name nor the backend identify its type.
const sniffLen = 3072

// BaseHandler provides the request context resolution, rendering and error
// translation every connector handler shares.
type BaseHandler struct {
	resolver *hub.Resolver
}

func NewBaseHandler(resolver *hub.Resolver) BaseHandler {
	return BaseHandler{resolver: resolver}
}

// getRequestID extracts the request ID from the context
func getRequestID(c *gin.Context) string {
	if id := c.GetString(middleware.RequestIDKey); id != "" {
		return id
	}
	return c.GetHeader(middleware.RequestIDHeader)
}

// requestContext resolves the hub request context for objectType and binds
// it to the request. On failure the error has been written and ok is false.
func (h *BaseHandler) requestContext(c *gin.Context, objectType string) (hub.RequestContext, bool) {
	rc, err := h.resolver.Resolve(c.Request.Header, objectType)
	if err != nil {
		h.HandleError(c, err)
		return hub.RequestContext{}, false
	}
	ctx := logger.WithUserEmail(c.Request.Context(), rc.Email)
	c.Request = c.Request.WithContext(hub.NewContext(ctx, rc))
	return rc, true
}

// bind binds the form, query or JSON body into obj. On failure a validation
// error has been written and false is returned.
func (h *BaseHandler) bind(c *gin.Context, obj any) bool {
	if err := c.ShouldBind(obj); err != nil {
		if !middleware.RequestTooLarge(c, err) {
			h.HandleError(c, middleware.BindingError(err))
		}
		return false
	}
	return true
}

// cardRequest decodes the optional JSON card request body.
func (h *BaseHandler) cardRequest(c *gin.Context) (hub.CardRequest, bool) {
	var req hub.CardRequest
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return req, true
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		if !middleware.RequestTooLarge(c, err) {
			h.HandleError(c, middleware.BindingError(err))
		}
		return req, false
	}
	return req, true
}

// respondCards renders the cards envelope.
func (h *BaseHandler) respondCards(c *gin.Context, cards []card.Card) {
	c.JSON(http.StatusOK, card.NewCards(cards...))
}

// respondBotObjects renders the bot envelope.
func (h *BaseHandler) respondBotObjects(c *gin.Context, cards ...card.Card) {
	c.JSON(http.StatusOK, card.NewBotObjects(cards...))
}

// respondDecision answers an approve or reject action. The backend's reply is
// passed through; a replayed action has none and answers an empty object.
func (h *BaseHandler) respondDecision(c *gin.Context, d hub.Decision) {
	switch {
	case len(d.Body) == 0:
		c.JSON(http.StatusOK, gin.H{})
	case json.Valid(d.Body):
		c.Data(http.StatusOK, "application/json", d.Body)
	default:
		c.Data(http.StatusOK, mimetype.Detect(d.Body).String(), d.Body)
	}
}

// respondDelete renders a delete-style action. Success passes the backend
// status and body through; a rejection reports the backend's message.
func (h *BaseHandler) respondDelete(c *gin.Context, status int, body []byte, message string, failed bool) {
	if failed {
		c.Header(dto.HeaderBackendStatus, strconv.Itoa(status))
		c.JSON(status, dto.NewDeleteFailure(message))
		return
	}
	if len(body) == 0 {
		c.Status(status)
		return
	}
	c.Data(status, "application/json", body)
}

// respondDownload streams an attachment. When the type is still unknown the first
// bytes are sniffed.
func (h *BaseHandler) respondDownload(c *gin.Context, d *hub.Download) {
	defer d.Body.Close()

	contentType := d.ContentType
	reader := bufio.NewReaderSize(d.Body, sniffLen)
	if contentType == "" || contentType == card.DefaultContentType {
		head, _ := reader.Peek(sniffLen)
		contentType = mimetype.Detect(head).String()
	}

	c.DataFromReader(http.StatusOK, d.Size, contentType, reader, map[string]string{
		"Content-Disposition": contentDisposition(d.FileName),
	})
}

// contentDisposition renders an inline disposition. Non-ASCII names are sent
// in RFC 2231 form; a name mime cannot encode is dropped.
func contentDisposition(fileName string) string {
	if v := mime.FormatMediaType("inline", map[string]string{"filename": fileName}); v != "" {
		return v
	}
	return "inline"
}

// HandleError is the single translator from service errors to HTTP replies.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	ctx := c.Request.Context()

	if errors.Is(err, context.Canceled) {
		logger.L(ctx).Debug("Client went away", zap.Error(err))
		c.Abort()
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		h.writeError(c, dto.GetHTTPStatus(dto.ErrCodeTimeout), "Backend did not answer in time")
		return
	}

	var be *shared.BackendError
	if errors.As(err, &be) {
		c.Header(dto.HeaderBackendStatus, strconv.Itoa(be.Status))
		status, code := dto.BackendStatus(be)
		message := be.Error()
		if code == dto.ErrCodeInvalidConnectorToken {
			message = dto.InvalidConnectorTokenMessage
		}
		h.writeError(c, status, message)
		return
	}

	var coded shared.Coded
	if errors.As(err, &coded) {
		h.writeError(c, dto.GetHTTPStatus(coded.ErrorCode()), coded.Error())
		return
	}

	logger.L(ctx).Error("Unhandled error", zap.Error(err))
	h.writeError(c, http.StatusInternalServerError, "An unexpected error occurred")
}

func (h *BaseHandler) writeError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, dto.NewErrorResponse(message))
}
