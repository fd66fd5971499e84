package middleware

import (
	"github.com/cardhub/connectors/internal/infrastructure/logger"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ConnectorKey is the gin context key naming the connector serving a route
const ConnectorKey = "connector"

// Connector tags every request of a route group with the connector name: on
// the gin context, on the request logger and on the server span.
func Connector(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ConnectorKey, name)
		ctx, _ := logger.WithConnector(c.Request.Context(), logger.FromContext(c.Request.Context()), name)
		c.Request = c.Request.WithContext(ctx)
		if span := trace.SpanFromContext(ctx); span.IsRecording() {
			span.SetAttributes(attribute.String("connector", name))
		}
		c.Next()
	}
}

// connectorName returns the connector tagged by Connector, if any.
func connectorName(c *gin.Context) string {
	return c.GetString(ConnectorKey)
}
