package handler

import (
	"net/http"
	"sort"

	"github.com/cardhub/connectors/internal/application/hub"
	"github.com/cardhub/connectors/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// SystemHandler serves the unauthenticated service routes: health,
// discovery and per-connector metadata.
type SystemHandler struct {
	version    string
	connectors map[string]hub.Metadata
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(version string) *SystemHandler {
	return &SystemHandler{
		version:    version,
		connectors: make(map[string]hub.Metadata),
	}
}

// AddConnector publishes a connector's metadata under /{name}/.
func (h *SystemHandler) AddConnector(name string, meta hub.Metadata) {
	h.connectors[name] = meta
}

// Health answers liveness probes.
// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, dto.HealthResponse{Status: "UP", Version: h.version})
}

// Discovery lists the mounted connectors in name order.
// GET /discovery
func (h *SystemHandler) Discovery(c *gin.Context) {
	names := make([]string, 0, len(h.connectors))
	for name := range h.connectors {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := dto.DiscoveryResponse{Connectors: make([]dto.ConnectorInfo, 0, len(names))}
	for _, name := range names {
		resp.Connectors = append(resp.Connectors, dto.ConnectorInfo{
			Name:     name,
			Path:     "/" + name + "/",
			Metadata: h.connectors[name],
		})
	}
	c.JSON(http.StatusOK, resp)
}

// Metadata returns the discovery document of one connector, with its config
// validators rendered as a JSON schema.
// GET /{connector}/
func (h *SystemHandler) Metadata(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		meta, ok := h.connectors[name]
		if !ok {
			c.AbortWithStatusJSON(http.StatusNotFound, dto.NewErrorResponse("Unknown connector "+name))
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"name":          meta.Name,
			"description":   meta.Description,
			"version":       meta.Version,
			"object_types":  meta.ObjectTypes,
			"config":        meta.Config,
			"config_schema": meta.JSONSchema(),
		})
	}
}
