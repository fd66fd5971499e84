package concur

import (
	_ "embed"

	"github.com/cardhub/connectors/internal/application/hub"
)

//go:embed metadata.json
var metadataJSON []byte

// Metadata is the discovery document published under /concur/.
func Metadata() (hub.Metadata, error) {
	return hub.ParseMetadata(metadataJSON)
}
