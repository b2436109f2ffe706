// Package api embeds the OpenAPI description of the Busline HTTP API.
// It is served verbatim at /openapi.yaml.
package api

import _ "embed"

// OpenAPI contains the raw bytes of openapi.yaml, embedded at compile time so
// the published contract ships with the binary that implements it.
//
//go:embed openapi.yaml
var OpenAPI []byte
