// Package swagger serves the OpenAPI description of the webhook API.
package swagger

import (
	"context"
	"net/http"
)

// PathOpenAPI is where the document is served.
const PathOpenAPI = "/openapi.yaml"

// Register attaches the OpenAPI document route to mux.
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.HandleFunc(PathOpenAPI, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		_, _ = w.Write(OpenAPI)
	})
}
