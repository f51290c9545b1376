package main

import (
	"fmt"
	"html/template"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy/contracts"
)

var swaggerUI = template.Must(template.New("docs").Parse(`<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>Palmyra Tenancy API - Swagger UI</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
    <style>body{margin:0} #swagger-ui{max-width:1400px;margin:0 auto}</style>
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-standalone-preset.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        urls: {{ .Specs }},
        dom_id: '#swagger-ui',
        deepLinking: true,
        persistAuthorization: true,
        presets: [SwaggerUIBundle.presets.apis, SwaggerUIStandalonePreset],
        layout: 'StandaloneLayout'
      });
    </script>
  </body>
</html>`))

type docSpec struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// registerDocsRoutes serves the Swagger UI and the embedded contracts rendered as JSON.
// Contracts are marshalled once; a contract that fails to load is skipped and logged.
func registerDocsRoutes(router chi.Router, logger *zap.Logger) {
	rendered := make(map[string][]byte)
	var specs []docSpec
	for _, name := range contracts.Names() {
		doc, err := contracts.Load(name)
		if err != nil {
			logger.Error("load contract for docs", zap.String("name", name), zap.Error(err))
			continue
		}
		b, err := doc.MarshalJSON()
		if err != nil {
			logger.Error("marshal contract for docs", zap.String("name", name), zap.Error(err))
			continue
		}
		rendered[name] = b
		specs = append(specs, docSpec{URL: fmt.Sprintf("/openapi/%s.json", name), Name: name})
	}

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := swaggerUI.Execute(w, struct{ Specs []docSpec }{specs}); err != nil {
			logger.Warn("render docs", zap.Error(err))
		}
	})
	router.Get("/openapi/{name}.json", func(w http.ResponseWriter, r *http.Request) {
		b, ok := rendered[chi.URLParam(r, "name")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(b)
	})
}

func logSecuritySchemes(logger *zap.Logger, name string, spec *openapi3.T) {
	names := make([]string, 0, len(spec.Components.SecuritySchemes))
	for scheme := range spec.Components.SecuritySchemes {
		names = append(names, scheme)
	}
	logger.Info("loaded security schemes", zap.String("contract", name), zap.Strings("names", names))
}
