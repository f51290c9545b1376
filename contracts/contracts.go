// Package contracts embeds the OpenAPI documents served and enforced by the API.
package contracts

import (
	"context"
	_ "embed"
	"fmt"
	"sort"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed tenants.yaml
var tenantsYAML []byte

var documents = map[string][]byte{
	"tenants": tenantsYAML,
}

// Names returns the published document names in sorted order.
func Names() []string {
	names := make([]string, 0, len(documents))
	for name := range documents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load parses and validates the named document. Every call returns a fresh copy.
func Load(name string) (*openapi3.T, error) {
	raw, ok := documents[name]
	if !ok {
		return nil, fmt.Errorf("unknown contract %q", name)
	}

	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(raw)
	if err != nil {
		return nil, fmt.Errorf("load contract %q: %w", name, err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("validate contract %q: %w", name, err)
	}
	return doc, nil
}

// Tenants loads the tenants contract.
func Tenants() (*openapi3.T, error) {
	return Load("tenants")
}
