package entities

const (
	SchemaContextURL string = "https://schema.lab.fiware.org/ld/context"
	CoreContextURL   string = "https://uri.etsi.org/ngsi-ld/v1/ngsi-ld-core-context.jsonld"
)

// DefaultContext returns the two element bootstrap context used when an
// entity is created without an explicit one. A fresh slice is returned on
// every call so that no context is ever shared between entities.
func DefaultContext() []string {
	return []string{SchemaContextURL, CoreContextURL}
}

// ContextBuilder assembles the ordered list of JSON-LD context URIs
// attached to an entity.
type ContextBuilder struct {
	uris []string
}

// NewContextBuilder creates a builder seeded with the default context.
func NewContextBuilder() *ContextBuilder {
	return &ContextBuilder{uris: DefaultContext()}
}

// NewContextBuilderFrom creates a builder seeded with exactly the given
// URIs. Passing none yields an empty context.
func NewContextBuilderFrom(uris ...string) *ContextBuilder {
	cb := &ContextBuilder{uris: make([]string, len(uris))}
	copy(cb.uris, uris)
	return cb
}

// Add appends a URI to the context.
func (cb *ContextBuilder) Add(uri string) *ContextBuilder {
	cb.uris = append(cb.uris, uri)
	return cb
}

// Remove deletes the first occurrence of uri from the context.
func (cb *ContextBuilder) Remove(uri string) *ContextBuilder {
	for idx, u := range cb.uris {
		if u == uri {
			cb.uris = append(cb.uris[:idx], cb.uris[idx+1:]...)
			break
		}
	}
	return cb
}

// Build returns the assembled context. The returned slice is a copy.
func (cb *ContextBuilder) Build() []string {
	uris := make([]string, len(cb.uris))
	copy(uris, cb.uris)
	return uris
}
