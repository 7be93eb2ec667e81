package types

// Attribute is the tagged union over the four NGSI-LD attribute kinds
// (Property, GeoProperty, Relationship and TemporalProperty). The concrete
// implementations live in the attributes package.
type Attribute interface {
	// Type returns the NGSI-LD type discriminator of this attribute
	Type() string
	// Document renders the attribute as a document ready to be merged
	// into an entity payload. The returned document is owned by the
	// caller and never shared between invocations.
	Document() *Document
}
