package attributes

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/diwise/ngsild-client/pkg/ngsild/errors"
	"github.com/diwise/ngsild-client/pkg/ngsild/geojson"
	"github.com/diwise/ngsild-client/pkg/ngsild/types"
	"github.com/diwise/ngsild-client/pkg/ngsild/urn"
	"github.com/google/uuid"
)

const (
	TypeProperty         string = "Property"
	TypeGeoProperty      string = "GeoProperty"
	TypeRelationship     string = "Relationship"
	TypeTemporalProperty string = "TemporalProperty"
)

// Metadata holds the optional provenance fields an attribute may carry.
type Metadata struct {
	unitCode   *string
	observedAt *string
	datasetID  *string
	userData   *types.Document
}

type MetadataDecoratorFunc func(*Metadata)

func UnitCode(code string) MetadataDecoratorFunc {
	return func(m *Metadata) {
		m.unitCode = &code
	}
}

func ObservedAt(timestamp string) MetadataDecoratorFunc {
	return func(m *Metadata) {
		m.observedAt = &timestamp
	}
}

func ObservedAtTime(t time.Time) MetadataDecoratorFunc {
	return ObservedAt(FormatDateTime(t))
}

func DatasetID(id string) MetadataDecoratorFunc {
	prefixed := urn.Prefix(id)
	return func(m *Metadata) {
		m.datasetID = &prefixed
	}
}

// NewDatasetID generates a fresh dataset identifier URN.
func NewDatasetID() string {
	return urn.FromParts("Dataset", uuid.NewString())
}

// UserData attaches an extra field to the attribute document. User data is
// merged after the reserved fields, so callers must not use it to try to
// override type or value.
func UserData(key string, value any) MetadataDecoratorFunc {
	return func(m *Metadata) {
		if m.userData == nil {
			m.userData = types.NewDocument()
		}
		m.userData.Set(key, value)
	}
}

func (m *Metadata) decorate(doc *types.Document, includeUnitCode bool) {
	if includeUnitCode && m.unitCode != nil {
		doc.Set("unitCode", *m.unitCode)
	}
	if m.observedAt != nil {
		doc.Set("observedAt", *m.observedAt)
	}
	if m.datasetID != nil {
		doc.Set("datasetId", *m.datasetID)
	}
	if m.userData != nil {
		for _, k := range m.userData.Keys() {
			v, _ := m.userData.Get(k)
			doc.Set(k, v)
		}
	}
}

// Property holds a scalar, list or map value together with optional metadata.
type Property struct {
	value any
	Metadata
}

// NewProperty maps a host value onto an NGSI-LD Property. Accepted value
// shapes are booleans, strings, all numeric kinds, slices and maps; anything
// else fails with an unmatched type error.
func NewProperty(value any, decorators ...MetadataDecoratorFunc) (*Property, error) {
	if !isLegalPropertyValue(value) {
		return nil, errors.NewUnmatchedTypeError(
			fmt.Sprintf("cannot map %T to an NGSI-LD property value", value),
		)
	}

	p := &Property{value: value}

	for _, decorator := range decorators {
		decorator(&p.Metadata)
	}

	return p, nil
}

// NewDateTimeProperty creates a Property whose value is a JSON-LD DateTime
// value object, the form used by dateObserved and friends.
func NewDateTimeProperty(value string, decorators ...MetadataDecoratorFunc) *Property {
	inner := types.NewDocument()
	inner.Set("@type", TemporalTypeDateTime)
	inner.Set("@value", value)

	p := &Property{value: inner}

	for _, decorator := range decorators {
		decorator(&p.Metadata)
	}

	return p
}

func (p *Property) Type() string {
	return TypeProperty
}

func (p *Property) Value() any {
	return p.value
}

func (p *Property) Document() *types.Document {
	doc := types.NewDocument()
	doc.Set("type", TypeProperty)
	doc.Set("value", p.value)
	p.decorate(doc, true)
	return doc
}

func isLegalPropertyValue(value any) bool {
	switch value.(type) {
	case bool, string, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	case *types.Document:
		return true
	}

	switch reflect.ValueOf(value).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return true
	default:
		return false
	}
}

// GeoProperty holds a GeoJSON geometry.
type GeoProperty struct {
	geometry geojson.Geometry
}

// NewGeoProperty maps a value onto an NGSI-LD GeoProperty. Only GeoJSON
// geometries are accepted; use NewGeoPropertyFromLatLon for coordinate pairs.
func NewGeoProperty(value any) (*GeoProperty, error) {
	geometry, ok := value.(geojson.Geometry)
	if !ok || geometry == nil {
		return nil, errors.NewUnmatchedTypeError(
			fmt.Sprintf("cannot map %T to a GeoJSON geometry", value),
		)
	}

	return &GeoProperty{geometry: geometry}, nil
}

// NewGeoPropertyFromLatLon creates a GeoProperty holding a Point. The input
// is a (latitude, longitude) pair, stored in GeoJSON (longitude, latitude)
// order.
func NewGeoPropertyFromLatLon(latitude, longitude float64) *GeoProperty {
	return &GeoProperty{geometry: geojson.NewPointFromLatLon(latitude, longitude)}
}

func (gp *GeoProperty) Type() string {
	return TypeGeoProperty
}

func (gp *GeoProperty) Geometry() geojson.Geometry {
	return gp.geometry
}

func (gp *GeoProperty) Document() *types.Document {
	doc := types.NewDocument()
	doc.Set("type", TypeGeoProperty)
	doc.Set("value", gp.geometry)
	return doc
}

// Relationship points at one or more other entities by URN.
type Relationship struct {
	object any
	Metadata
}

// NewRelationship creates a Relationship to a single object. The object
// identifier is URN normalized.
func NewRelationship(object string, decorators ...MetadataDecoratorFunc) *Relationship {
	r := &Relationship{object: urn.Prefix(object)}

	for _, decorator := range decorators {
		decorator(&r.Metadata)
	}

	return r
}

// NewMultiObjectRelationship creates a Relationship to several objects.
func NewMultiObjectRelationship(objects []string, decorators ...MetadataDecoratorFunc) *Relationship {
	prefixed := make([]string, len(objects))
	for idx, o := range objects {
		prefixed[idx] = urn.Prefix(o)
	}

	r := &Relationship{object: prefixed}

	for _, decorator := range decorators {
		decorator(&r.Metadata)
	}

	return r
}

func (r *Relationship) Type() string {
	return TypeRelationship
}

func (r *Relationship) Object() any {
	return r.object
}

func (r *Relationship) Document() *types.Document {
	doc := types.NewDocument()
	doc.Set("type", TypeRelationship)
	doc.Set("object", r.object)
	r.decorate(doc, false)
	return doc
}

// TemporalProperty holds a JSON-LD value object tagged as DateTime, Date
// or Time.
type TemporalProperty struct {
	temporalType string
	value        string
}

// NewTemporalProperty maps a time.Time or an ISO 8601 string onto an
// NGSI-LD TemporalProperty. Strings are classified by parsing; values that
// parse as none of datetime, date or time fail with a date format error.
func NewTemporalProperty(value any) (*TemporalProperty, error) {
	switch v := value.(type) {
	case time.Time:
		return &TemporalProperty{
			temporalType: TemporalTypeDateTime,
			value:        FormatDateTime(v),
		}, nil
	case string:
		temporalType, err := TemporalTypeOf(v)
		if err != nil {
			return nil, err
		}

		return &TemporalProperty{
			temporalType: temporalType,
			value:        v,
		}, nil
	default:
		return nil, errors.NewUnmatchedTypeError(
			fmt.Sprintf("cannot map %T to an NGSI-LD temporal value", value),
		)
	}
}

func (tp *TemporalProperty) Type() string {
	return TypeTemporalProperty
}

func (tp *TemporalProperty) TemporalType() string {
	return tp.temporalType
}

func (tp *TemporalProperty) Value() string {
	return tp.value
}

func (tp *TemporalProperty) Document() *types.Document {
	inner := types.NewDocument()
	inner.Set("@type", tp.temporalType)
	inner.Set("@value", tp.value)

	doc := types.NewDocument()
	doc.Set("type", TypeTemporalProperty)
	doc.Set("value", inner)
	return doc
}
