package attributes

import (
	"fmt"

	"github.com/diwise/ngsild-client/pkg/ngsild/errors"
	"github.com/diwise/ngsild-client/pkg/ngsild/geojson"
	"github.com/diwise/ngsild-client/pkg/ngsild/types"
)

// UnmarshalAttribute materializes a typed attribute from an attribute
// document, dispatching on the type discriminator.
func UnmarshalAttribute(doc *types.Document) (types.Attribute, error) {
	discriminator, ok := doc.Get("type")
	if !ok {
		return nil, errors.NewUnmatchedTypeError("attribute documents without a type are not supported")
	}

	attributeType, ok := discriminator.(string)
	if !ok {
		return nil, errors.NewUnmatchedTypeError("attribute type discriminator is not a string")
	}

	switch attributeType {
	case TypeProperty:
		return unmarshalProperty(doc)
	case TypeGeoProperty:
		return unmarshalGeoProperty(doc)
	case TypeRelationship:
		return unmarshalRelationship(doc)
	case TypeTemporalProperty:
		return unmarshalTemporalProperty(doc)
	default:
		return nil, errors.NewUnmatchedTypeError(
			fmt.Sprintf("attribute type \"%s\" is not supported", attributeType),
		)
	}
}

var reservedPropertyKeys = map[string]struct{}{
	"type": {}, "value": {}, "unitCode": {}, "observedAt": {}, "datasetId": {},
}

func unmarshalProperty(doc *types.Document) (*Property, error) {
	value, ok := doc.Get("value")
	if !ok {
		return nil, errors.NewUnmatchedTypeError("properties without a value are not supported")
	}

	p := &Property{value: value}

	if unitCode, ok := stringField(doc, "unitCode"); ok {
		p.unitCode = &unitCode
	}
	if observedAt, ok := stringField(doc, "observedAt"); ok {
		p.observedAt = &observedAt
	}
	if datasetID, ok := stringField(doc, "datasetId"); ok {
		p.datasetID = &datasetID
	}

	for _, k := range doc.Keys() {
		if _, reserved := reservedPropertyKeys[k]; reserved {
			continue
		}
		v, _ := doc.Get(k)
		if p.userData == nil {
			p.userData = types.NewDocument()
		}
		p.userData.Set(k, v)
	}

	return p, nil
}

func unmarshalGeoProperty(doc *types.Document) (*GeoProperty, error) {
	value, ok := doc.Get("value")
	if !ok {
		return nil, errors.NewUnmatchedTypeError("geoproperties without a value are not supported")
	}

	inner, ok := value.(*types.Document)
	if !ok {
		return nil, errors.NewUnmatchedTypeError(
			fmt.Sprintf("unable to parse geoproperty value of type %T", value),
		)
	}

	geometry, err := geojson.UnmarshalGeometry(inner.AsMap())
	if err != nil {
		return nil, errors.NewUnmatchedTypeError(err.Error())
	}

	return &GeoProperty{geometry: geometry}, nil
}

func unmarshalRelationship(doc *types.Document) (*Relationship, error) {
	object, ok := doc.Get("object")
	if !ok {
		return nil, errors.NewUnmatchedTypeError("relationships without an object are not supported")
	}

	r := &Relationship{}

	switch typedObject := object.(type) {
	case string:
		r.object = typedObject
	case []any:
		objects := make([]string, 0, len(typedObject))
		for _, o := range typedObject {
			if str, ok := o.(string); ok {
				objects = append(objects, str)
			}
		}
		r.object = objects
	case []string:
		r.object = typedObject
	default:
		return nil, errors.NewUnmatchedTypeError(
			fmt.Sprintf("unable to parse relationship object of type %T", object),
		)
	}

	if observedAt, ok := stringField(doc, "observedAt"); ok {
		r.observedAt = &observedAt
	}

	return r, nil
}

func unmarshalTemporalProperty(doc *types.Document) (*TemporalProperty, error) {
	value, ok := doc.Get("value")
	if !ok {
		return nil, errors.NewUnmatchedTypeError("temporal properties without a value are not supported")
	}

	inner, ok := value.(*types.Document)
	if !ok {
		return nil, errors.NewUnmatchedTypeError(
			fmt.Sprintf("unable to parse temporal value of type %T", value),
		)
	}

	temporalType, ok := stringField(inner, "@type")
	if !ok {
		return nil, errors.NewUnmatchedTypeError("temporal value objects must carry a @type")
	}

	temporalValue, ok := stringField(inner, "@value")
	if !ok {
		return nil, errors.NewUnmatchedTypeError("temporal value objects must carry a @value")
	}

	return &TemporalProperty{temporalType: temporalType, value: temporalValue}, nil
}

func stringField(doc *types.Document, key string) (string, bool) {
	v, ok := doc.Get(key)
	if !ok {
		return "", false
	}

	str, ok := v.(string)
	return str, ok
}
