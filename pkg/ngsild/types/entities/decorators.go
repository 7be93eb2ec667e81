package entities

import (
	"github.com/diwise/ngsild-client/pkg/ngsild/types"
	"github.com/diwise/ngsild-client/pkg/ngsild/types/attributes"
)

// Context replaces the default bootstrap context on a new entity.
func Context(ctx []string) EntityDecoratorFunc {
	return func(e *Entity) {
		e.SetContext(ctx)
	}
}

// ContextFirst makes the entity serialize its @context before the other
// members, the typical JSON-LD wire layout.
func ContextFirst() EntityDecoratorFunc {
	return func(e *Entity) {
		e.contextFirst = true
	}
}

// A installs an already built attribute under the given name.
func A(name string, attribute types.Attribute) EntityDecoratorFunc {
	return func(e *Entity) {
		e.setAttribute(name, attribute)
	}
}

func Number(name string, value float64, decorators ...attributes.MetadataDecoratorFunc) EntityDecoratorFunc {
	p, _ := attributes.NewProperty(value, decorators...)
	return A(name, p)
}

func Text(name string, value string, decorators ...attributes.MetadataDecoratorFunc) EntityDecoratorFunc {
	p, _ := attributes.NewProperty(value, decorators...)
	return A(name, p)
}

func TextList(name string, value []string) EntityDecoratorFunc {
	p, _ := attributes.NewProperty(value)
	return A(name, p)
}

func DateTime(name string, value string) EntityDecoratorFunc {
	return A(name, attributes.NewDateTimeProperty(value))
}

func Location(latitude, longitude float64) EntityDecoratorFunc {
	return A("location", attributes.NewGeoPropertyFromLatLon(latitude, longitude))
}

func R(name string, object string, decorators ...attributes.MetadataDecoratorFunc) EntityDecoratorFunc {
	return A(name, attributes.NewRelationship(object, decorators...))
}

func RefDevice(device string) EntityDecoratorFunc {
	return R("refDevice", device)
}

func DateCreated(timestamp string) EntityDecoratorFunc {
	return DateTime("dateCreated", timestamp)
}

func DateModified(timestamp string) EntityDecoratorFunc {
	return DateTime("dateModified", timestamp)
}

func DateObserved(timestamp string) EntityDecoratorFunc {
	return DateTime("dateObserved", timestamp)
}

func Status(value string) EntityDecoratorFunc {
	return Text("status", value)
}

func Temperature(t float64) EntityDecoratorFunc {
	return Number("temperature", t)
}
