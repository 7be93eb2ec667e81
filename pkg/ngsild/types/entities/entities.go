package entities

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/diwise/ngsild-client/pkg/ngsild/errors"
	"github.com/diwise/ngsild-client/pkg/ngsild/types"
	"github.com/diwise/ngsild-client/pkg/ngsild/types/attributes"
	"github.com/diwise/ngsild-client/pkg/ngsild/urn"
)

type EntityDecoratorFunc func(e *Entity)

// Entity is the in memory model of an NGSI-LD entity. It owns its payload
// exclusively: attribute documents and the context are never shared between
// entities, and anything handed back to callers is a copy.
type Entity struct {
	payload      *types.Document
	contextFirst bool
}

// New creates an entity with a normalized id, the given type and the
// default context, unless a Context decorator overrides it.
func New(entityID, entityType string, decorators ...EntityDecoratorFunc) (*Entity, error) {
	if entityID == "" {
		return nil, errors.ErrMissingID
	}

	if entityType == "" {
		return nil, errors.ErrMissingType
	}

	e := &Entity{payload: types.NewDocument()}
	e.payload.Set("@context", DefaultContext())
	e.payload.Set("id", urn.Prefix(entityID))
	e.payload.Set("type", entityType)

	for _, decorator := range decorators {
		decorator(e)
	}

	return e, nil
}

// NewFromJSON rehydrates an entity from a broker or file payload, keeping
// the payload's key order. The payload must already contain id, type and
// @context or the load fails.
func NewFromJSON(body []byte) (*Entity, error) {
	e := &Entity{}

	err := json.Unmarshal(body, e)
	if err != nil {
		return nil, err
	}

	return e, nil
}

// NewFromMap rehydrates an entity from an already decoded document. Since
// Go maps are unordered, id, type and attributes (sorted by name) are laid
// out deterministically with @context first.
func NewFromMap(doc map[string]any) (*Entity, error) {
	if idOf(doc["id"]) == "" {
		return nil, errors.ErrMissingID
	}

	if idOf(doc["type"]) == "" {
		return nil, errors.ErrMissingType
	}

	ctx, err := contextFromValue(doc["@context"])
	if err != nil {
		return nil, err
	}

	e := &Entity{payload: types.NewDocument()}
	e.payload.Set("@context", ctx)
	e.payload.Set("id", doc["id"])
	e.payload.Set("type", doc["type"])

	names := make([]string, 0, len(doc))
	for name := range doc {
		if name == "id" || name == "type" || name == "@context" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		e.payload.Set(name, documentValue(doc[name]))
	}

	return e, nil
}

// NewFromSlice decodes a JSON array of entities.
func NewFromSlice(body []byte) ([]*Entity, error) {
	raw := []json.RawMessage{}

	err := json.Unmarshal(body, &raw)
	if err != nil {
		return nil, err
	}

	arr := make([]*Entity, 0, len(raw))

	for _, r := range raw {
		e, err := NewFromJSON(r)
		if err != nil {
			return nil, err
		}
		arr = append(arr, e)
	}

	return arr, nil
}

// Load reads a single entity document from a file.
func Load(path string) (*Entity, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return NewFromJSON(body)
}

// Save writes the entity to a file as indented JSON.
func (e *Entity) Save(path string) error {
	body, err := e.PrettyJSON()
	if err != nil {
		return err
	}

	return os.WriteFile(path, body, 0644)
}

func (e *Entity) ID() string {
	id, _ := e.payload.Get("id")
	return idOf(id)
}

func (e *Entity) Type() string {
	t, _ := e.payload.Get("type")
	return idOf(t)
}

// Context returns a copy of the entity's JSON-LD context.
func (e *Entity) Context() []string {
	v, _ := e.payload.Get("@context")
	ctx, _ := v.([]string)

	dup := make([]string, len(ctx))
	copy(dup, ctx)
	return dup
}

// SetContext replaces the entity's JSON-LD context.
func (e *Entity) SetContext(ctx []string) {
	dup := make([]string, len(ctx))
	copy(dup, ctx)
	e.payload.Set("@context", dup)
}

// Equal reports whether two entities denote the same resource. Identity is
// the (type, id) pair only; attribute contents do not participate.
func (e *Entity) Equal(other *Entity) bool {
	if other == nil {
		return false
	}
	return e.Type() == other.Type() && e.ID() == other.ID()
}

// Prop builds a Property from value and installs it under name, replacing
// any attribute previously stored there. The stored document is returned.
func (e *Entity) Prop(name string, value any, decorators ...attributes.MetadataDecoratorFunc) (*types.Document, error) {
	p, err := attributes.NewProperty(value, decorators...)
	if err != nil {
		return nil, err
	}

	return e.setAttribute(name, p), nil
}

// GProp builds a GeoProperty from a GeoJSON geometry and installs it under name.
func (e *Entity) GProp(name string, value any) (*types.Document, error) {
	gp, err := attributes.NewGeoProperty(value)
	if err != nil {
		return nil, err
	}

	return e.setAttribute(name, gp), nil
}

// GPropLatLon installs a Point GeoProperty from a (latitude, longitude) pair.
func (e *Entity) GPropLatLon(name string, latitude, longitude float64) *types.Document {
	return e.setAttribute(name, attributes.NewGeoPropertyFromLatLon(latitude, longitude))
}

// TProp builds a TemporalProperty and installs it under name.
func (e *Entity) TProp(name string, value any) (*types.Document, error) {
	tp, err := attributes.NewTemporalProperty(value)
	if err != nil {
		return nil, err
	}

	return e.setAttribute(name, tp), nil
}

// Rel builds a Relationship to object and installs it under name.
func (e *Entity) Rel(name string, object string, decorators ...attributes.MetadataDecoratorFunc) *types.Document {
	return e.setAttribute(name, attributes.NewRelationship(object, decorators...))
}

func (e *Entity) setAttribute(name string, a types.Attribute) *types.Document {
	doc := a.Document()
	e.payload.Set(name, doc)
	return doc
}

// Attribute returns the attribute document stored under name.
func (e *Entity) Attribute(name string) (*types.Document, bool) {
	if name == "id" || name == "type" || name == "@context" {
		return nil, false
	}

	v, ok := e.payload.Get(name)
	if !ok {
		return nil, false
	}

	doc, ok := v.(*types.Document)
	return doc, ok
}

// TypedAttribute materializes the attribute stored under name into its
// tagged union form.
func (e *Entity) TypedAttribute(name string) (types.Attribute, error) {
	doc, ok := e.Attribute(name)
	if !ok {
		return nil, errors.NewNotFoundError(fmt.Sprintf("no attribute named \"%s\"", name))
	}

	return attributes.UnmarshalAttribute(doc)
}

// RemoveAttribute deletes the attribute stored under name, if any.
func (e *Entity) RemoveAttribute(name string) {
	if name == "id" || name == "type" || name == "@context" {
		return
	}

	e.payload.Delete(name)
}

// ForEachAttribute calls back once per attribute with its type discriminator,
// name and document.
func (e *Entity) ForEachAttribute(callback func(attributeType, attributeName string, doc *types.Document)) {
	for _, name := range e.payload.Keys() {
		if name == "id" || name == "type" || name == "@context" {
			continue
		}

		doc, ok := e.Attribute(name)
		if !ok {
			continue
		}

		discriminator, _ := doc.Get("type")
		attributeType, _ := discriminator.(string)

		callback(attributeType, name, doc)
	}
}

// Document returns a deep copy of the full entity document. When
// contextFirst is false the @context member is relocated to the end of the
// key ordering, which is the form used for storage; context first is the
// typical JSON-LD wire layout.
func (e *Entity) Document(contextFirst bool) *types.Document {
	doc := types.NewDocument()
	ctx, _ := e.payload.Get("@context")

	if contextFirst {
		doc.Set("@context", ctx)
	}

	for _, k := range e.payload.Keys() {
		if k == "@context" {
			continue
		}
		v, _ := e.payload.Get(k)
		doc.Set(k, v)
	}

	if !contextFirst {
		doc.Set("@context", ctx)
	}

	return doc.Copy()
}

// ContextFirst reports whether this entity serializes its @context before
// the other members.
func (e *Entity) ContextFirst() bool {
	return e.contextFirst
}

func (e *Entity) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Document(e.contextFirst))
}

func (e *Entity) UnmarshalJSON(data []byte) error {
	payload := types.NewDocument()

	err := json.Unmarshal(data, payload)
	if err != nil {
		return fmt.Errorf("failed to unmarshal entity: %w", err)
	}

	if id, _ := payload.Get("id"); idOf(id) == "" {
		return errors.ErrMissingID
	}

	if t, _ := payload.Get("type"); idOf(t) == "" {
		return errors.ErrMissingType
	}

	rawCtx, ok := payload.Get("@context")
	if !ok {
		return errors.ErrMissingContext
	}

	ctx, err := contextFromValue(rawCtx)
	if err != nil {
		return err
	}
	payload.Set("@context", ctx)

	e.payload = payload

	// remember where the source payload kept its context
	keys := payload.Keys()
	e.contextFirst = len(keys) > 0 && keys[0] == "@context"

	return nil
}

// PrettyJSON renders the entity as indented JSON.
func (e *Entity) PrettyJSON() ([]byte, error) {
	return json.MarshalIndent(e, "", "  ")
}

func idOf(value any) string {
	str, _ := value.(string)
	return str
}

func contextFromValue(value any) ([]string, error) {
	switch ctx := value.(type) {
	case string:
		return []string{ctx}, nil
	case []string:
		if len(ctx) == 0 {
			return nil, errors.ErrMissingContext
		}
		dup := make([]string, len(ctx))
		copy(dup, ctx)
		return dup, nil
	case []any:
		if len(ctx) == 0 {
			return nil, errors.ErrMissingContext
		}

		uris := make([]string, 0, len(ctx))
		for _, u := range ctx {
			str, ok := u.(string)
			if !ok {
				return nil, fmt.Errorf("unsupported @context entry of type %T", u)
			}
			uris = append(uris, str)
		}
		return uris, nil
	case nil:
		return nil, errors.ErrMissingContext
	default:
		return nil, fmt.Errorf("unsupported @context of type %T", value)
	}
}

// documentValue converts decoded JSON values into document form so that
// rehydrated attributes behave like built ones. Plain maps are laid out
// with sorted keys.
func documentValue(value any) any {
	switch v := value.(type) {
	case *types.Document:
		return v
	case map[string]any:
		doc := types.NewDocument()

		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			doc.Set(k, documentValue(v[k]))
		}
		return doc
	case []any:
		arr := make([]any, len(v))
		for idx, item := range v {
			arr[idx] = documentValue(item)
		}
		return arr
	default:
		return v
	}
}
