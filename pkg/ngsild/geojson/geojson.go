package geojson

import "fmt"

// Geometry is implemented by all GeoJSON geometry types that may be used
// as the value of an NGSI-LD GeoProperty.
type Geometry interface {
	GeometryType() string
}

// Point is a GeoJSON point geometry. Coordinates are stored in GeoJSON
// order, longitude first.
type Point struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

func (p *Point) GeometryType() string {
	return p.Type
}

func (p Point) Longitude() float64 {
	return p.Coordinates[0]
}

func (p Point) Latitude() float64 {
	return p.Coordinates[1]
}

// NewPoint creates a Point from a WGS84 coordinate given in GeoJSON order
// (longitude, latitude).
func NewPoint(longitude, latitude float64) *Point {
	return &Point{
		Type:        "Point",
		Coordinates: [2]float64{longitude, latitude},
	}
}

// NewPointFromLatLon creates a Point from a (latitude, longitude) pair,
// inverting the order to GeoJSON's (longitude, latitude).
func NewPointFromLatLon(latitude, longitude float64) *Point {
	return NewPoint(longitude, latitude)
}

// LineString is a GeoJSON line string geometry.
type LineString struct {
	Type        string      `json:"type"`
	Coordinates [][]float64 `json:"coordinates"`
}

func (ls *LineString) GeometryType() string {
	return ls.Type
}

func NewLineString(coordinates [][]float64) *LineString {
	return &LineString{
		Type:        "LineString",
		Coordinates: coordinates,
	}
}

// Polygon is a GeoJSON polygon geometry (an array of linear rings).
type Polygon struct {
	Type        string        `json:"type"`
	Coordinates [][][]float64 `json:"coordinates"`
}

func (p *Polygon) GeometryType() string {
	return p.Type
}

func NewPolygon(coordinates [][][]float64) *Polygon {
	return &Polygon{
		Type:        "Polygon",
		Coordinates: coordinates,
	}
}

// MultiPolygon is a GeoJSON multi polygon geometry.
type MultiPolygon struct {
	Type        string          `json:"type"`
	Coordinates [][][][]float64 `json:"coordinates"`
}

func (mp *MultiPolygon) GeometryType() string {
	return mp.Type
}

func NewMultiPolygon(coordinates [][][][]float64) *MultiPolygon {
	return &MultiPolygon{
		Type:        "MultiPolygon",
		Coordinates: coordinates,
	}
}

// UnmarshalGeometry materializes a Geometry from a decoded GeoJSON value.
func UnmarshalGeometry(value map[string]any) (Geometry, error) {
	geoType, ok := value["type"].(string)
	if !ok {
		return nil, fmt.Errorf("geometries without a type are not supported")
	}

	untypedCoordinates, ok := value["coordinates"]
	if !ok {
		return nil, fmt.Errorf("unable to unmarshal %s geometry with no coordinates", geoType)
	}

	switch geoType {
	case "Point":
		coordinates, ok := untypedCoordinates.([]any)
		if !ok || len(coordinates) < 2 {
			return nil, fmt.Errorf("point coordinates array has insufficient length")
		}

		lon, okLon := asFloat(coordinates[0])
		lat, okLat := asFloat(coordinates[1])

		if !okLon || !okLat {
			return nil, fmt.Errorf("point coordinates not convertible to float64")
		}

		return NewPoint(lon, lat), nil
	case "LineString":
		coords, err := floatMatrix(untypedCoordinates)
		if err != nil {
			return nil, fmt.Errorf("malformed linestring coordinates: %w", err)
		}
		return NewLineString(coords), nil
	case "Polygon":
		rings, ok := untypedCoordinates.([]any)
		if !ok {
			return nil, fmt.Errorf("malformed polygon coordinates")
		}

		coords := make([][][]float64, 0, len(rings))
		for _, ring := range rings {
			m, err := floatMatrix(ring)
			if err != nil {
				return nil, fmt.Errorf("malformed polygon coordinates: %w", err)
			}
			coords = append(coords, m)
		}

		return NewPolygon(coords), nil
	case "MultiPolygon":
		polygons, ok := untypedCoordinates.([]any)
		if !ok {
			return nil, fmt.Errorf("malformed multipolygon coordinates")
		}

		coords := make([][][][]float64, 0, len(polygons))
		for _, polygon := range polygons {
			rings, ok := polygon.([]any)
			if !ok {
				return nil, fmt.Errorf("malformed multipolygon coordinates")
			}

			c := make([][][]float64, 0, len(rings))
			for _, ring := range rings {
				m, err := floatMatrix(ring)
				if err != nil {
					return nil, fmt.Errorf("malformed multipolygon coordinates: %w", err)
				}
				c = append(c, m)
			}

			coords = append(coords, c)
		}

		return NewMultiPolygon(coords), nil
	default:
		return nil, fmt.Errorf("unknown geometry type %s", geoType)
	}
}

func floatMatrix(value any) ([][]float64, error) {
	rows, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("not an array of positions")
	}

	matrix := make([][]float64, 0, len(rows))

	for _, row := range rows {
		positions, ok := row.([]any)
		if !ok {
			return nil, fmt.Errorf("position is not an array")
		}

		pos := make([]float64, 0, len(positions))
		for _, p := range positions {
			f, ok := asFloat(p)
			if !ok {
				return nil, fmt.Errorf("coordinate not convertible to float64")
			}
			pos = append(pos, f)
		}

		matrix = append(matrix, pos)
	}

	return matrix, nil
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case interface{ Float64() (float64, error) }:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
