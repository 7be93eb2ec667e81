package client

import (
	"fmt"
	"net/url"
	"strings"
)

// RequestOption adjusts a single broker request without affecting the
// client's defaults.
type RequestOption func(*requestConfig)

type requestConfig struct {
	accept      string
	contentType string
	contextLink string
	params      []string

	skipOnConflict      bool
	overwriteOnConflict bool
	checkExists         bool
}

func newRequestConfig(options ...RequestOption) *requestConfig {
	cfg := &requestConfig{
		accept:      applicationLDJSON,
		contentType: applicationLDJSON,
		checkExists: true,
	}

	for _, option := range options {
		option(cfg)
	}

	return cfg
}

func Accept(contentType string) RequestOption {
	return func(cfg *requestConfig) {
		cfg.accept = contentType
	}
}

func ContentType(contentType string) RequestOption {
	return func(cfg *requestConfig) {
		cfg.contentType = contentType
	}
}

// ContextLink requests entity expansion against the given @context by
// sending it in a Link header.
func ContextLink(contextURL string) RequestOption {
	return func(cfg *requestConfig) {
		cfg.contextLink = contextURL
	}
}

// SkipOnConflict turns a conflicting create into a silent no-op.
func SkipOnConflict() RequestOption {
	return func(cfg *requestConfig) {
		cfg.skipOnConflict = true
	}
}

// OverwriteOnConflict replaces the remote entity when a create
// conflicts with one that already exists.
func OverwriteOnConflict() RequestOption {
	return func(cfg *requestConfig) {
		cfg.overwriteOnConflict = true
	}
}

// WithoutExistenceCheck makes updates replace the remote entity
// unconditionally, without probing for it first.
func WithoutExistenceCheck() RequestOption {
	return func(cfg *requestConfig) {
		cfg.checkExists = false
	}
}

func IDs(ids []string) RequestOption {
	return func(cfg *requestConfig) {
		cfg.params = append(cfg.params, "id="+url.QueryEscape(strings.Join(ids, ",")))
	}
}

func Attributes(attributeNames []string) RequestOption {
	return func(cfg *requestConfig) {
		cfg.params = append(cfg.params, "attrs="+url.QueryEscape(strings.Join(attributeNames, ",")))
	}
}

func GeoQuery(georel, geometry string, coordinates ...float64) RequestOption {
	return func(cfg *requestConfig) {
		coords := make([]string, 0, len(coordinates))
		for _, c := range coordinates {
			coords = append(coords, fmt.Sprintf("%g", c))
		}

		cfg.params = append(cfg.params,
			"georel="+url.QueryEscape(georel),
			"geometry="+url.QueryEscape(geometry),
			"coordinates="+url.QueryEscape("["+strings.Join(coords, ",")+"]"),
		)
	}
}

func NearPoint(distance int64, latitude, longitude float64) RequestOption {
	return GeoQuery(fmt.Sprintf("near;maxDistance==%d", distance), "Point", longitude, latitude)
}

func Limit(limit uint64) RequestOption {
	return func(cfg *requestConfig) {
		if limit > 0 {
			cfg.params = append(cfg.params, fmt.Sprintf("limit=%d", limit))
		}
	}
}

func Offset(offset uint64) RequestOption {
	return func(cfg *requestConfig) {
		if offset > 0 {
			cfg.params = append(cfg.params, fmt.Sprintf("offset=%d", offset))
		}
	}
}
