package urn

import "strings"

// NGSI-LD entity identifiers are URNs in the urn:ngsi-ld: namespace
const Scheme string = "urn:ngsi-ld:"

// Prefix turns a bare identifier into an NGSI-LD URN. Identifiers that
// already carry the urn:ngsi-ld: prefix are returned unchanged, so the
// function is idempotent.
func Prefix(id string) string {
	if strings.HasPrefix(id, Scheme) {
		return id
	}
	return Scheme + id
}

// FromParts assembles a urn:ngsi-ld:<Type>:<id> identifier.
func FromParts(entityType, id string) string {
	return Scheme + entityType + ":" + id
}

// LocalID strips the urn:ngsi-ld: prefix from an identifier, if present.
func LocalID(id string) string {
	return strings.TrimPrefix(id, Scheme)
}
