package search

import (
	"errors"
	"fmt"
	"strings"
)

// Facet is one of the four search inputs. Facets share a session but never
// read each other's values.
type Facet string

const (
	FacetCharacteristic Facet = "characteristic"
	FacetAnomaly        Facet = "anomaly"
	FacetCamera         Facet = "camera"
	FacetTime           Facet = "time"
)

var ErrUnknownFacet = errors.New("unknown search facet")

var facets = map[Facet]bool{
	FacetCharacteristic: true,
	FacetAnomaly:        true,
	FacetCamera:         true,
	FacetTime:           true,
}

func Facets() []Facet {
	return []Facet{FacetCharacteristic, FacetAnomaly, FacetCamera, FacetTime}
}

func ParseFacet(s string) (Facet, error) {
	f := Facet(strings.ToLower(strings.TrimSpace(s)))
	if !facets[f] {
		return "", fmt.Errorf("%w: %q", ErrUnknownFacet, s)
	}
	return f, nil
}
