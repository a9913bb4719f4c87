package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// IdentityKind distinguishes the three marker families.
type IdentityKind string

const (
	KindRegion   IdentityKind = "region"
	KindProperty IdentityKind = "property"
	KindGroup    IdentityKind = "group"
)

const (
	// GenerationSeparator joins a region id to its render generation.
	GenerationSeparator = "_"
	// CompositeSeparator joins the parts of a property key.
	CompositeSeparator = "-"
)

// Identity is the wire form of a marker identity.
type Identity struct {
	Kind IdentityKind `json:"kind"`
	Key  string       `json:"key"`
}

func (id Identity) String() string { return string(id.Kind) + ":" + id.Key }

// RegionKey is the structured form of a region marker key.
// Generation 0 means the key was never disambiguated.
type RegionKey struct {
	Base       string
	Generation int
}

func (k RegionKey) String() string {
	if k.Generation == 0 {
		return k.Base
	}
	return k.Base + GenerationSeparator + strconv.Itoa(k.Generation)
}

// ParseRegionKey recovers the structured form of a region key. The base is the
// text before the first underscore; the generation is the numeric text after
// the last one, or 0 when absent or not numeric.
func ParseRegionKey(key string) RegionKey {
	first := strings.Index(key, GenerationSeparator)
	if first < 0 {
		return RegionKey{Base: key}
	}
	k := RegionKey{Base: key[:first]}
	last := strings.LastIndex(key, GenerationSeparator)
	if gen, err := strconv.Atoi(key[last+1:]); err == nil && gen >= 0 {
		k.Generation = gen
	}
	return k
}

// StripGeneration drops the suffix following the last underscore of a key.
func StripGeneration(key string) string {
	if i := strings.LastIndex(key, GenerationSeparator); i >= 0 {
		return key[:i]
	}
	return key
}

// RegionIdentity builds the identity of a region marker for a render generation.
func RegionIdentity(regionID string, generation int) Identity {
	return Identity{Kind: KindRegion, Key: RegionKey{Base: regionID, Generation: generation}.String()}
}

// PropertyKey is the structured form of a single-property marker key.
type PropertyKey struct {
	Postcode string
	Street   string
	Flat     string
}

func (k PropertyKey) String() string {
	return strings.Join([]string{k.Postcode, k.Street, k.Flat}, CompositeSeparator)
}

// PropertyIdentity builds the identity of a single-property marker.
func PropertyIdentity(p PropertyRecord) Identity {
	return Identity{Kind: KindProperty, Key: PropertyKey{Postcode: p.Postcode, Street: p.Street, Flat: p.Flat}.String()}
}

// GroupIdentity builds the identity of a multi-property postcode marker.
func GroupIdentity(postcode string) Identity {
	return Identity{Kind: KindGroup, Key: postcode}
}

// MatchRegion reports whether an activated identity refers to one of the
// current region identities, comparing keys with their generation stripped.
// It returns the recovered base region id on a match. Property and group
// identities never match.
func MatchRegion(activated Identity, current []Identity) (string, bool) {
	if activated.Kind != KindRegion || activated.Key == "" {
		return "", false
	}
	stripped := StripGeneration(activated.Key)
	for _, c := range current {
		if c.Kind != KindRegion {
			continue
		}
		if StripGeneration(c.Key) == stripped {
			return ParseRegionKey(activated.Key).Base, true
		}
	}
	return "", false
}

// ValidateRegionID rejects region ids that would collide with the generation
// separator.
func ValidateRegionID(regionID string) error {
	if regionID == "" {
		return fmt.Errorf("empty region id")
	}
	if strings.Contains(regionID, GenerationSeparator) {
		return fmt.Errorf("region id %q contains reserved separator %q", regionID, GenerationSeparator)
	}
	return nil
}
