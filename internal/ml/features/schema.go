package features

import (
	"strings"

	"irrigation/pkg/errors"
)

// Canonical feature names. They are part of the serialized bundle contract.
const (
	Moisture      = "moisture"
	Temperature   = "temperature"
	Humidity      = "humidity"
	SoilType      = "soil_type"
	SeedlingStage = "seedling_stage"
	CropID        = "crop_id"
)

// Kind tells the pipeline how a feature is produced and whether it is scaled
type Kind string

const (
	KindNumeric     Kind = "numeric"     // scaled
	KindCategorical Kind = "categorical" // vocabulary code, not scaled
	KindIdentifier  Kind = "identifier"  // integer passed through, not scaled
)

// Encoding is the convention clients use for categorical inputs
type Encoding string

const (
	EncodingRaw   Encoding = "raw"   // category names, looked up in the vocabulary
	EncodingCoded Encoding = "coded" // integer codes produced by the vocabulary
)

// Valid checks if encoding is known
func (e Encoding) Valid() bool {
	return e == EncodingRaw || e == EncodingCoded
}

// Feature is one slot of the feature vector
type Feature struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// Schema fixes the order, count and encoding of the feature vector.
// A scaler or classifier fitted against one schema is only valid for that schema.
type Schema struct {
	Encoding Encoding  `json:"encoding"`
	Features []Feature `json:"features"`
}

// BuildSchema returns the canonical layout:
// [moisture, temperature, humidity, soil_type?, seedling_stage?, crop_id?]
func BuildSchema(enc Encoding, withSoil, withSeedling, withCropID bool) Schema {
	s := Schema{
		Encoding: enc,
		Features: []Feature{
			{Name: Moisture, Kind: KindNumeric},
			{Name: Temperature, Kind: KindNumeric},
			{Name: Humidity, Kind: KindNumeric},
		},
	}
	if withSoil {
		s.Features = append(s.Features, Feature{Name: SoilType, Kind: KindCategorical})
	}
	if withSeedling {
		s.Features = append(s.Features, Feature{Name: SeedlingStage, Kind: KindCategorical})
	}
	if withCropID {
		s.Features = append(s.Features, Feature{Name: CropID, Kind: KindIdentifier})
	}
	return s
}

// Len returns the vector length
func (s Schema) Len() int {
	return len(s.Features)
}

// Names returns feature names in vector order
func (s Schema) Names() []string {
	names := make([]string, len(s.Features))
	for i, f := range s.Features {
		names[i] = f.Name
	}
	return names
}

// Index returns the vector position of a feature, or -1
func (s Schema) Index(name string) int {
	for i, f := range s.Features {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Has reports whether the schema contains the feature
func (s Schema) Has(name string) bool {
	return s.Index(name) >= 0
}

// NumericIndices returns the positions the scaler operates on
func (s Schema) NumericIndices() []int {
	idx := make([]int, 0, len(s.Features))
	for i, f := range s.Features {
		if f.Kind == KindNumeric {
			idx = append(idx, i)
		}
	}
	return idx
}

// String renders the order as a comma separated list
func (s Schema) String() string {
	return strings.Join(s.Names(), ",")
}

// Validate rejects unknown names, duplicates and mismatched kinds
func (s Schema) Validate() error {
	if !s.Encoding.Valid() {
		return errors.Wrapf(errors.ErrFeatureMismatch, "unknown encoding %q", s.Encoding)
	}
	if len(s.Features) == 0 {
		return errors.Wrap(errors.ErrFeatureMismatch, "schema has no features")
	}

	expected := map[string]Kind{
		Moisture:      KindNumeric,
		Temperature:   KindNumeric,
		Humidity:      KindNumeric,
		SoilType:      KindCategorical,
		SeedlingStage: KindCategorical,
		CropID:        KindIdentifier,
	}
	seen := make(map[string]bool, len(s.Features))
	for _, f := range s.Features {
		kind, ok := expected[f.Name]
		if !ok {
			return errors.Wrapf(errors.ErrFeatureMismatch, "unknown feature %q", f.Name)
		}
		if kind != f.Kind {
			return errors.Wrapf(errors.ErrFeatureMismatch, "feature %q must be %s, got %s", f.Name, kind, f.Kind)
		}
		if seen[f.Name] {
			return errors.Wrapf(errors.ErrFeatureMismatch, "duplicate feature %q", f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}
