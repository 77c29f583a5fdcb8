package features

import (
	"irrigation/internal/domain/irrigation"
	"irrigation/pkg/errors"
)

// Vector is an encoded feature vector laid out according to a Schema
type Vector []float64

// Clone returns an independent copy
func (v Vector) Clone() Vector {
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

// Encoder turns raw inputs into vectors using fitted vocabularies
type Encoder struct {
	schema   Schema
	soil     *Vocabulary
	seedling *Vocabulary
}

// NewEncoder creates an encoder. Vocabularies are required for every
// categorical feature present in the schema.
func NewEncoder(schema Schema, soil, seedling *Vocabulary) (*Encoder, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if schema.Has(SoilType) && soil.Len() == 0 {
		return nil, errors.Wrap(errors.ErrFeatureMismatch, "soil_type vocabulary is empty")
	}
	if schema.Has(SeedlingStage) && seedling.Len() == 0 {
		return nil, errors.Wrap(errors.ErrFeatureMismatch, "seedling_stage vocabulary is empty")
	}
	return &Encoder{schema: schema, soil: soil, seedling: seedling}, nil
}

// Order returns the feature names in vector order
func (e *Encoder) Order() []string {
	return e.schema.Names()
}

// Schema returns the schema the encoder was built for
func (e *Encoder) Schema() Schema {
	return e.schema
}

// Encode builds the unscaled vector for a prediction request
func (e *Encoder) Encode(in irrigation.RawInput) (Vector, error) {
	vec := make(Vector, e.schema.Len())
	for i, f := range e.schema.Features {
		switch f.Name {
		case Moisture:
			vec[i] = in.Moisture
		case Temperature:
			vec[i] = in.Temperature
		case Humidity:
			vec[i] = in.Humidity
		case SoilType:
			code, err := e.category(SoilType, in.SoilType, e.soil)
			if err != nil {
				return nil, err
			}
			vec[i] = float64(code)
		case SeedlingStage:
			code, err := e.category(SeedlingStage, in.SeedlingStage, e.seedling)
			if err != nil {
				return nil, err
			}
			vec[i] = float64(code)
		case CropID:
			if in.CropID == nil {
				return nil, errors.NewValidationError(CropID, "field is required by the active model", nil)
			}
			vec[i] = float64(*in.CropID)
		}
	}
	return vec, nil
}

// EncodeExample builds the unscaled vector for a training row.
// Training rows always carry category names regardless of the serving encoding.
func (e *Encoder) EncodeExample(ex irrigation.LabeledExample) (Vector, error) {
	in := irrigation.RawInput{
		SoilType:      irrigation.CategoryName(ex.SoilType),
		SeedlingStage: irrigation.CategoryName(ex.SeedlingStage),
		Moisture:      ex.Moisture,
		Temperature:   ex.Temperature,
		Humidity:      ex.Humidity,
		CropID:        ex.CropID,
	}
	raw := &Encoder{schema: e.schema, soil: e.soil, seedling: e.seedling}
	raw.schema.Encoding = EncodingRaw
	return raw.Encode(in)
}

func (e *Encoder) category(field string, value irrigation.CategoryValue, vocab *Vocabulary) (int, error) {
	if !value.Set {
		return 0, errors.NewValidationError(field, "field is required", nil)
	}

	switch e.schema.Encoding {
	case EncodingCoded:
		if !value.IsCode {
			return 0, errors.NewValidationError(field, "active model expects an integer code", value.Name)
		}
		if _, ok := vocab.Class(value.Code); !ok {
			return 0, errors.NewCategoryError(field, value.Code, vocab.Classes())
		}
		return value.Code, nil
	default:
		if value.IsCode {
			return 0, errors.NewValidationError(field, "active model expects a category name", value.Code)
		}
		code, ok := vocab.Code(value.Name)
		if !ok {
			return 0, errors.NewCategoryError(field, value.Name, vocab.Classes())
		}
		return code, nil
	}
}
