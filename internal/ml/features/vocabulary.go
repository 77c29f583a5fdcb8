package features

import (
	"encoding/json"
	"sort"
	"strings"

	"irrigation/pkg/errors"
)

// Vocabulary is a bijection between category names and codes 0..n-1.
// Codes follow the sorted order of the distinct names, the same way a label
// encoder assigns them, so fitting on the same data always yields the same codes.
type Vocabulary struct {
	classes []string
	index   map[string]int
}

// NormalizeCategory is applied to category names at fit time and at lookup time
func NormalizeCategory(name string) string {
	return strings.TrimSpace(name)
}

// FitVocabulary builds a vocabulary from observed values (duplicates allowed)
func FitVocabulary(values []string) *Vocabulary {
	distinct := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = NormalizeCategory(v)
		if v == "" {
			continue
		}
		distinct[v] = struct{}{}
	}

	classes := make([]string, 0, len(distinct))
	for v := range distinct {
		classes = append(classes, v)
	}
	sort.Strings(classes)

	return newVocabulary(classes)
}

// NewVocabulary builds a vocabulary from an explicit, ordered class list
// (e.g. exported from an external training run). Duplicates are rejected.
func NewVocabulary(classes []string) (*Vocabulary, error) {
	seen := make(map[string]struct{}, len(classes))
	for _, c := range classes {
		c = NormalizeCategory(c)
		if c == "" {
			return nil, errors.Wrap(errors.ErrFeatureMismatch, "vocabulary contains an empty class")
		}
		if _, dup := seen[c]; dup {
			return nil, errors.Wrapf(errors.ErrFeatureMismatch, "vocabulary class %q is duplicated", c)
		}
		seen[c] = struct{}{}
	}
	normalized := make([]string, len(classes))
	for i, c := range classes {
		normalized[i] = NormalizeCategory(c)
	}
	return newVocabulary(normalized), nil
}

func newVocabulary(classes []string) *Vocabulary {
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	return &Vocabulary{classes: classes, index: index}
}

// Code returns the code for a category name
func (v *Vocabulary) Code(name string) (int, bool) {
	if v == nil {
		return 0, false
	}
	code, ok := v.index[NormalizeCategory(name)]
	return code, ok
}

// Class returns the category name for a code
func (v *Vocabulary) Class(code int) (string, bool) {
	if v == nil || code < 0 || code >= len(v.classes) {
		return "", false
	}
	return v.classes[code], true
}

// Classes returns a copy of the class list in code order
func (v *Vocabulary) Classes() []string {
	if v == nil {
		return nil
	}
	out := make([]string, len(v.classes))
	copy(out, v.classes)
	return out
}

// Len returns the number of classes
func (v *Vocabulary) Len() int {
	if v == nil {
		return 0
	}
	return len(v.classes)
}

// MarshalJSON stores the vocabulary as its ordered class list
func (v *Vocabulary) MarshalJSON() ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	return json.Marshal(v.classes)
}

// UnmarshalJSON restores a vocabulary from its ordered class list
func (v *Vocabulary) UnmarshalJSON(data []byte) error {
	var classes []string
	if err := json.Unmarshal(data, &classes); err != nil {
		return err
	}
	restored, err := NewVocabulary(classes)
	if err != nil {
		return err
	}
	*v = *restored
	return nil
}
