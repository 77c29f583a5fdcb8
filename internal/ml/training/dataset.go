package training

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"strings"

	"irrigation/internal/domain/irrigation"
	"irrigation/internal/ml/features"
	"irrigation/pkg/errors"
)

const labelColumn = "label"

// Header aliases seen in exported crop datasets, keyed by normalised name
var columnAliases = map[string]string{
	"moi":              features.Moisture,
	"moisture":         features.Moisture,
	"temp":             features.Temperature,
	"temperature":      features.Temperature,
	"humidity":         features.Humidity,
	"soil_type":        features.SoilType,
	"soil":             features.SoilType,
	"seedling_stage":   features.SeedlingStage,
	"seedling":         features.SeedlingStage,
	"crop_id":          features.CropID,
	"result":           labelColumn,
	"label":            labelColumn,
	"needs_irrigation": labelColumn,
}

var requiredColumns = []string{features.Moisture, features.Temperature, features.Humidity, labelColumn}

// Dataset is a parsed labelled upload
type Dataset struct {
	Examples    []irrigation.LabeledExample
	HasSoil     bool
	HasSeedling bool
	HasCropID   bool
}

// Positives counts examples labelled as needing irrigation
func (d *Dataset) Positives() int {
	n := 0
	for _, ex := range d.Examples {
		if ex.Result {
			n++
		}
	}
	return n
}

// NormalizeColumn lowercases a header and folds spaces and hyphens to underscores
func NormalizeColumn(name string) string {
	name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
	name = strings.NewReplacer(" ", "_", "-", "_").Replace(name)
	return name
}

// ParseCSV reads a labelled dataset. Unknown columns are ignored.
// Rows are numbered from 1 with the header as row 1.
func ParseCSV(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.NewDatasetError(0, "", "file is empty")
	}
	if err != nil {
		return nil, readError(err, 1)
	}

	columns := make(map[string]int, len(header))
	for i, h := range header {
		canonical, ok := columnAliases[NormalizeColumn(h)]
		if !ok {
			continue
		}
		if _, dup := columns[canonical]; dup {
			return nil, errors.NewDatasetError(0, canonical, "column appears more than once")
		}
		columns[canonical] = i
	}
	for _, c := range requiredColumns {
		if _, ok := columns[c]; !ok {
			return nil, errors.NewDatasetError(0, c, "required column is missing")
		}
	}

	ds := &Dataset{}
	_, ds.HasSoil = columns[features.SoilType]
	_, ds.HasSeedling = columns[features.SeedlingStage]
	_, ds.HasCropID = columns[features.CropID]

	for row := 2; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, readError(err, row)
		}

		ex, err := parseRecord(record, columns, ds, row)
		if err != nil {
			return nil, err
		}
		ds.Examples = append(ds.Examples, ex)
	}

	if len(ds.Examples) == 0 {
		return nil, errors.NewDatasetError(0, "", "no data rows")
	}
	return ds, nil
}

// readError reports CSV syntax problems against the row; transport failures
// (oversized upload, closed connection) are returned as they are.
func readError(err error, row int) error {
	var perr *csv.ParseError
	if errors.As(err, &perr) {
		return errors.NewDatasetError(row, "", perr.Err.Error())
	}
	return errors.Wrap(err, "read dataset")
}

func parseRecord(record []string, columns map[string]int, ds *Dataset, row int) (irrigation.LabeledExample, error) {
	var ex irrigation.LabeledExample
	var err error

	if ex.Moisture, err = parseNumber(record, columns, features.Moisture, row); err != nil {
		return ex, err
	}
	if ex.Temperature, err = parseNumber(record, columns, features.Temperature, row); err != nil {
		return ex, err
	}
	if ex.Humidity, err = parseNumber(record, columns, features.Humidity, row); err != nil {
		return ex, err
	}
	if ex.Result, err = parseLabel(record[columns[labelColumn]], row); err != nil {
		return ex, err
	}

	if ds.HasSoil {
		if ex.SoilType, err = parseCategory(record, columns, features.SoilType, row); err != nil {
			return ex, err
		}
	}
	if ds.HasSeedling {
		if ex.SeedlingStage, err = parseCategory(record, columns, features.SeedlingStage, row); err != nil {
			return ex, err
		}
	}
	if ds.HasCropID {
		raw := strings.TrimSpace(record[columns[features.CropID]])
		id, err := strconv.Atoi(raw)
		if err != nil {
			return ex, errors.NewDatasetError(row, features.CropID, "not an integer: "+strconv.Quote(raw))
		}
		ex.CropID = &id
	}

	return ex, nil
}

func parseNumber(record []string, columns map[string]int, column string, row int) (float64, error) {
	raw := strings.TrimSpace(record[columns[column]])
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.NewDatasetError(row, column, "not a finite number: "+strconv.Quote(raw))
	}
	return v, nil
}

func parseCategory(record []string, columns map[string]int, column string, row int) (string, error) {
	v := features.NormalizeCategory(record[columns[column]])
	if v == "" {
		return "", errors.NewDatasetError(row, column, "value is empty")
	}
	return v, nil
}

func parseLabel(raw string, row int) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "1.0", "true", "yes", "y":
		return true, nil
	case "0", "0.0", "false", "no", "n":
		return false, nil
	}
	return false, errors.NewDatasetError(row, labelColumn, "label must be 0/1, true/false or yes/no, got "+strconv.Quote(raw))
}
