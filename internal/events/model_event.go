package events

import (
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"irrigation/pkg/errors"
)

// ModelRetrained announces that a replica trained and persisted a new bundle
type ModelRetrained struct {
	EventID            string
	Source             string
	Hostname           string
	BundleID           uuid.UUID
	RunID              uuid.UUID
	Classifier         string
	Encoding           string
	Features           []string
	Examples           int
	ValidationAccuracy float64
	OccurredAt         time.Time
}

// Marshal encodes the event as a protobuf Struct
func (e *ModelRetrained) Marshal() ([]byte, error) {
	features := make([]interface{}, len(e.Features))
	for i, f := range e.Features {
		features[i] = SanitizeUTF8(f)
	}

	msg, err := structpb.NewStruct(map[string]interface{}{
		"type":                TypeModelRetrained,
		"event_id":            e.EventID,
		"source":              e.Source,
		"hostname":            SanitizeUTF8(e.Hostname),
		"bundle_id":           e.BundleID.String(),
		"run_id":              e.RunID.String(),
		"classifier":          SanitizeUTF8(e.Classifier),
		"encoding":            e.Encoding,
		"features":            features,
		"examples":            e.Examples,
		"validation_accuracy": e.ValidationAccuracy,
		"occurred_at":         e.OccurredAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, errors.Wrap(err, "build model event")
	}

	data, err := proto.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(err, "marshal protobuf")
	}
	return data, nil
}

// ParseModelEvent decodes a payload produced by Marshal.
// Events of other types return ErrNotFound so consumers can skip them.
func ParseModelEvent(data []byte) (*ModelRetrained, error) {
	var msg structpb.Struct
	if err := proto.Unmarshal(data, &msg); err != nil {
		return nil, errors.Wrap(err, "unmarshal protobuf")
	}

	fields := msg.GetFields()
	if fields["type"].GetStringValue() != TypeModelRetrained {
		return nil, errors.Wrapf(errors.ErrNotFound, "unsupported event type %q", fields["type"].GetStringValue())
	}

	bundleID, err := uuid.Parse(fields["bundle_id"].GetStringValue())
	if err != nil {
		return nil, errors.Wrap(err, "parse bundle_id")
	}
	// Failed runs never produce events, but an absent run id is tolerated
	runID, _ := uuid.Parse(fields["run_id"].GetStringValue())

	occurred, err := time.Parse(time.RFC3339Nano, fields["occurred_at"].GetStringValue())
	if err != nil {
		return nil, errors.Wrap(err, "parse occurred_at")
	}

	var featureNames []string
	for _, v := range fields["features"].GetListValue().GetValues() {
		featureNames = append(featureNames, v.GetStringValue())
	}

	return &ModelRetrained{
		EventID:            fields["event_id"].GetStringValue(),
		Source:             fields["source"].GetStringValue(),
		Hostname:           fields["hostname"].GetStringValue(),
		BundleID:           bundleID,
		RunID:              runID,
		Classifier:         fields["classifier"].GetStringValue(),
		Encoding:           fields["encoding"].GetStringValue(),
		Features:           featureNames,
		Examples:           int(fields["examples"].GetNumberValue()),
		ValidationAccuracy: fields["validation_accuracy"].GetNumberValue(),
		OccurredAt:         occurred,
	}, nil
}
