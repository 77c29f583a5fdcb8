package events

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event types carried in the "type" field of every model event
const (
	TypeModelRetrained = "model.retrained"
)

// SourceService identifies events emitted by this service
const SourceService = "irrigation-advisor"

// SanitizeUTF8 drops invalid UTF-8 sequences. Category names come from uploaded
// CSV files and protobuf rejects invalid strings.
func SanitizeUTF8(s string) string {
	return strings.ToValidUTF8(s, "")
}

func sanitizeAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = SanitizeUTF8(v)
	}
	return out
}

func newEventID() string {
	return uuid.NewString()
}

func now() time.Time {
	return time.Now().UTC()
}
