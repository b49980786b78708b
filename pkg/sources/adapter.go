package sources

import (
	"errors"
	"fmt"
	"strings"

	"github.com/carelink-health/platform/pkg/common/models"
)

var (
	ErrUnknownOrigin   = errors.New("unknown origin")
	errMissingRecordID = errors.New("missing record identifier")
	errMissingName     = errors.New("missing patient name")
)

// AdaptError reports a single malformed raw row. The row is skipped and
// logged; it never aborts the rest of that origin's ingest.
type AdaptError struct {
	Origin models.Origin
	RowID  string
	reason error
}

func (e AdaptError) Error() string {
	return fmt.Sprintf("adapt %s row %q: %v", e.Origin, e.RowID, e.reason)
}

func (e AdaptError) Unwrap() error {
	return e.reason
}

// Adapter maps one origin's raw row shape into the common SourceRecord. It
// performs field-mapping and type coercion only; cross-record comparison
// belongs to the matcher. Adding a data origin means adding one adapter.
type Adapter interface {
	Origin() models.Origin
	Adapt(row map[string]interface{}) (*models.SourceRecord, error)
}

// Registry resolves the adapter for an origin.
type Registry struct {
	adapters map[models.Origin]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.Origin]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Origin()] = a
	}
	return r
}

// DefaultRegistry wires the three built-in origins.
func DefaultRegistry() *Registry {
	return NewRegistry(RosterAdapter{}, EnrollmentAdapter{}, DirectoryAdapter{})
}

func (r *Registry) ForOrigin(origin models.Origin) (Adapter, error) {
	adapter, ok := r.adapters[origin]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOrigin, origin)
	}
	return adapter, nil
}

func getString(row map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		switch v := row[key].(type) {
		case string:
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				return trimmed
			}
		case fmt.Stringer:
			if trimmed := strings.TrimSpace(v.String()); trimmed != "" {
				return trimmed
			}
		case float64:
			return strings.TrimSpace(fmt.Sprintf("%.0f", v))
		case int:
			return fmt.Sprintf("%d", v)
		}
	}
	return ""
}

func getStringSlice(row map[string]interface{}, keys ...string) []string {
	for _, key := range keys {
		switch v := row[key].(type) {
		case []string:
			return cleanSlice(v)
		case []interface{}:
			out := make([]string, 0, len(v))
			for _, item := range v {
				if s, ok := item.(string); ok {
					out = append(out, s)
				}
			}
			if cleaned := cleanSlice(out); len(cleaned) > 0 {
				return cleaned
			}
		case string:
			if cleaned := cleanSlice(strings.Split(v, ",")); len(cleaned) > 0 {
				return cleaned
			}
		}
	}
	return nil
}

func cleanSlice(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
