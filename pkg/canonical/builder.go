package canonical

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/carelink-health/platform/pkg/common/models"
)

// SchemaError reports a merged record missing the minimum required fields.
// It never discards the merge: the record is flagged incomplete and kept so
// it can surface for manual completion.
type SchemaError struct {
	CanonicalID string
	Missing     []string
}

func (e SchemaError) Error() string {
	return fmt.Sprintf("canonical record %s incomplete: missing %s", e.CanonicalID, strings.Join(e.Missing, ", "))
}

func IsSchemaError(err error) bool {
	var se SchemaError
	return errors.As(err, &se)
}

// Builder validates merged records against the target schema and stamps
// versioning metadata before they are handed to external consumers.
type Builder struct {
	now func() time.Time
}

func NewBuilder() *Builder {
	return &Builder{now: func() time.Time { return time.Now().UTC() }}
}

// Build checks the minimum schema (a name, plus at least one of phone or
// per-origin identifier), bumps the version counter only when content
// actually changed relative to prior, and stamps timestamps. On schema
// failure the stamped record is still returned, flagged incomplete, alongside
// the SchemaError.
func (b *Builder) Build(merged, prior *models.CanonicalPatientRecord) (*models.ValidatedRecord, error) {
	if merged == nil {
		return nil, errors.New("nil merged record")
	}

	now := b.now()
	record := *merged

	changed := prior == nil || !record.SameContent(prior)
	if prior == nil {
		record.CreatedAt = now
		record.Version = 1
		record.UpdatedAt = now
	} else {
		record.CreatedAt = prior.CreatedAt
		if changed {
			record.Version = prior.Version + 1
			record.UpdatedAt = now
		} else {
			record.Version = prior.Version
			record.UpdatedAt = prior.UpdatedAt
		}
	}

	var missing []string
	if record.FullName == "" {
		missing = append(missing, "name")
	}
	if record.Phone == "" && len(record.Identifiers) == 0 {
		missing = append(missing, "phone or identifier")
	}

	if len(missing) > 0 {
		record.Incomplete = true
		return &models.ValidatedRecord{CanonicalPatientRecord: record, ValidatedAt: now},
			SchemaError{CanonicalID: record.CanonicalID, Missing: missing}
	}

	record.Incomplete = false
	return &models.ValidatedRecord{CanonicalPatientRecord: record, ValidatedAt: now}, nil
}
