package sources

import (
	"context"

	"github.com/carelink-health/platform/pkg/common/logger"
	"github.com/carelink-health/platform/pkg/common/models"
	"github.com/carelink-health/platform/pkg/observability/metrics"
)

// Store is the persistence surface the intake service needs.
type Store interface {
	Save(ctx context.Context, rec *models.SourceRecord) error
	Retract(ctx context.Context, origin models.Origin, originRecordID string) error
	ListByOrigin(ctx context.Context, origin models.Origin, limit int) ([]models.SourceRecord, error)
}

// Publisher is the event bus surface the intake service emits on.
type Publisher interface {
	PublishEvent(ctx context.Context, eventType, source string, data map[string]interface{}) error
}

type Service struct {
	registry *Registry
	store    Store
	producer Publisher
	dlq      Publisher
}

func NewService(registry *Registry, store Store, producer, dlq Publisher) *Service {
	return &Service{registry: registry, store: store, producer: producer, dlq: dlq}
}

// IngestRows adapts and persists a batch of raw rows for one origin. A bad
// row is skipped and reported; it never aborts the batch.
func (s *Service) IngestRows(ctx context.Context, origin models.Origin, rows []map[string]interface{}) (*models.RawRowsResponse, error) {
	adapter, err := s.registry.ForOrigin(origin)
	if err != nil {
		return nil, err
	}

	resp := &models.RawRowsResponse{Origin: origin}
	for i, row := range rows {
		record, err := adapter.Adapt(row)
		if err != nil {
			logger.Log.WithError(err).WithFields(map[string]interface{}{
				"origin": origin,
				"row":    i,
			}).Warn("skipping malformed row")
			resp.Skipped++
			resp.Errors = append(resp.Errors, models.RowError{Index: i, RowID: rowID(err), Reason: err.Error()})
			continue
		}

		if err := s.store.Save(ctx, record); err != nil {
			logger.Log.WithError(err).WithFields(map[string]interface{}{
				"origin":           origin,
				"origin_record_id": record.OriginRecordID,
			}).Error("failed to persist source record")
			resp.Skipped++
			resp.Errors = append(resp.Errors, models.RowError{Index: i, RowID: record.OriginRecordID, Reason: err.Error()})
			continue
		}
		resp.Accepted++

		s.publish(ctx, map[string]interface{}{
			"origin":           string(origin),
			"origin_record_id": record.OriginRecordID,
			"generation":       record.Generation,
		})
	}

	metrics.ObserveIntake(resp.Accepted, resp.Skipped)
	return resp, nil
}

func (s *Service) RetractRow(ctx context.Context, origin models.Origin, originRecordID string) error {
	if _, err := s.registry.ForOrigin(origin); err != nil {
		return err
	}
	if err := s.store.Retract(ctx, origin, originRecordID); err != nil {
		return err
	}
	s.publish(ctx, map[string]interface{}{
		"origin":           string(origin),
		"origin_record_id": originRecordID,
		"retracted":        true,
	})
	return nil
}

func (s *Service) ListRows(ctx context.Context, origin models.Origin, limit int) ([]models.SourceRecord, error) {
	if _, err := s.registry.ForOrigin(origin); err != nil {
		return nil, err
	}
	return s.store.ListByOrigin(ctx, origin, limit)
}

func (s *Service) publish(ctx context.Context, data map[string]interface{}) {
	if s.producer == nil {
		return
	}
	if err := s.producer.PublishEvent(ctx, "source-record", "ingestion-service", data); err != nil {
		logger.Log.WithError(err).Error("failed to publish source-record event")
		if s.dlq != nil {
			if dlqErr := s.dlq.PublishEvent(ctx, "source-record", "ingestion-service", data); dlqErr != nil {
				logger.Log.WithError(dlqErr).Error("failed to publish source-record event to DLQ")
			}
		}
	}
}

func rowID(err error) string {
	if ae, ok := err.(AdaptError); ok {
		return ae.RowID
	}
	return ""
}
