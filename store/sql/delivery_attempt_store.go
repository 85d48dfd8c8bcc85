package sqlstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-strm/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const defaultAttemptsPerPage = 25

// DeliveryAttemptStore persists one row per send attempt.
type DeliveryAttemptStore struct {
	db   *bun.DB
	repo repository.Repository[*deliveryAttemptRecord]
}

func NewDeliveryAttemptStore(db *bun.DB) (*DeliveryAttemptStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo, err := newRepository(db, "delivery attempt", func() *deliveryAttemptRecord {
		return &deliveryAttemptRecord{}
	})
	if err != nil {
		return nil, err
	}
	return &DeliveryAttemptStore{db: db, repo: repo}, nil
}

func (s *DeliveryAttemptStore) RecordAttempt(ctx context.Context, attempt core.DeliveryAttempt) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: delivery attempt store is not configured")
	}
	deliveryID := strings.TrimSpace(attempt.DeliveryID)
	if deliveryID == "" {
		return fmt.Errorf("sqlstore: delivery id is required")
	}
	if attempt.Attempt <= 0 {
		return fmt.Errorf("sqlstore: attempt number must be positive")
	}
	id := strings.TrimSpace(attempt.ID)
	if parseUUID(id) == uuid.Nil {
		id = uuid.NewString()
	}
	createdAt := attempt.CreatedAt.UTC()
	if attempt.CreatedAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.repo.Create(ctx, &deliveryAttemptRecord{
		ID:         id,
		DeliveryID: deliveryID,
		SchemaRef:  strings.TrimSpace(attempt.SchemaRef),
		Attempt:    attempt.Attempt,
		StatusCode: attempt.StatusCode,
		Refreshed:  attempt.Refreshed,
		Error:      strings.TrimSpace(attempt.Error),
		DurationMS: attempt.DurationMS,
		CreatedAt:  createdAt,
	})
	return err
}

// List returns attempts newest first.
func (s *DeliveryAttemptStore) List(ctx context.Context, filter core.DeliveryAttemptFilter) (core.DeliveryAttemptPage, error) {
	if s == nil || s.repo == nil {
		return core.DeliveryAttemptPage{}, fmt.Errorf("sqlstore: delivery attempt store is not configured")
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = defaultAttemptsPerPage
	}
	offset := (page - 1) * perPage

	selectors := []repository.SelectCriteria{
		repository.OrderBy("created_at DESC"),
		repository.OrderBy("attempt DESC"),
		repository.SelectPaginate(perPage, offset),
	}
	if deliveryID := strings.TrimSpace(filter.DeliveryID); deliveryID != "" {
		selectors = append(selectors, repository.SelectBy("delivery_id", "=", deliveryID))
	}
	if schemaRef := strings.TrimSpace(filter.SchemaRef); schemaRef != "" {
		selectors = append(selectors, repository.SelectBy("schema_ref", "=", schemaRef))
	}
	if filter.StatusCode > 0 {
		selectors = append(selectors, repository.SelectBy("status_code", "=", strconv.Itoa(filter.StatusCode)))
	}
	if filter.From != nil {
		selectors = append(selectors, repository.SelectByTimetz("created_at", ">=", filter.From.UTC()))
	}
	if filter.To != nil {
		selectors = append(selectors, repository.SelectByTimetz("created_at", "<=", filter.To.UTC()))
	}

	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return core.DeliveryAttemptPage{}, err
	}
	items := make([]core.DeliveryAttempt, 0, len(records))
	for _, record := range records {
		items = append(items, deliveryAttemptRecordToDomain(record))
	}
	hasNext := offset+len(items) < total
	nextOffset := ""
	if hasNext {
		nextOffset = strconv.Itoa(offset + len(items))
	}
	return core.DeliveryAttemptPage{
		Items:      items,
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		HasNext:    hasNext,
		NextCursor: nextOffset,
	}, nil
}

// Prune deletes attempts created before cutoff.
func (s *DeliveryAttemptStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: delivery attempt store is not configured")
	}
	res, err := s.db.NewDelete().
		Model((*deliveryAttemptRecord)(nil)).
		Where("created_at < ?", cutoff.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

func deliveryAttemptRecordToDomain(record *deliveryAttemptRecord) core.DeliveryAttempt {
	if record == nil {
		return core.DeliveryAttempt{}
	}
	return core.DeliveryAttempt{
		ID:         record.ID,
		DeliveryID: record.DeliveryID,
		SchemaRef:  record.SchemaRef,
		Attempt:    record.Attempt,
		StatusCode: record.StatusCode,
		Refreshed:  record.Refreshed,
		Error:      record.Error,
		DurationMS: record.DurationMS,
		CreatedAt:  record.CreatedAt.UTC(),
	}
}
