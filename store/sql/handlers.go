package sqlstore

import (
	"fmt"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// uuidKeyed records carry a string uuid in their id column.
type uuidKeyed interface {
	recordID() string
	setRecordID(id string)
}

func uuidHandlers[T uuidKeyed](newRecord func() T) repository.ModelHandlers[T] {
	return repository.ModelHandlers[T]{
		NewRecord: newRecord,
		GetID: func(record T) uuid.UUID {
			return parseUUID(record.recordID())
		},
		SetID: func(record T, id uuid.UUID) {
			record.setRecordID(id.String())
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record T) string {
			return strings.TrimSpace(record.recordID())
		},
	}
}

// newRepository builds a go-repository-bun repository and checks its wiring.
func newRepository[T uuidKeyed](db *bun.DB, name string, newRecord func() T) (repository.Repository[T], error) {
	repo := repository.NewRepository[T](db, uuidHandlers(newRecord))
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid %s repository wiring: %w", name, err)
		}
	}
	return repo, nil
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
