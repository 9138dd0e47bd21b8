package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// credentialRecord is a row keyed by a uuid string primary key.
type credentialRecord interface {
	*sessionRecord | *tokenSetRecord
	primaryKey() *string
}

func (r *sessionRecord) primaryKey() *string  { return &r.ID }
func (r *tokenSetRecord) primaryKey() *string { return &r.ID }

// recordHandlers wires a record type into go-repository-bun. Lookups by
// identifier use column and the value returned by lookup.
func recordHandlers[T credentialRecord](newRecord func() T, column string, lookup func(T) string) repository.ModelHandlers[T] {
	return repository.ModelHandlers[T]{
		NewRecord: newRecord,
		GetID: func(record T) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			id, err := uuid.Parse(strings.TrimSpace(*record.primaryKey()))
			if err != nil {
				return uuid.Nil
			}
			return id
		},
		SetID: func(record T, id uuid.UUID) {
			if record != nil {
				*record.primaryKey() = id.String()
			}
		},
		GetIdentifier: func() string { return column },
		GetIdentifierValue: func(record T) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(lookup(record))
		},
	}
}

// Sessions are looked up by their one-time state value.
func sessionHandlers() repository.ModelHandlers[*sessionRecord] {
	return recordHandlers(
		func() *sessionRecord { return &sessionRecord{} },
		"state",
		func(record *sessionRecord) string { return record.State },
	)
}

func tokenSetHandlers() repository.ModelHandlers[*tokenSetRecord] {
	return recordHandlers(
		func() *tokenSetRecord { return &tokenSetRecord{} },
		"id",
		func(record *tokenSetRecord) string { return record.ID },
	)
}
