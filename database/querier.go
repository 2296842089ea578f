package database

import (
	"github.com/google/uuid"
	"github.com/siherrmann/securerag/helper"
)

// querier returns tx when the caller runs inside a transaction and the pool otherwise.
func querier(db *helper.Database, tx helper.Querier) helper.Querier {
	if tx != nil {
		return tx
	}
	return db.Instance
}

// uuidStrings converts ids for pq.Array, which does not encode uuid.UUID elements.
func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

func parseUUIDs(raw []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, helper.NewError("parse uuid", err)
		}
		out = append(out, id)
	}
	return out, nil
}
