package sqlstore

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/luno/jettison/errors"

	"github.com/appraisehq/appraise"
)

// listWhere queries the events table with the provided where clause, then
// scans and returns all the rows.
func (s *SQLStore) listWhere(ctx context.Context, dbc *sql.DB, where string, args ...any) ([]appraise.Event, error) {
	rows, err := dbc.QueryContext(ctx, s.eventSelectPrefix+where, args...)
	if err != nil {
		return nil, errors.Wrap(err, "listWhere")
	}
	defer rows.Close()

	var res []appraise.Event
	for rows.Next() {
		e, err := eventScan(rows)
		if err != nil {
			return nil, err
		}

		res = append(res, *e)
	}

	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	return res, nil
}

func eventScan(row row) (*appraise.Event, error) {
	var (
		e        appraise.Event
		streamID string
	)
	err := row.Scan(
		&e.ID,
		&streamID,
		&e.Sequence,
		&e.Type,
		&e.Object,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, "eventScan")
	}

	sid, err := uuid.Parse(streamID)
	if err != nil {
		return nil, errors.Wrap(err, "parse stream id")
	}
	e.StreamID = sid

	return &e, nil
}

// row is a common interface for *sql.Rows and *sql.Row.
type row interface {
	Scan(dest ...any) error
}
