// Package sqlstore provides MySQL backed implementations of the event store
// and snapshot store contracts.
package sqlstore

import (
	"context"
	"database/sql"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/appraisehq/appraise"
)

// mysqlDupEntry is the server error for a unique key violation, used to
// translate races on (stream_id, sequence) into version conflicts.
const mysqlDupEntry = 1062

type SQLStore struct {
	writer *sql.DB
	reader *sql.DB

	eventsTableName    string
	snapshotsTableName string

	eventCols         string
	eventSelectPrefix string
}

func New(writer *sql.DB, reader *sql.DB, eventsTable, snapshotsTable string) *SQLStore {
	s := &SQLStore{
		writer:             writer,
		reader:             reader,
		eventsTableName:    eventsTable,
		snapshotsTableName: snapshotsTable,
	}

	s.eventCols = " `id`, `stream_id`, `sequence`, `type`, `object`, `created_at` "
	s.eventSelectPrefix = " select " + s.eventCols + " from " + s.eventsTableName + " where "

	return s
}

var (
	_ appraise.EventStore    = (*SQLStore)(nil)
	_ appraise.SnapshotStore = (*SQLStore)(nil)
)

func (s *SQLStore) Append(ctx context.Context, streamID uuid.UUID, expectedVersion int64, events []appraise.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin append tx")
	}
	defer tx.Rollback()

	var current sql.NullInt64
	err = tx.QueryRowContext(ctx,
		"select max(`sequence`) from "+s.eventsTableName+" where stream_id=? for update",
		streamID.String(),
	).Scan(&current)
	if err != nil {
		return errors.Wrap(err, "read stream version")
	}

	if current.Int64 != expectedVersion {
		return errors.Wrap(appraise.ErrVersionConflict, "", j.MKV{
			"stream_id":        streamID.String(),
			"expected_version": expectedVersion,
			"actual_version":   current.Int64,
		})
	}

	for _, e := range events {
		_, err := tx.ExecContext(ctx, "insert into "+s.eventsTableName+" set "+
			" stream_id=?, `sequence`=?, `type`=?, object=?, created_at=? ",
			streamID.String(),
			e.Sequence,
			e.Type,
			e.Object,
			e.CreatedAt,
		)
		if isDupEntry(err) {
			// A concurrent writer won the race between the version read and
			// the insert; the unique key on (stream_id, sequence) is the
			// final arbiter.
			return errors.Wrap(appraise.ErrVersionConflict, "", j.MKV{
				"stream_id": streamID.String(),
				"sequence":  e.Sequence,
			})
		} else if err != nil {
			return errors.Wrap(err, "failed to append event", j.MKV{
				"stream_id": streamID.String(),
				"sequence":  e.Sequence,
				"type":      e.Type,
			})
		}
	}

	return tx.Commit()
}

func isDupEntry(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDupEntry
}

func (s *SQLStore) ReadStream(ctx context.Context, streamID uuid.UUID) ([]appraise.Event, error) {
	return s.listWhere(ctx, s.reader, "stream_id=? order by `sequence` asc", streamID.String())
}

func (s *SQLStore) ReadAll(ctx context.Context, afterID int64, limit int) ([]appraise.Event, error) {
	return s.listWhere(ctx, s.reader, "id>? order by id asc limit ?", afterID, limit)
}

func (s *SQLStore) CountAll(ctx context.Context) (int64, error) {
	var count int64
	err := s.reader.QueryRowContext(ctx, "select count(*) from "+s.eventsTableName).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, "count events")
	}

	return count, nil
}

func (s *SQLStore) LatestOffset(ctx context.Context) (int64, error) {
	var offset sql.NullInt64
	err := s.reader.QueryRowContext(ctx, "select max(id) from "+s.eventsTableName).Scan(&offset)
	if err != nil {
		return 0, errors.Wrap(err, "latest offset")
	}

	return offset.Int64, nil
}

func (s *SQLStore) Upsert(ctx context.Context, docType, docID string, doc []byte) error {
	_, err := s.writer.ExecContext(ctx, "insert into "+s.snapshotsTableName+
		" (doc_type, doc_id, doc, updated_at) values (?, ?, ?, now(3)) "+
		" on duplicate key update doc=values(doc), updated_at=now(3)",
		docType,
		docID,
		doc,
	)
	if err != nil {
		return errors.Wrap(err, "upsert snapshot", j.MKV{
			"doc_type": docType,
			"doc_id":   docID,
		})
	}

	return nil
}

func (s *SQLStore) Lookup(ctx context.Context, docType, docID string) ([]byte, bool, error) {
	var doc []byte
	err := s.reader.QueryRowContext(ctx,
		"select doc from "+s.snapshotsTableName+" where doc_type=? and doc_id=?", docType, docID,
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, errors.Wrap(err, "lookup snapshot", j.MKV{
			"doc_type": docType,
			"doc_id":   docID,
		})
	}

	return doc, true, nil
}

func (s *SQLStore) DeleteAll(ctx context.Context, docType string) error {
	_, err := s.writer.ExecContext(ctx, "delete from "+s.snapshotsTableName+" where doc_type=?", docType)
	if err != nil {
		return errors.Wrap(err, "delete snapshots", j.KV("doc_type", docType))
	}

	return nil
}

func (s *SQLStore) Count(ctx context.Context, docType string) (int64, error) {
	var count int64
	err := s.reader.QueryRowContext(ctx,
		"select count(*) from "+s.snapshotsTableName+" where doc_type=?", docType,
	).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, "count snapshots", j.KV("doc_type", docType))
	}

	return count, nil
}
