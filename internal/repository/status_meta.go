package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/circle-registration/internal/database"
	"github.com/iliyamo/circle-registration/internal/model"
)

// Status rows live beside the primary record so the record itself can
// be handed out without leaking review state.
const (
	applicationMeta = "application_meta"
	ticketMeta      = "ticket_meta"
)

func insertMetaTx(ctx context.Context, tx *sql.Tx, table string, id uint64, st model.ApplicationStatus, now time.Time) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO `+table+` (record_id, status, updated_at) VALUES (?, ?, ?)`, id, st, now)
	return err
}

func getMeta(ctx context.Context, q database.Querier, table string, id uint64, notFound error) (model.StatusMeta, error) {
	var m model.StatusMeta
	err := q.QueryRowContext(ctx, `SELECT record_id, status, updated_at FROM `+table+` WHERE record_id = ?`, id).
		Scan(&m.RecordID, &m.Status, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return m, notFound
	}
	m.UpdatedAt = utc(m.UpdatedAt)
	return m, err
}

// casMeta moves a status row from one value to another in a single
// conditional statement.  It reports false when the row was not in the
// expected state.
func casMeta(ctx context.Context, q database.Querier, table string, id uint64, from, to model.ApplicationStatus, now time.Time) (bool, error) {
	res, err := q.ExecContext(ctx,
		`UPDATE `+table+` SET status = ?, updated_at = ? WHERE record_id = ? AND status = ?`,
		to, now, id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}
