package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"shareit/internal/domain"
	"shareit/internal/models"
)

const bookingColumns = `b.id, b.item_id, b.booker_id, b.start_time, b.end_time, b.approved, b.created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (models.Booking, error) {
	var (
		b        models.Booking
		approved sql.NullBool
	)
	if err := row.Scan(&b.ID, &b.ItemID, &b.BookerID, &b.Start, &b.End, &approved, &b.CreatedAt); err != nil {
		return b, err
	}
	if approved.Valid {
		b.Approved = models.BoolPtr(approved.Bool)
	}
	b.Start = b.Start.UTC()
	b.End = b.End.UTC()
	return b, nil
}

func scanBookings(rows *sql.Rows) ([]models.Booking, error) {
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	return bookings, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func activeBookingsByItem(ctx context.Context, q queryer, itemID int64, now time.Time) ([]models.Booking, error) {
	query := `SELECT ` + bookingColumns + `
              FROM bookings b
              WHERE b.item_id = ? AND (b.approved IS NULL OR b.approved = 1) AND b.end_time > ?
              ORDER BY b.start_time ASC, b.id ASC`
	rows, err := q.QueryContext(ctx, query, itemID, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to get active bookings: %w", err)
	}
	return scanBookings(rows)
}

// CreateBookingChecked inserts booking inside one IMMEDIATE transaction after
// check accepted the item's active bookings read by that same transaction.
// The error returned by check is passed through unchanged.
func (db *DB) CreateBookingChecked(ctx context.Context, booking *models.Booking, now time.Time, check domain.BookingCheck) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// 1. Re-read the schedule inside the transaction
	active, err := activeBookingsByItem(ctx, tx, booking.ItemID, now)
	if err != nil {
		return err
	}
	if check != nil {
		if err := check(active); err != nil {
			return err
		}
	}

	// 2. Insert with approval unset
	query := `INSERT INTO bookings (item_id, booker_id, start_time, end_time, approved, created_at)
              VALUES (?, ?, ?, ?, NULL, ?)`
	created := now.UTC()
	result, err := tx.ExecContext(ctx, query,
		booking.ItemID,
		booking.BookerID,
		booking.Start.UTC(),
		booking.End.UTC(),
		created,
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking in tx: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id in tx: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit booking: %w", err)
	}

	booking.ID = id
	booking.Start = booking.Start.UTC()
	booking.End = booking.End.UTC()
	booking.Approved = nil
	booking.CreatedAt = created
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings b WHERE b.id = ?`
	b, err := scanBooking(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &b, nil
}

// GetActiveBookingsByItem returns the not-rejected bookings of an item that
// end after now, earliest start first.
func (db *DB) GetActiveBookingsByItem(ctx context.Context, itemID int64, now time.Time) ([]models.Booking, error) {
	return activeBookingsByItem(ctx, db, itemID, now)
}

// GetLastPastBookingByItem returns the finished booking with the latest start,
// regardless of approval, or nil.
func (db *DB) GetLastPastBookingByItem(ctx context.Context, itemID int64, now time.Time) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + `
              FROM bookings b
              WHERE b.item_id = ? AND b.end_time < ?
              ORDER BY b.start_time DESC, b.id DESC
              LIMIT 1`
	b, err := scanBooking(db.QueryRowContext(ctx, query, itemID, now.UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last past booking: %w", err)
	}
	return &b, nil
}

// SetApprovalIfUnset records the owner's decision only while the booking is
// still undecided. It reports false when the row was not in that state.
func (db *DB) SetApprovalIfUnset(ctx context.Context, id int64, approved bool) (bool, error) {
	query := `UPDATE bookings SET approved = ? WHERE id = ? AND approved IS NULL`
	result, err := db.ExecContext(ctx, query, approved, id)
	if err != nil {
		return false, fmt.Errorf("failed to set booking approval: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return rows == 1, nil
}

// QueryBookings lists bookings of a booker or of an owner's items, filtered by
// status, newest start first, paginated by filter.Offset/filter.Limit.
func (db *DB) QueryBookings(ctx context.Context, filter models.BookingFilter, status models.Status, now time.Time) ([]models.Booking, error) {
	var (
		conds []string
		args  []any
	)

	if filter.BookerID != 0 {
		conds = append(conds, "b.booker_id = ?")
		args = append(args, filter.BookerID)
	}
	if filter.OwnerID != 0 {
		conds = append(conds, "i.owner_id = ?")
		args = append(args, filter.OwnerID)
	}

	now = now.UTC()
	switch status {
	case models.StatusAll:
	case models.StatusWaiting:
		conds = append(conds, "b.approved IS NULL")
	case models.StatusRejected:
		conds = append(conds, "b.approved = 0")
	case models.StatusPast:
		conds = append(conds, "b.approved = 1", "b.end_time < ?")
		args = append(args, now)
	case models.StatusFuture:
		conds = append(conds, "b.start_time > ?")
		args = append(args, now)
	case models.StatusCurrent:
		conds = append(conds, "b.start_time < ?", "b.end_time > ?")
		args = append(args, now, now)
	default:
		return nil, fmt.Errorf("unsupported booking status filter %q", status)
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings b JOIN items i ON i.id = b.item_id`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY b.start_time DESC, b.id DESC"

	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	} else if filter.Offset > 0 {
		query += " LIMIT -1 OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	return scanBookings(rows)
}

// HasStartedApprovedBooking reports whether the booker holds an approved
// booking of the item that has already started.
func (db *DB) HasStartedApprovedBooking(ctx context.Context, bookerID, itemID int64, now time.Time) (bool, error) {
	query := `SELECT EXISTS (
                SELECT 1 FROM bookings
                WHERE booker_id = ? AND item_id = ? AND approved = 1 AND start_time < ?
              )`
	var exists bool
	if err := db.QueryRowContext(ctx, query, bookerID, itemID, now.UTC()).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check booking history: %w", err)
	}
	return exists, nil
}
