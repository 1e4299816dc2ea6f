package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"shareit/internal/models"
)

const requestColumns = `id, requester_id, description, created_at`

func scanRequests(rows *sql.Rows) ([]models.ItemRequest, error) {
	defer rows.Close()

	var requests []models.ItemRequest
	for rows.Next() {
		var r models.ItemRequest
		if err := rows.Scan(&r.ID, &r.RequesterID, &r.Description, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		requests = append(requests, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate requests: %w", err)
	}
	return requests, nil
}

// CreateRequest stores the request with request.CreatedAt; a zero value means
// the current time.
func (db *DB) CreateRequest(ctx context.Context, request *models.ItemRequest) error {
	query := `INSERT INTO requests (requester_id, description, created_at) VALUES (?, ?, ?)`
	created := request.CreatedAt.UTC()
	if request.CreatedAt.IsZero() {
		created = time.Now().UTC()
	}
	result, err := db.ExecContext(ctx, query, request.RequesterID, request.Description, created)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	request.ID = id
	request.CreatedAt = created
	return nil
}

func (db *DB) GetRequestByID(ctx context.Context, id int64) (*models.ItemRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = ?`
	var r models.ItemRequest
	err := db.QueryRowContext(ctx, query, id).Scan(&r.ID, &r.RequesterID, &r.Description, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return &r, nil
}

// GetRequestsByRequester returns the user's own requests, newest first.
func (db *DB) GetRequestsByRequester(ctx context.Context, requesterID int64) ([]models.ItemRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM requests
              WHERE requester_id = ? ORDER BY created_at DESC, id DESC`
	rows, err := db.QueryContext(ctx, query, requesterID)
	if err != nil {
		return nil, fmt.Errorf("failed to get own requests: %w", err)
	}
	return scanRequests(rows)
}

// GetOtherUsersRequests pages through requests made by anyone but the
// given user, newest first.
func (db *DB) GetOtherUsersRequests(ctx context.Context, requesterID int64, offset, limit int) ([]models.ItemRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM requests
              WHERE requester_id <> ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := db.QueryContext(ctx, query, requesterID, sqlLimit(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get other users requests: %w", err)
	}
	return scanRequests(rows)
}

// GetItemsByRequests groups the items that answer the given requests by
// request id.
func (db *DB) GetItemsByRequests(ctx context.Context, requestIDs []int64) (map[int64][]models.Item, error) {
	result := make(map[int64][]models.Item, len(requestIDs))
	if len(requestIDs) == 0 {
		return result, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(requestIDs)), ",")
	args := make([]any, 0, len(requestIDs))
	for _, id := range requestIDs {
		args = append(args, id)
	}

	query := `SELECT ` + itemColumns + ` FROM items WHERE request_id IN (` + placeholders + `) ORDER BY id ASC`
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get request items: %w", err)
	}
	items, err := scanItems(rows)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		result[*item.RequestID] = append(result[*item.RequestID], item)
	}
	return result, nil
}
