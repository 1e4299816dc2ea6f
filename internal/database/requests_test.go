package database

import (
	"context"
	"testing"
	"time"

	"shareit/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createRequest(t *testing.T, db *DB, requesterID int64, text string, created time.Time) models.ItemRequest {
	t.Helper()
	r := models.ItemRequest{RequesterID: requesterID, Description: text, CreatedAt: created}
	require.NoError(t, db.CreateRequest(context.Background(), &r))
	return r
}

func requestIDs(requests []models.ItemRequest) []int64 {
	out := make([]int64, 0, len(requests))
	for _, r := range requests {
		out = append(out, r.ID)
	}
	return out
}

func TestCreateAndGetRequest(t *testing.T) {
	db := setupTestDB(t)
	f := seedFixture(t, db)
	ctx := context.Background()

	created := createRequest(t, db, f.booker.ID, "Need a tent", testNow)
	assert.NotZero(t, created.ID)

	got, err := db.GetRequestByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, f.booker.ID, got.RequesterID)
	assert.Equal(t, "Need a tent", got.Description)
	assert.True(t, testNow.Equal(got.CreatedAt))

	_, err = db.GetRequestByID(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Error(t, db.CreateRequest(ctx, &models.ItemRequest{RequesterID: 999, Description: "x"}))
}

func TestGetRequestsByRequester(t *testing.T) {
	db := setupTestDB(t)
	f := seedFixture(t, db)
	ctx := context.Background()

	older := createRequest(t, db, f.booker.ID, "Tent", testNow.Add(-2*time.Hour))
	newer := createRequest(t, db, f.booker.ID, "Stove", testNow.Add(-time.Hour))
	createRequest(t, db, f.owner.ID, "Kayak", testNow)

	own, err := db.GetRequestsByRequester(ctx, f.booker.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{newer.ID, older.ID}, requestIDs(own))

	none, err := db.GetRequestsByRequester(ctx, 999)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGetOtherUsersRequests(t *testing.T) {
	db := setupTestDB(t)
	f := seedFixture(t, db)
	ctx := context.Background()

	first := createRequest(t, db, f.owner.ID, "Tent", testNow.Add(-3*time.Hour))
	second := createRequest(t, db, f.owner.ID, "Stove", testNow.Add(-2*time.Hour))
	third := createRequest(t, db, f.owner.ID, "Kayak", testNow.Add(-time.Hour))
	createRequest(t, db, f.booker.ID, "Own request", testNow)

	all, err := db.GetOtherUsersRequests(ctx, f.booker.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{third.ID, second.ID, first.ID}, requestIDs(all))

	page, err := db.GetOtherUsersRequests(ctx, f.booker.ID, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{second.ID}, requestIDs(page))
}

func TestGetItemsByRequests(t *testing.T) {
	db := setupTestDB(t)
	f := seedFixture(t, db)
	ctx := context.Background()

	tent := createRequest(t, db, f.booker.ID, "Tent", testNow)
	stove := createRequest(t, db, f.booker.ID, "Stove", testNow)

	for _, name := range []string{"Tent 2p", "Tent 4p"} {
		item := &models.Item{OwnerID: f.owner.ID, Name: name, Description: "tent", Available: true, RequestID: &tent.ID}
		require.NoError(t, db.CreateItem(ctx, item))
	}

	grouped, err := db.GetItemsByRequests(ctx, []int64{tent.ID, stove.ID})
	require.NoError(t, err)
	require.Len(t, grouped[tent.ID], 2)
	assert.Equal(t, "Tent 2p", grouped[tent.ID][0].Name)
	assert.Empty(t, grouped[stove.ID])

	empty, err := db.GetItemsByRequests(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
