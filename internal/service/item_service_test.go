package service

import (
	"context"
	"testing"
	"time"

	"shareit/internal/events"
	"shareit/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemService_CreateItem(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	item, err := env.items.CreateItem(ctx, env.other.ID, models.Item{ID: 42, Name: "Tent", Description: "Two person tent", Available: true})
	require.NoError(t, err)
	assert.NotEqual(t, int64(42), item.ID, "id is assigned by the store")
	assert.Equal(t, env.other.ID, item.OwnerID)
	assert.Equal(t, []string{events.EventItemCreated}, env.events())

	_, err = env.items.CreateItem(ctx, 999, models.Item{Name: "Tent", Description: "Tent"})
	assertKind(t, err, models.KindUserNotFound)

	_, err = env.items.CreateItem(ctx, env.other.ID, models.Item{Name: " ", Description: "Tent"})
	assertKind(t, err, models.KindIllegalArgument)

	_, err = env.items.CreateItem(ctx, env.other.ID, models.Item{Name: "Tent"})
	assertKind(t, err, models.KindIllegalArgument)
}

func TestItemService_CreateItemForRequest(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	request, err := env.requests.CreateRequest(ctx, env.booker.ID, "Need a tent")
	require.NoError(t, err)

	item, err := env.items.CreateItem(ctx, env.owner.ID, models.Item{Name: "Tent", Description: "Two person tent", Available: true, RequestID: &request.ID})
	require.NoError(t, err)
	require.NotNil(t, item.RequestID)
	assert.Equal(t, request.ID, *item.RequestID)

	missing := int64(999)
	_, err = env.items.CreateItem(ctx, env.owner.ID, models.Item{Name: "Stove", Description: "Gas stove", RequestID: &missing})
	assertKind(t, err, models.KindRequestNotFound)
}

func TestItemService_GetItemAndAvailability(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	item, err := env.items.GetItem(ctx, env.item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Drill", item.Name)

	available, err := env.items.IsAvailable(ctx, env.item.ID)
	require.NoError(t, err)
	assert.True(t, available)

	_, err = env.items.GetItem(ctx, 999)
	assertKind(t, err, models.KindItemNotFound)
	_, err = env.items.IsAvailable(ctx, 999)
	assertKind(t, err, models.KindItemNotFound)
}

func TestItemService_UpdateItem(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()
	off := false
	name := "Hammer drill"
	blank := ""

	updated, err := env.items.UpdateItem(ctx, env.item.ID, env.owner.ID, models.ItemPatch{Available: &off})
	require.NoError(t, err)
	assert.False(t, updated.Available)
	assert.Equal(t, "Drill", updated.Name)

	updated, err = env.items.UpdateItem(ctx, env.item.ID, env.owner.ID, models.ItemPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)
	assert.False(t, updated.Available)

	_, err = env.items.UpdateItem(ctx, env.item.ID, env.booker.ID, models.ItemPatch{Name: &name})
	assertKind(t, err, models.KindWrongOwnerUpdatingItem)

	_, err = env.items.UpdateItem(ctx, env.item.ID, env.owner.ID, models.ItemPatch{})
	assertKind(t, err, models.KindIllegalArgument)

	_, err = env.items.UpdateItem(ctx, env.item.ID, env.owner.ID, models.ItemPatch{Name: &blank})
	assertKind(t, err, models.KindIllegalArgument)

	_, err = env.items.UpdateItem(ctx, 999, env.owner.ID, models.ItemPatch{Name: &name})
	assertKind(t, err, models.KindItemNotFound)

	// недоступную вещь нельзя забронировать
	_, err = env.bookings.AddBooking(ctx, env.item.ID, env.booker.ID, testNow.Add(time.Hour), testNow.Add(2*time.Hour))
	assertKind(t, err, models.KindItemNotAvailableForBooking)

	assert.Equal(t, []string{events.EventItemUpdated, events.EventItemUpdated}, env.events())
}

func TestItemService_GetItemView(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()
	booking := env.book(t, env.booker.ID, time.Hour, 2*time.Hour)

	ownerView, err := env.items.GetItemView(ctx, env.item.ID, env.owner.ID)
	require.NoError(t, err)
	assert.Nil(t, ownerView.LastBooking)
	require.NotNil(t, ownerView.NextBooking)
	assert.Equal(t, booking.ID, ownerView.NextBooking.ID)
	assert.NotNil(t, ownerView.Comments)

	bookerView, err := env.items.GetItemView(ctx, env.item.ID, env.booker.ID)
	require.NoError(t, err)
	assert.Nil(t, bookerView.LastBooking)
	assert.Nil(t, bookerView.NextBooking)

	_, err = env.items.GetItemView(ctx, 999, env.owner.ID)
	assertKind(t, err, models.KindItemNotFound)
}

func TestItemService_ListOwnerItems(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	second, err := env.items.CreateItem(ctx, env.owner.ID, models.Item{Name: "Ladder", Description: "3m ladder", Available: true})
	require.NoError(t, err)
	_, err = env.items.CreateItem(ctx, env.other.ID, models.Item{Name: "Tent", Description: "Tent", Available: true})
	require.NoError(t, err)

	views, err := env.items.ListOwnerItems(ctx, env.owner.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, env.item.ID, views[0].ID)
	assert.Equal(t, second.ID, views[1].ID)

	views, err = env.items.ListOwnerItems(ctx, env.owner.ID, 1, 1)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, second.ID, views[0].ID)

	_, err = env.items.ListOwnerItems(ctx, 999, 0, 10)
	assertKind(t, err, models.KindUserNotFound)
	_, err = env.items.ListOwnerItems(ctx, env.owner.ID, -1, 10)
	assertKind(t, err, models.KindIllegalArgument)
}

func TestItemService_SearchAvailable(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	_, err := env.items.CreateItem(ctx, env.owner.ID, models.Item{Name: "Old drill", Description: "Broken", Available: false})
	require.NoError(t, err)
	saw, err := env.items.CreateItem(ctx, env.owner.ID, models.Item{Name: "Saw", Description: "Fits any DRILL bit", Available: true})
	require.NoError(t, err)

	items, err := env.items.SearchAvailable(ctx, "dRiLl", 0, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, env.item.ID, items[0].ID)
	assert.Equal(t, saw.ID, items[1].ID)

	items, err = env.items.SearchAvailable(ctx, "   ", 0, 10)
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)

	_, err = env.items.SearchAvailable(ctx, "drill", 0, -5)
	assertKind(t, err, models.KindIllegalArgument)
}

func TestItemService_AddComment(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()
	booking := env.book(t, env.booker.ID, time.Hour, 2*time.Hour)

	_, err := env.items.AddComment(ctx, env.item.ID, env.booker.ID, "Great drill")
	assertKind(t, err, models.KindCommenterDontHaveBooking)

	_, err = env.bookings.SetApproval(ctx, booking.ID, true, env.owner.ID)
	require.NoError(t, err)

	_, err = env.items.AddComment(ctx, env.item.ID, env.booker.ID, "Great drill")
	assertKind(t, err, models.KindCommenterDontHaveBooking)

	env.bookings.now = func() time.Time { return testNow.Add(3 * time.Hour) }
	env.items.now = func() time.Time { return testNow.Add(3 * time.Hour) }

	comment, err := env.items.AddComment(ctx, env.item.ID, env.booker.ID, "  Great drill ")
	require.NoError(t, err)
	assert.Equal(t, "Great drill", comment.Text)
	assert.Equal(t, "Booker", comment.AuthorName)
	assert.Equal(t, testNow.Add(3*time.Hour), comment.Created)

	_, err = env.items.AddComment(ctx, env.item.ID, env.other.ID, "Never used it")
	assertKind(t, err, models.KindCommenterDontHaveBooking)
	_, err = env.items.AddComment(ctx, env.item.ID, env.booker.ID, " ")
	assertKind(t, err, models.KindIllegalArgument)
	_, err = env.items.AddComment(ctx, env.item.ID, 999, "text")
	assertKind(t, err, models.KindUserNotFound)
	_, err = env.items.AddComment(ctx, 999, env.booker.ID, "text")
	assertKind(t, err, models.KindItemNotFound)

	view, err := env.items.GetItemView(ctx, env.item.ID, env.owner.ID)
	require.NoError(t, err)
	require.Len(t, view.Comments, 1)
	assert.Equal(t, comment.ID, view.Comments[0].ID)
	assert.True(t, testNow.Add(3*time.Hour).Equal(view.Comments[0].Created))
	// no active bookings left, so no last/next either
	assert.Nil(t, view.LastBooking)
	assert.Nil(t, view.NextBooking)
}
