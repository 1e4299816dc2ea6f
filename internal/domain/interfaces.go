package domain

import (
	"context"
	"time"

	"shareit/internal/models"
)

// BookingCheck runs inside the insert transaction against the item's active
// bookings as seen by that transaction. A non-nil error aborts the insert.
type BookingCheck func(active []models.Booking) error

type BookingRepository interface {
	CreateBookingChecked(ctx context.Context, booking *models.Booking, now time.Time, check BookingCheck) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	GetActiveBookingsByItem(ctx context.Context, itemID int64, now time.Time) ([]models.Booking, error)
	GetLastPastBookingByItem(ctx context.Context, itemID int64, now time.Time) (*models.Booking, error)
	SetApprovalIfUnset(ctx context.Context, id int64, approved bool) (bool, error)
	QueryBookings(ctx context.Context, filter models.BookingFilter, status models.Status, now time.Time) ([]models.Booking, error)
	HasStartedApprovedBooking(ctx context.Context, bookerID, itemID int64, now time.Time) (bool, error)
}

type ItemRepository interface {
	CreateItem(ctx context.Context, item *models.Item) error
	GetItemByID(ctx context.Context, id int64) (*models.Item, error)
	UpdateItem(ctx context.Context, item *models.Item) error
	GetItemsByOwner(ctx context.Context, ownerID int64, offset, limit int) ([]models.Item, error)
	SearchAvailableItems(ctx context.Context, text string, offset, limit int) ([]models.Item, error)
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	DeleteUser(ctx context.Context, id int64) error
	GetAllUsers(ctx context.Context) ([]models.User, error)
	UserExists(ctx context.Context, id int64) (bool, error)
}

type CommentRepository interface {
	CreateComment(ctx context.Context, comment *models.Comment) error
	GetCommentsByItem(ctx context.Context, itemID int64) ([]models.Comment, error)
}

type RequestRepository interface {
	CreateRequest(ctx context.Context, request *models.ItemRequest) error
	GetRequestByID(ctx context.Context, id int64) (*models.ItemRequest, error)
	GetRequestsByRequester(ctx context.Context, requesterID int64) ([]models.ItemRequest, error)
	GetOtherUsersRequests(ctx context.Context, requesterID int64, offset, limit int) ([]models.ItemRequest, error)
	GetItemsByRequests(ctx context.Context, requestIDs []int64) (map[int64][]models.Item, error)
}

// Repository is the full store the services run against.
type Repository interface {
	BookingRepository
	ItemRepository
	UserRepository
	CommentRepository
	RequestRepository
}

// Unlock releases a lock taken by ItemLocker.
type Unlock func(ctx context.Context) error

type ItemLocker interface {
	LockItem(ctx context.Context, itemID int64, ttl time.Duration) (Unlock, error)
}

type RateLimiter interface {
	CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error)
}

// Coordinator is the shared-state backend: per-item locks and per-user limits.
type Coordinator interface {
	ItemLocker
	RateLimiter
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type BookingService interface {
	AddBooking(ctx context.Context, itemID, bookerID int64, start, end time.Time) (*models.BookingView, error)
	GetBooking(ctx context.Context, id, requesterID int64) (*models.BookingView, error)
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.BookingView, error)
	SetApproval(ctx context.Context, id int64, approved bool, requesterID int64) (*models.BookingView, error)
	LastAndNext(ctx context.Context, item models.Item, requesterID int64) (*models.ShortBookingView, *models.ShortBookingView, error)
	HasStartedApprovedBooking(ctx context.Context, bookerID, itemID int64) (bool, error)
	// ListBookingRecords returns the raw rows behind ListBookings, for export.
	ListBookingRecords(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error)
}

type ItemService interface {
	CreateItem(ctx context.Context, ownerID int64, item models.Item) (*models.Item, error)
	GetItem(ctx context.Context, id int64) (*models.Item, error)
	IsAvailable(ctx context.Context, itemID int64) (bool, error)
	GetItemView(ctx context.Context, itemID, requesterID int64) (*models.ItemView, error)
	ListOwnerItems(ctx context.Context, ownerID int64, from, size int) ([]models.ItemView, error)
	UpdateItem(ctx context.Context, itemID, ownerID int64, patch models.ItemPatch) (*models.Item, error)
	SearchAvailable(ctx context.Context, text string, from, size int) ([]models.Item, error)
	AddComment(ctx context.Context, itemID, authorID int64, text string) (*models.CommentView, error)
}

type UserService interface {
	CreateUser(ctx context.Context, user models.User) (*models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	UpdateUser(ctx context.Context, id int64, patch models.UserPatch) (*models.User, error)
	DeleteUser(ctx context.Context, id int64) error
	ListUsers(ctx context.Context) ([]models.User, error)
	UserExists(ctx context.Context, id int64) (bool, error)
}

type RequestService interface {
	CreateRequest(ctx context.Context, requesterID int64, description string) (*models.ItemRequestView, error)
	GetRequest(ctx context.Context, id, requesterID int64) (*models.ItemRequestView, error)
	ListOwnRequests(ctx context.Context, requesterID int64) ([]models.ItemRequestView, error)
	ListOtherUsersRequests(ctx context.Context, requesterID int64, from, size int) ([]models.ItemRequestView, error)
}
