package models

import "time"

type UserRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name,omitempty"`
}

type ItemRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// BookingView is the full booking representation returned to clients.
type BookingView struct {
	ID     int64     `json:"id"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Status Status    `json:"status"`
	Booker UserRef   `json:"booker"`
	Item   ItemRef   `json:"item"`
}

// ShortBookingView is what item views expose about their last/next booking.
type ShortBookingView struct {
	ID       int64 `json:"id"`
	BookerID int64 `json:"bookerId"`
}

type CommentView struct {
	ID         int64     `json:"id"`
	Text       string    `json:"text"`
	AuthorName string    `json:"authorName"`
	Created    time.Time `json:"created"`
}

type ItemView struct {
	ID          int64             `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Available   bool              `json:"available"`
	RequestID   *int64            `json:"requestId,omitempty"`
	LastBooking *ShortBookingView `json:"lastBooking"`
	NextBooking *ShortBookingView `json:"nextBooking"`
	Comments    []CommentView     `json:"comments"`
}

func NewBookingView(b Booking, booker User, item Item, status Status) BookingView {
	return BookingView{
		ID:     b.ID,
		Start:  b.Start,
		End:    b.End,
		Status: status,
		Booker: UserRef{ID: booker.ID, Name: booker.Name},
		Item:   ItemRef{ID: item.ID, Name: item.Name},
	}
}

// NewShortBookingView returns nil for a nil booking.
func NewShortBookingView(b *Booking) *ShortBookingView {
	if b == nil {
		return nil
	}
	return &ShortBookingView{ID: b.ID, BookerID: b.BookerID}
}

func NewCommentView(c Comment, author User) CommentView {
	return CommentView{
		ID:         c.ID,
		Text:       c.Text,
		AuthorName: author.Name,
		Created:    c.CreatedAt,
	}
}

func NewItemView(item Item, last, next *ShortBookingView, comments []CommentView) ItemView {
	if comments == nil {
		comments = []CommentView{}
	}
	return ItemView{
		ID:          item.ID,
		Name:        item.Name,
		Description: item.Description,
		Available:   item.Available,
		RequestID:   item.RequestID,
		LastBooking: last,
		NextBooking: next,
		Comments:    comments,
	}
}
