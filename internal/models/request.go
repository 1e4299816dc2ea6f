package models

import "time"

// ItemRequest is a user's ask for an item nobody has listed yet. Owners answer
// it by creating an item with RequestID set.
type ItemRequest struct {
	ID          int64     `yaml:"id" json:"id"`
	RequesterID int64     `yaml:"requester_id" json:"requester_id"`
	Description string    `yaml:"description" json:"description"`
	CreatedAt   time.Time `yaml:"created_at" json:"created_at"`
}

// RequestItemView is an item as listed under the request it answers.
type RequestItemView struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Available   bool   `json:"available"`
	RequestID   int64  `json:"requestId"`
	OwnerID     int64  `json:"ownerId"`
}

type ItemRequestView struct {
	ID          int64             `json:"id"`
	Description string            `json:"description"`
	Created     time.Time         `json:"created"`
	Items       []RequestItemView `json:"items"`
}

func NewItemRequestView(r ItemRequest, items []Item) ItemRequestView {
	views := make([]RequestItemView, 0, len(items))
	for _, it := range items {
		views = append(views, RequestItemView{
			ID:          it.ID,
			Name:        it.Name,
			Description: it.Description,
			Available:   it.Available,
			RequestID:   r.ID,
			OwnerID:     it.OwnerID,
		})
	}
	return ItemRequestView{
		ID:          r.ID,
		Description: r.Description,
		Created:     r.CreatedAt,
		Items:       views,
	}
}
