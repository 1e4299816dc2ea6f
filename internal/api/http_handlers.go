package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"shareit/internal/export"
	"shareit/internal/models"
	"shareit/internal/schedule"

	"github.com/rs/zerolog"
)

const (
	defaultFrom = 0
	defaultSize = 10
	// exportLimit ограничивает выгрузку одним листом
	exportLimit = 10000
)

type bookingRequest struct {
	ItemID int64     `json:"itemId"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

type itemRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Available   *bool  `json:"available"`
	RequestID   *int64 `json:"requestId"`
}

type userRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type commentRequest struct {
	Text string `json:"text"`
}

type itemRequestRequest struct {
	Description string `json:"description"`
}

// Bookings

func (s *HTTPServer) handleAddBooking(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var req bookingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if req.ItemID == 0 || req.Start.IsZero() || req.End.IsZero() {
		writeServiceError(w, r, illegalArgument("itemId, start and end are required"))
		return
	}

	view, err := s.svc.Bookings.AddBooking(r.Context(), req.ItemID, userID, req.Start, req.End)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	bookingID, err := pathID(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	view, err := s.svc.Bookings.GetBooking(r.Context(), bookingID, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleSetApproval(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	bookingID, err := pathID(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	approved, err := strconv.ParseBool(r.URL.Query().Get("approved"))
	if err != nil {
		writeServiceError(w, r, illegalArgument("approved must be true or false"))
		return
	}

	view, err := s.svc.Bookings.SetApproval(r.Context(), bookingID, approved, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleListBookerBookings(w http.ResponseWriter, r *http.Request) {
	s.listBookings(w, r, false)
}

func (s *HTTPServer) handleListOwnerBookings(w http.ResponseWriter, r *http.Request) {
	s.listBookings(w, r, true)
}

func (s *HTTPServer) listBookings(w http.ResponseWriter, r *http.Request, byOwner bool) {
	filter, err := bookingFilter(r, byOwner)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	from, size, err := pageParams(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	filter.Offset, filter.Limit = from, size

	views, err := s.svc.Bookings.ListBookings(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *HTTPServer) handleExportOwnerBookings(w http.ResponseWriter, r *http.Request) {
	filter, err := bookingFilter(r, true)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	filter.Limit = exportLimit

	views, err := s.svc.Bookings.ListBookings(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	// фильтр уже проверен сервисом
	status, _ := schedule.ParseStatus(filter.State)

	var buf bytes.Buffer
	if err := export.BookingsXLSX(&buf, views, status); err != nil {
		writeServiceError(w, r, fmt.Errorf("export bookings: %w", err))
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="bookings_%s.xlsx"`, strings.ToLower(status.String())))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("export write failed")
	}
}

// Items

func (s *HTTPServer) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var req itemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if req.Available == nil {
		writeServiceError(w, r, illegalArgument("available is required"))
		return
	}

	item, err := s.svc.Items.CreateItem(r.Context(), userID, models.Item{
		Name:        req.Name,
		Description: req.Description,
		Available:   *req.Available,
		RequestID:   req.RequestID,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *HTTPServer) handleGetItem(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	itemID, err := pathID(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	view, err := s.svc.Items.GetItemView(r.Context(), itemID, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleListOwnerItems(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	from, size, err := pageParams(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	views, err := s.svc.Items.ListOwnerItems(r.Context(), userID, from, size)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *HTTPServer) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	itemID, err := pathID(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var patch models.ItemPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeServiceError(w, r, err)
		return
	}

	item, err := s.svc.Items.UpdateItem(r.Context(), itemID, userID, patch)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *HTTPServer) handleSearchItems(w http.ResponseWriter, r *http.Request) {
	if _, err := callerID(r); err != nil {
		writeServiceError(w, r, err)
		return
	}
	from, size, err := pageParams(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	items, err := s.svc.Items.SearchAvailable(r.Context(), r.URL.Query().Get("text"), from, size)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *HTTPServer) handleAddComment(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	itemID, err := pathID(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var req commentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	comment, err := s.svc.Items.AddComment(r.Context(), itemID, userID, req.Text)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comment)
}

// Requests

func (s *HTTPServer) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var req itemRequestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	view, err := s.svc.Requests.CreateRequest(r.Context(), userID, req.Description)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *HTTPServer) handleListOwnRequests(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	views, err := s.svc.Requests.ListOwnRequests(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// handleListOtherRequests pages like the other lists, but without size it
// returns everything.
func (s *HTTPServer) handleListOtherRequests(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	from, size, err := pageParams(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if r.URL.Query().Get("size") == "" {
		size = 0
	}

	views, err := s.svc.Requests.ListOtherUsersRequests(r.Context(), userID, from, size)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *HTTPServer) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	requestID, err := pathID(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	view, err := s.svc.Requests.GetRequest(r.Context(), requestID, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Users

func (s *HTTPServer) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	user, err := s.svc.Users.CreateUser(r.Context(), models.User{Name: req.Name, Email: req.Email})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *HTTPServer) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.svc.Users.ListUsers(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *HTTPServer) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	user, err := s.svc.Users.GetUser(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *HTTPServer) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var patch models.UserPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeServiceError(w, r, err)
		return
	}

	user, err := s.svc.Users.UpdateUser(r.Context(), id, patch)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *HTTPServer) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := s.svc.Users.DeleteUser(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.svc.Health != nil {
		if err := s.svc.Health.HealthCheck(r.Context()); err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// helpers

func callerID(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.Header.Get(models.SharerUserHeader))
	if raw == "" {
		return 0, illegalArgument("missing %s header", models.SharerUserHeader)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, illegalArgument("invalid %s header: %q", models.SharerUserHeader, raw)
	}
	return id, nil
}

func pathID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, illegalArgument("invalid id: %q", raw)
	}
	return id, nil
}

// pageParams reads from/size; missing values fall back to 0 and 10.
func pageParams(r *http.Request) (int, int, error) {
	q := r.URL.Query()
	from, size := defaultFrom, defaultSize

	if raw := q.Get("from"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return 0, 0, illegalArgument("from must be a non-negative integer, got %q", raw)
		}
		from = v
	}
	if raw := q.Get("size"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return 0, 0, illegalArgument("size must be a positive integer, got %q", raw)
		}
		size = v
	}
	return from, size, nil
}

func bookingFilter(r *http.Request, byOwner bool) (models.BookingFilter, error) {
	userID, err := callerID(r)
	if err != nil {
		return models.BookingFilter{}, err
	}
	filter := models.BookingFilter{State: r.URL.Query().Get("state")}
	if byOwner {
		filter.OwnerID = userID
	} else {
		filter.BookerID = userID
	}
	return filter, nil
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return illegalArgument("request body is empty")
		}
		return illegalArgument("invalid request body: %v", err)
	}
	return nil
}
