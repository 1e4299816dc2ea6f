package api

import (
	"encoding/json"
	"net/http"

	"shareit/internal/models"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const internalErrorMessage = "internal error"

// errorBody is the JSON shape of every error response.
type errorBody struct {
	ErrorName string `json:"errorName"`
	Error     string `json:"error"`
}

func httpStatus(kind models.ErrorKind) int {
	switch kind {
	case models.KindEndBeforeOrEqualsStart,
		models.KindIllegalArgument,
		models.KindItemNotAvailableForBooking,
		models.KindApprovalAlreadySet,
		models.KindCommenterDontHaveBooking:
		return http.StatusBadRequest
	case models.KindWrongOwnerUpdatingItem:
		return http.StatusForbidden
	case models.KindItemNotFound,
		models.KindUserNotFound,
		models.KindBookingNotFound,
		models.KindRequestNotFound,
		models.KindCantViewUnrelatedBooking,
		models.KindWrongUserUpdatingBooking,
		models.KindCantBookOwnedItem:
		return http.StatusNotFound
	case models.KindDuplicateEmail,
		models.KindTimeWindowOccupied:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func grpcCode(kind models.ErrorKind) codes.Code {
	switch httpStatus(kind) {
	case http.StatusBadRequest:
		return codes.InvalidArgument
	case http.StatusForbidden:
		return codes.PermissionDenied
	case http.StatusNotFound:
		return codes.NotFound
	case http.StatusConflict:
		return codes.AlreadyExists
	default:
		return codes.Internal
	}
}

// rpcError converts a service error to a gRPC status. Unknown errors are
// logged and hidden behind a generic message.
func rpcError(logger *zerolog.Logger, err error) error {
	if kind, ok := models.KindOf(err); ok {
		return status.Error(grpcCode(kind), err.Error())
	}
	logger.Error().Err(err).Msg("grpc handler error")
	return status.Error(codes.Internal, internalErrorMessage)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, name, message string) {
	writeJSON(w, statusCode, errorBody{ErrorName: name, Error: message})
}

// writeServiceError maps a service error to its response. Anything that is
// not a domain error is a 500 and gets logged with the request logger.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if kind, ok := models.KindOf(err); ok {
		writeError(w, httpStatus(kind), string(kind), err.Error())
		return
	}
	zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "InternalError", internalErrorMessage)
}

func illegalArgument(format string, args ...any) error {
	return models.NewError(models.KindIllegalArgument, format, args...)
}
