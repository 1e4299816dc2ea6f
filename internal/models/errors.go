package models

import (
	"errors"
	"fmt"
)

// ErrorKind names a class of expected failure. Transports map kinds to
// response codes; the name itself is part of the error body.
type ErrorKind string

const (
	KindEndBeforeOrEqualsStart     ErrorKind = "EndBeforeOrEqualsStart"
	KindCantBookOwnedItem          ErrorKind = "CantBookOwnedItem"
	KindItemNotAvailableForBooking ErrorKind = "ItemNotAvailableForBooking"
	KindTimeWindowOccupied         ErrorKind = "TimeWindowOccupied"
	KindBookingNotFound            ErrorKind = "BookingNotFound"
	KindWrongUserUpdatingBooking   ErrorKind = "WrongUserUpdatingBooking"
	KindApprovalAlreadySet         ErrorKind = "ApprovalAlreadySet"
	KindCantViewUnrelatedBooking   ErrorKind = "CantViewUnrelatedBooking"
	KindIllegalArgument            ErrorKind = "IllegalArgument"
	KindItemNotFound               ErrorKind = "ItemNotFound"
	KindUserNotFound               ErrorKind = "UserNotFound"
	KindDuplicateEmail             ErrorKind = "DuplicateEmail"
	KindWrongOwnerUpdatingItem     ErrorKind = "WrongOwnerUpdatingItem"
	KindCommenterDontHaveBooking   ErrorKind = "CommenterDontHaveBooking"
	KindRequestNotFound            ErrorKind = "RequestNotFound"
)

// DomainError is a typed, terminal failure of a service operation.
type DomainError struct {
	Kind    ErrorKind
	Message string
}

func (e *DomainError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

// Is matches any DomainError of the same kind, so callers can compare against
// the sentinels below regardless of the message.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Kind == e.Kind
}

func NewError(kind ErrorKind, format string, args ...any) *DomainError {
	return &DomainError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrEndBeforeOrEqualsStart     = &DomainError{Kind: KindEndBeforeOrEqualsStart}
	ErrCantBookOwnedItem          = &DomainError{Kind: KindCantBookOwnedItem}
	ErrItemNotAvailableForBooking = &DomainError{Kind: KindItemNotAvailableForBooking}
	ErrTimeWindowOccupied         = &DomainError{Kind: KindTimeWindowOccupied}
	ErrBookingNotFound            = &DomainError{Kind: KindBookingNotFound}
	ErrWrongUserUpdatingBooking   = &DomainError{Kind: KindWrongUserUpdatingBooking}
	ErrApprovalAlreadySet         = &DomainError{Kind: KindApprovalAlreadySet}
	ErrCantViewUnrelatedBooking   = &DomainError{Kind: KindCantViewUnrelatedBooking}
	ErrIllegalArgument            = &DomainError{Kind: KindIllegalArgument}
	ErrItemNotFound               = &DomainError{Kind: KindItemNotFound}
	ErrUserNotFound               = &DomainError{Kind: KindUserNotFound}
	ErrDuplicateEmail             = &DomainError{Kind: KindDuplicateEmail}
	ErrWrongOwnerUpdatingItem     = &DomainError{Kind: KindWrongOwnerUpdatingItem}
	ErrCommenterDontHaveBooking   = &DomainError{Kind: KindCommenterDontHaveBooking}
	ErrRequestNotFound            = &DomainError{Kind: KindRequestNotFound}
)

// KindOf extracts the kind of a domain error anywhere in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return "", false
}
