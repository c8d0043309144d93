package model

import (
	"errors"
	"fmt"
	"net/http"

	"xdao.co/nftcard/card"
	"xdao.co/nftcard/ledger"
)

type ErrorCode string

const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrValidationFailed   ErrorCode = "VALIDATION_FAILED"
	ErrStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"
	ErrFetchFailed        ErrorCode = "FETCH_FAILED"
	ErrParseFailed        ErrorCode = "PARSE_FAILED"
	ErrLedgerCallFailed   ErrorCode = "LEDGER_CALL_FAILED"
	ErrNoSigner           ErrorCode = "NO_SIGNER"
	ErrNotFound           ErrorCode = "NOT_FOUND"
	ErrInternal           ErrorCode = "INTERNAL"
)

// CodedError is a stable error with a machine-readable code and a human message.
type CodedError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *CodedError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewError(code ErrorCode, message string) *CodedError {
	return &CodedError{Code: code, Message: message}
}

var kindCodes = map[card.Kind]ErrorCode{
	card.KindValidation: ErrValidationFailed,
	card.KindStorage:    ErrStorageUnavailable,
	card.KindFetch:      ErrFetchFailed,
	card.KindParse:      ErrParseFailed,
	card.KindLedger:     ErrLedgerCallFailed,
}

// FromError projects any error onto a CodedError. Structured card errors
// keep their kind; everything else is INTERNAL.
func FromError(err error) *CodedError {
	if err == nil {
		return nil
	}
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce
	}
	switch {
	case errors.Is(err, ledger.ErrNoSigner):
		return NewError(ErrNoSigner, err.Error())
	case errors.Is(err, ledger.ErrTokenNotFound):
		return NewError(ErrNotFound, err.Error())
	}
	if code, ok := kindCodes[card.KindOf(err)]; ok {
		return NewError(code, err.Error())
	}
	return NewError(ErrInternal, err.Error())
}

// HTTPStatus maps a code to the response status.
func (e *CodedError) HTTPStatus() int {
	if e == nil {
		return http.StatusOK
	}
	switch e.Code {
	case ErrInvalidRequest, ErrValidationFailed:
		return http.StatusBadRequest
	case ErrNotFound:
		return http.StatusNotFound
	case ErrStorageUnavailable, ErrFetchFailed, ErrLedgerCallFailed:
		return http.StatusBadGateway
	case ErrParseFailed:
		return http.StatusUnprocessableEntity
	case ErrNoSigner:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
