package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "email atau password salah")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "akun tidak aktif")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "data tidak ditemukan")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "akses ditolak")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validasi gagal")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrStorage            = New("STORAGE_ERROR", http.StatusInternalServerError, "gagal mengakses penyimpanan data")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")

	// Workflow invariants.
	ErrIllegalTransition  = New("ILLEGAL_TRANSITION", http.StatusBadRequest, "transisi status tidak diizinkan")
	ErrAlreadyClaimed     = New("ALREADY_CLAIMED", http.StatusConflict, "pengajuan sudah diklaim oleh petugas lain")
	ErrNotAssignee        = New("NOT_ASSIGNEE", http.StatusForbidden, "Anda tidak memegang klaim atas pengajuan ini")
	ErrAdmissionViolation = New("ADMISSION_VIOLATION", http.StatusBadRequest, "pengajuan harus dikirim minimal H-1 sebelum tanggal akad nikah")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Is reports whether err carries the same error code as target.
func Is(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == target.Code
}
