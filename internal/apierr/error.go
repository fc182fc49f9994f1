// Package apierr carries the error taxonomy shared by services and handlers.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

type Code int

const (
	Unknown Code = iota
	InvalidArgument
	Unauthenticated
	PermissionDenied
	NotFound
	AlreadyExists
	Conflict
	FailedPrecondition
	Internal
)

var codeNames = map[Code]string{
	Unknown:            "unknown",
	InvalidArgument:    "invalid_argument",
	Unauthenticated:    "unauthenticated",
	PermissionDenied:   "permission_denied",
	NotFound:           "not_found",
	AlreadyExists:      "already_exists",
	Conflict:           "conflict",
	FailedPrecondition: "failed_precondition",
	Internal:           "internal",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return "unknown"
}

func (c Code) HTTPCode() int {
	switch c {
	case InvalidArgument, FailedPrecondition:
		return http.StatusBadRequest
	case Unauthenticated:
		return http.StatusUnauthorized
	case PermissionDenied:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case AlreadyExists, Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Code Code
	Msg  string // returned to the caller
	Err  error  // logged only
}

func New(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

func Wrap(code Code, msg string, err error) *Error {
	return &Error{Code: code, Msg: msg, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.Code, e.Msg)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Msg, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf reports the taxonomy code of err, or Unknown.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Unknown
}

func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// Write renders err as {"error": msg}. Errors outside the taxonomy are logged
// and reported as a generic 500.
func Write(w http.ResponseWriter, log *slog.Logger, err error) {
	var e *Error
	if !errors.As(err, &e) || e.Code == Unknown || e.Code == Internal {
		if log != nil {
			log.Error("request failed", "error", err)
		}
		writeBody(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeBody(w, e.Code.HTTPCode(), e.Msg)
}

func writeBody(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
