// Package respond writes JSON API responses and maps service errors to
// HTTP status codes.
package respond

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ahmetcdevelopment/task-management-api/internal/service"
)

// maxBodyBytes caps decoded request bodies.
const maxBodyBytes = 1 << 20

// Response is the success envelope.
type Response struct {
	Data any `json:"data"`
}

// ErrorBody is the error envelope. Err is only filled for internal errors.
type ErrorBody struct {
	Message string `json:"message"`
	Err     string `json:"error,omitempty"`
}

// JSON writes data wrapped in the success envelope.
func JSON(w http.ResponseWriter, status int, data any) {
	write(w, status, Response{Data: data})
}

// OK writes a 200 OK response.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// Created writes a 201 Created response.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, data)
}

// Message writes a 200 OK response carrying only a message.
func Message(w http.ResponseWriter, message string) {
	OK(w, map[string]string{"message": message})
}

// NoContent writes a 204 No Content response.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Status maps a service error kind to an HTTP status code.
func Status(kind service.Kind) int {
	switch kind {
	case service.KindValidation, service.KindConflict:
		return http.StatusBadRequest
	case service.KindUnauthorized:
		return http.StatusUnauthorized
	case service.KindForbidden:
		return http.StatusForbidden
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error writes err as an error envelope. Errors that are not a
// *service.Error become 500 with the underlying text in the error field.
func Error(w http.ResponseWriter, err error) {
	var se *service.Error
	if !errors.As(err, &se) || se.Kind == service.KindInternal {
		write(w, http.StatusInternalServerError, ErrorBody{
			Message: "An error occurred while processing your request",
			Err:     err.Error(),
		})
		return
	}
	write(w, Status(se.Kind), ErrorBody{Message: se.Message})
}

// Fail writes a non-internal error envelope with the given status.
func Fail(w http.ResponseWriter, status int, message string) {
	write(w, status, ErrorBody{Message: message})
}

// Decode reads a JSON request body into v. Unknown fields are ignored.
func Decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return service.Validation("request body is required")
		}
		return service.Validation("invalid request body: %s", jsonProblem(err))
	}
	return nil
}

func jsonProblem(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return fmt.Sprintf("field %q has the wrong type", typeErr.Field)
	}
	return err.Error()
}

func write(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
