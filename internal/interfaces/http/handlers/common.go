// Package handlers implements the HTTP endpoints of the franchise service.
package handlers

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/turtacn/toda-franchise/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/toda-franchise/internal/interfaces/http/middleware"
	"github.com/turtacn/toda-franchise/pkg/errors"
	"github.com/turtacn/toda-franchise/pkg/types/common"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse = common.ErrorDetail

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// writeAppError maps err to its status through the error code table. Server
// errors are logged and masked.
func writeAppError(w http.ResponseWriter, logger logging.Logger, err error) {
	code := errors.GetCode(err)
	status := errors.HTTPStatusForCode(code)

	if status >= http.StatusInternalServerError {
		logger.Error("request failed", logging.String("code", string(code)), logging.Err(err))
		writeJSON(w, status, ErrorResponse{
			Code:    string(errors.ErrCodeInternal),
			Message: "internal server error",
		})
		return
	}

	resp := ErrorResponse{Code: string(code), Message: err.Error()}
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		resp.Message = appErr.Message
		resp.Detail = appErr.Detail
	}
	writeJSON(w, status, resp)
}

// decodeBody decodes a JSON body into dst and runs struct validation.
func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if stderrors.Is(err, io.EOF) {
			return errors.New(errors.ErrCodeBadRequest, "request body is required")
		}
		return errors.Wrap(err, errors.ErrCodeSerialization, "invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) {
		return errors.Validation("invalid request").WithCause(err)
	}
	details := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		details = append(details, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return errors.Validation("invalid request").WithDetail(strings.Join(details, "; "))
}

// pathID parses a positive int64 URL parameter.
func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Validation("invalid " + name).WithDetail(raw)
	}
	return id, nil
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Validation("invalid " + name).WithDetail(raw)
	}
	return v, nil
}

// member returns the caller. The router guarantees RequireMember ran.
func member(r *http.Request) *middleware.Member {
	m, ok := middleware.MemberFromContext(r.Context())
	if !ok {
		return &middleware.Member{}
	}
	return m
}

// ownerScope returns nil for staff, who may read any record, and the
// caller's id otherwise.
func ownerScope(r *http.Request) *int64 {
	m := member(r)
	if m.IsStaff() {
		return nil
	}
	id := m.ID
	return &id
}

func chiParam(r *http.Request, name string) string {
	return strings.TrimSpace(chi.URLParam(r, name))
}

func validationErrorf(field, raw string) error {
	return errors.Validation("invalid " + field).WithDetail(raw)
}
