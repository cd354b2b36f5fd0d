package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/models"
	"github.com/ternarybob/jobpilot/internal/platforms"
)

var validate = validator.New()

// maxBodyBytes bounds request bodies
const maxBodyBytes = 1 << 20

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// StatusFor maps a service error to an HTTP status
func StatusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrSessionExpired):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrUnknownPlatform), errors.Is(err, common.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrProfileNotFound):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrNoCapture), errors.Is(err, common.ErrInvalidStatus):
		return http.StatusConflict
	case errors.Is(err, common.ErrResource):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError logs err and writes the mapped status. Internal errors
// are reported with a generic message.
func writeServiceError(w http.ResponseWriter, logger arbor.ILogger, err error, msg string) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Msg(msg)
		if status == http.StatusInternalServerError {
			WriteError(w, status, msg)
			return
		}
	} else {
		logger.Debug().Err(err).Int("status", status).Msg(msg)
	}
	WriteError(w, status, err.Error())
}

// DecodeJSON reads a JSON body into dst and validates its struct tags.
// An empty body leaves dst at its zero value.
func DecodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// platformParam resolves the {platform} path value, writing a 404 when it is
// not a supported platform
func platformParam(w http.ResponseWriter, r *http.Request) (models.Platform, bool) {
	profile, err := platforms.Lookup(r.PathValue("platform"))
	if err != nil {
		WriteError(w, StatusFor(err), err.Error())
		return "", false
	}
	return profile.Platform, true
}

// PaginationResponse contains pagination metadata for API responses.
type PaginationResponse struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

// GetPaginationParams extracts pagination parameters from query string.
// Returns page (0-indexed) and pageSize (default 10, max 100).
func GetPaginationParams(r *http.Request) (page, pageSize int) {
	page = 0
	pageSize = 10

	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p >= 0 {
			page = p
		}
	}

	if pageSizeStr := r.URL.Query().Get("pageSize"); pageSizeStr != "" {
		if ps, err := strconv.Atoi(pageSizeStr); err == nil && ps > 0 && ps <= 100 {
			pageSize = ps
		}
	}

	return page, pageSize
}

// Paginate applies pagination to a slice of data.
func Paginate[T any](data []T, page, pageSize int) ([]T, PaginationResponse) {
	totalItems := len(data)
	pagination := PaginationResponse{
		Page:       page,
		PageSize:   pageSize,
		TotalItems: totalItems,
		TotalPages: int(math.Ceil(float64(totalItems) / float64(pageSize))),
	}

	start := page * pageSize
	if start >= totalItems {
		return []T{}, pagination
	}
	end := start + pageSize
	if end > totalItems {
		end = totalItems
	}
	return data[start:end], pagination
}

// parseBool reads an optional boolean query parameter
func parseBool(r *http.Request, name string) (*bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return &v, nil
}
