package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/sigagent/docrouter-go/internal/bulk"
	"github.com/sigagent/docrouter-go/internal/docrouter"
	"github.com/sigagent/docrouter-go/internal/domain"
)

// Pagination and validation constants.
const (
	defaultPageSize    = 50
	maxPageSize        = 100
	maxRequestBodySize = 1 << 20 // 1 MB limit for request bodies
)

var validate = validator.New()

// startRunRequest is the JSON request body for starting a bulk run.
type startRunRequest struct {
	Kind           string            `json:"kind" validate:"required,oneof=download llm"`
	Mode           string            `json:"mode,omitempty" validate:"omitempty,oneof=all missing outdated"`
	TagID          string            `json:"tag_id,omitempty" validate:"required_if=Kind llm"`
	NameSearch     string            `json:"name_search,omitempty" validate:"omitempty,max=1000"`
	TagIDs         []string          `json:"tag_ids,omitempty" validate:"omitempty,max=50"`
	MetadataSearch map[string]string `json:"metadata_search,omitempty" validate:"omitempty,max=20"`
	FileType       string            `json:"file_type,omitempty" validate:"omitempty,max=100"`
}

// startBulkRun handles POST /bulk-runs. It validates the request, records a
// pending run, and kicks off the analysis and execution phases in the
// background.
func (s *Server) startBulkRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := orgIDFromContext(ctx)

	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req startRunRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	if err := validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid field %s: failed %s validation", fieldErrs[0].Field(), fieldErrs[0].Tag()))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	run, err := s.service.StartRun(ctx, bulk.StartParams{
		OrgID: orgID,
		Kind:  domain.RunKind(req.Kind),
		Mode:  domain.ExecutionMode(req.Mode),
		TagID: req.TagID,
		Filters: docrouter.DocumentFilters{
			NameSearch:     req.NameSearch,
			TagIDs:         req.TagIDs,
			MetadataSearch: req.MetadataSearch,
		},
		FileType: req.FileType,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, domainRunToResponse(run))
}

// getBulkRun handles GET /bulk-runs/{runID}. In-flight runs are served with
// live progress; finished runs come from the store.
func (s *Server) getBulkRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	runID, ok := parseUUID(w, chi.URLParam(r, "runID"), "run_id")
	if !ok {
		return
	}

	run, groups, err := s.service.GetRun(ctx, runID.String())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, domainRunToDetailResponse(run, groups))
}

// listBulkRuns handles GET /bulk-runs. It returns a paginated list of run
// summaries for the organization, newest first.
func (s *Server) listBulkRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := orgIDFromContext(ctx)

	limit, offset := parsePaginationParams(r)

	runs, err := s.service.ListRuns(ctx, orgID, limit, offset)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	summaries := make([]runResponse, len(runs))
	for i := range runs {
		summaries[i] = domainRunToResponse(&runs[i])
	}

	writeJSON(w, http.StatusOK, listRunsResponse{
		Runs:   summaries,
		Limit:  limit,
		Offset: offset,
	})
}

// cancelBulkRun handles DELETE /bulk-runs/{runID}. Cancellation is
// cooperative: in-flight backend calls finish naturally, not-yet-started items
// are suppressed.
func (s *Server) cancelBulkRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	runID, ok := parseUUID(w, chi.URLParam(r, "runID"), "run_id")
	if !ok {
		return
	}

	if err := s.service.CancelRun(ctx, runID.String()); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, cancelRunResponse{
		RunID:   runID.String(),
		Message: "cancellation requested",
	})
}

// writeDomainError maps domain errors to appropriate HTTP status codes and
// writes a JSON error response. Internal error details are not leaked to clients.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
		} else {
			writeError(w, http.StatusBadRequest, "invalid input")
		}
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "resource already exists")
	case errors.Is(err, domain.ErrRunTerminal):
		writeError(w, http.StatusConflict, "run already finished")
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, domain.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	case errors.Is(err, domain.ErrCancelled):
		writeError(w, http.StatusConflict, "operation cancelled")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// parseUUID parses a UUID from a string, writing a 400 error response if invalid.
// The parse error details are not included to avoid echoing potentially malicious input.
func parseUUID(w http.ResponseWriter, s, fieldName string) (uuid.UUID, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be a valid UUID", fieldName))
		return uuid.Nil, false
	}
	return id, true
}

// parsePaginationParams extracts limit and offset from query parameters,
// applying default and maximum bounds.
func parsePaginationParams(r *http.Request) (limit, offset int) {
	limit = defaultPageSize
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed > 0 {
			offset = parsed
		}
	}

	return limit, offset
}
