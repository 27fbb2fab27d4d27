// Package handler contains the HTTP handlers for the mapping API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/crosswalk-io/crosswalk/internal/api/response"
	"github.com/crosswalk-io/crosswalk/internal/jobs"
	"github.com/crosswalk-io/crosswalk/internal/mapping"
	"github.com/crosswalk-io/crosswalk/internal/store"
	"github.com/crosswalk-io/crosswalk/pkg/models"
)

// MappingService defines the interface the mapping handlers depend on.
type MappingService interface {
	Accept(ctx context.Context, req mapping.Request) (*mapping.Accepted, error)
	Status(ctx context.Context, mappingID string) (*models.Job, error)
}

// NewCreateMappingHandler returns an http.HandlerFunc for POST /api/v1/mappings.
func NewCreateMappingHandler(svc MappingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Field aliases kept for callers of the previous API revision.
		var req struct {
			ControlKey          string   `json:"control_key"`
			ControlKeyAlias     string   `json:"controlKey"`
			ControlID           string   `json:"control_id"`
			TargetFrameworkKey  string   `json:"target_framework_key"`
			TargetFrameworkKey2 string   `json:"targetFrameworkKey"`
			TargetControlIDs    []string `json:"target_control_ids"`
			TargetControlIDs2   []string `json:"targetControlIds"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", "")
			return
		}

		accepted, err := svc.Accept(r.Context(), mapping.Request{
			ControlKey:         coalesce(req.ControlKey, req.ControlKeyAlias, req.ControlID),
			TargetFrameworkKey: coalesce(req.TargetFrameworkKey, req.TargetFrameworkKey2),
			TargetControlIDs:   coalesceSlice(req.TargetControlIDs, req.TargetControlIDs2),
		})
		if err != nil {
			writeAcceptError(w, err)
			return
		}
		response.Accepted(w, accepted)
	}
}

// NewStatusHandler returns an http.HandlerFunc for GET /api/v1/mappings/{mappingID}.
func NewStatusHandler(svc MappingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mappingID := chi.URLParam(r, "mappingID")

		job, err := svc.Status(r.Context(), mappingID)
		if err != nil {
			var verr *mapping.ValidationError
			switch {
			case errors.As(err, &verr):
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", verr.Message, verr.Field)
			case errors.Is(err, store.ErrNotFound):
				response.Error(w, http.StatusNotFound, "MAPPING_NOT_FOUND",
					fmt.Sprintf("No mapping job with id %q", mappingID), "")
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"Failed to read mapping status", "")
			}
			return
		}
		response.JSON(w, http.StatusOK, jobs.Project(job))
	}
}

func writeAcceptError(w http.ResponseWriter, err error) {
	var verr *mapping.ValidationError
	var nferr *mapping.NotFoundError
	switch {
	case errors.As(err, &verr):
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", verr.Message, verr.Field)
	case errors.As(err, &nferr):
		msg := nferr.Error()
		if nferr.Suggestion != "" {
			msg = msg + ". " + nferr.Suggestion
		}
		code := "CONTROL_NOT_FOUND"
		if nferr.Resource == "framework" {
			code = "FRAMEWORK_NOT_FOUND"
		}
		response.Error(w, http.StatusNotFound, code, msg, "")
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"Failed to accept mapping request", "")
	}
}

func coalesce(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func coalesceSlice(vals ...[]string) []string {
	for _, v := range vals {
		if len(v) > 0 {
			return v
		}
	}
	return nil
}
