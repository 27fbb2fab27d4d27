package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/crosswalk-io/crosswalk/internal/api/response"
	"github.com/crosswalk-io/crosswalk/internal/dispatch"
)

// Redriver defines the interface the redrive handler depends on.
type Redriver interface {
	Run(ctx context.Context, req dispatch.RedriveRequest) (*dispatch.RedriveResult, error)
}

// NewRedriveHandler returns an http.HandlerFunc for POST /api/v1/admin/redrive.
// An empty body runs a full redrive with defaults.
func NewRedriveHandler(redriver Redriver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dispatch.RedriveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", "")
			return
		}

		result, err := redriver.Run(r.Context(), req)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "REDRIVE_FAILED", err.Error(), "")
			return
		}
		response.JSON(w, result.StatusCode, result)
	}
}
