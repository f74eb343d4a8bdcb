package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/JamesDodds/ipmi-api-gateway/internal/dispatch"
	"github.com/JamesDodds/ipmi-api-gateway/internal/target"
)

var errAmbiguousServerID = errors.New("server id given in both query and body with different values")

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error(), RequestID: requestID(r.Context())})
}

// writeResolutionError maps target resolution failures to HTTP codes:
// no targets configured is a service problem, an unknown name is the
// caller's, and an omitted name against a multi-target registry needs
// the caller to disambiguate.
func (s *Server) writeResolutionError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var resErr *target.ResolutionError
	if errors.As(err, &resErr) {
		switch resErr.Kind {
		case target.NotConfigured:
			status = http.StatusServiceUnavailable
		case target.NotFound:
			status = http.StatusNotFound
		case target.Ambiguous:
			status = http.StatusBadRequest
		}
	}
	s.writeError(w, r, status, err)
}

// outcomeStatus maps a single-target outcome to its HTTP code. Fleet
// responses do not use this: they are always 200 with per-target
// statuses in the body.
func outcomeStatus(status dispatch.Status) int {
	switch status {
	case dispatch.StatusSuccess:
		return http.StatusOK
	case dispatch.StatusTimeout, dispatch.StatusCanceled:
		return http.StatusGatewayTimeout
	case dispatch.StatusUnreachable, dispatch.StatusUnauthenticated:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
