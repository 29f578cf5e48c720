package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"gitlab.com/smilefunnel/api/lead-engine/internal/apperrors"
	"gitlab.com/smilefunnel/api/lead-engine/pkg/logger"
	"gitlab.com/smilefunnel/api/lead-engine/pkg/utils"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// TransitionErrorResponse is the 409 body for a rejected status change.
type TransitionErrorResponse struct {
	Error     string   `json:"error"`
	Current   string   `json:"current"`
	Requested string   `json:"requested"`
	Allowed   []string `json:"allowed"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	log := logger.FromContext(r.Context())

	var transitionErr *apperrors.InvalidTransitionError
	if errors.As(err, &transitionErr) {
		allowed := transitionErr.Allowed
		if allowed == nil {
			allowed = []string{}
		}
		log.Debug("Status change rejected", zap.Error(err))
		_ = utils.WriteJSONResponse(w, status, TransitionErrorResponse{
			Error:     err.Error(),
			Current:   transitionErr.Current,
			Requested: transitionErr.Requested,
			Allowed:   allowed,
		})
		return
	}

	message := err.Error()
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", zap.Error(err), zap.Int("status", status))
		// Storage internals stay in the logs.
		message = http.StatusText(status)
	} else {
		log.Debug("Request rejected", zap.Error(err), zap.Int("status", status))
	}

	_ = utils.WriteJSONResponse(w, status, ErrorResponse{Error: message})
}
