package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"agroconecta-billing/internal/domain"
	"agroconecta-billing/internal/infra/logging"
)

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyActive),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrLockBusy),
		errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrGatewayRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrGatewayTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrGatewayUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs err and writes the mapped status. Internal details stay in
// the log; only the gateway's own rejection detail reaches the client.
func writeError(w http.ResponseWriter, r *http.Request, logger *zerolog.Logger, err error) {
	status := statusFor(err)
	l := logging.With(r.Context(), logger)
	switch {
	case status >= 500 && domain.IsGatewayError(err):
		l.Error().Err(err).Str("component", "gateway").Msg("gateway failure")
	case status >= 500:
		l.Error().Err(err).Msg("request failed")
	default:
		l.Debug().Err(err).Int("status", status).Msg("request rejected")
	}

	resp := errorResponse{Error: publicMessage(status, err)}
	var gerr *domain.GatewayError
	if status == http.StatusUnprocessableEntity && errors.As(err, &gerr) {
		resp.Detail = gerr.Detail
	}
	writeJSON(w, status, resp)
}

func publicMessage(status int, err error) string {
	switch status {
	case http.StatusInternalServerError:
		return "internal error"
	case http.StatusBadGateway:
		return domain.ErrGatewayUnavailable.Error()
	case http.StatusGatewayTimeout:
		return domain.ErrGatewayTimeout.Error()
	case http.StatusUnprocessableEntity:
		return domain.ErrGatewayRejected.Error()
	case http.StatusBadRequest:
		return err.Error()
	}
	for _, s := range []error{
		domain.ErrNotFound, domain.ErrForbidden, domain.ErrUnauthenticated,
		domain.ErrAlreadyActive, domain.ErrConflict, domain.ErrLockBusy, domain.ErrAlreadyExists,
	} {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return http.StatusText(status)
}

func writeStatus(w http.ResponseWriter, status int, msg, detail string) {
	writeJSON(w, status, errorResponse{Error: msg, Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
