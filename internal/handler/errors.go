package handler

import (
	"errors"
	"net/http"

	"github.com/pkordes/busline/internal/domain"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failure. Overridable errors carry what a client
// needs to render an override prompt in Details.
type ErrorDetail struct {
	Code        domain.ErrorCode `json:"code"`
	Message     string           `json:"message"`
	Overridable bool             `json:"overridable"`
	Details     any              `json:"details,omitempty"`
}

var statusByCode = map[domain.ErrorCode]int{
	domain.CodeValidation:        http.StatusUnprocessableEntity,
	domain.CodeAuthorization:     http.StatusForbidden,
	domain.CodeNotFound:          http.StatusNotFound,
	domain.CodeInvalidTransition: http.StatusConflict,
	domain.CodeResourceConflict:  http.StatusConflict,
	domain.CodeSafetyGateBlocked: http.StatusConflict,
	domain.CodeVersionConflict:   http.StatusConflict,
	domain.CodeViewOnlyStatus:    http.StatusConflict,
	domain.CodeHasPaidBookings:   http.StatusConflict,
	domain.CodeTimeout:           http.StatusGatewayTimeout,
}

// errorFor classifies err into a status code and body. Internal errors get a
// generic message; their text never reaches the client.
func errorFor(err error) (int, ErrorResponse) {
	code := domain.Code(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	detail := ErrorDetail{
		Code:        code,
		Message:     domain.PublicMessage(err),
		Overridable: domain.Overridable(err),
	}

	var (
		ite  *domain.InvalidTransitionError
		ce   *domain.ConflictError
		gate *domain.SafetyGateError
	)
	switch {
	case errors.As(err, &ite):
		detail.Details = map[string]any{"current": ite.From, "requested": ite.To, "allowed": ite.Allowed}
	case errors.As(err, &ce):
		detail.Details = map[string]any{"conflicts": ce.Conflicts}
	case errors.As(err, &gate):
		detail.Details = map[string]any{"vehicle_id": gate.VehicleID, "risk_score": gate.RiskScore, "reason": gate.Reason}
	}
	return status, ErrorResponse{Error: detail}
}

// writeError maps err to its response and logs anything unexpected.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusGatewayTimeout {
		s.log.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, body)
}

// requestError is a 422 for input rejected before reaching the service layer.
func requestError(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: ErrorDetail{
		Code:    domain.CodeValidation,
		Message: message,
	}})
}
