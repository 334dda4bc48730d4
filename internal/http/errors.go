package http

import (
	"context"
	"errors"
	"net"
	"net/http"

	"lifeplan/internal/core"
	"lifeplan/internal/log"
	"lifeplan/internal/plans"
	"lifeplan/internal/plans/remote"
	"lifeplan/internal/services"
	"lifeplan/internal/settings"
)

// ceilingDetail is the structured part of a rejected investment.
type ceilingDetail struct {
	Date      core.MonthKey `json:"date"`
	Maximum   string        `json:"maximum"`
	Available string        `json:"available"`
	Requested string        `json:"requested"`
}

// classify maps a service error to a status, an error code and the message
// shown to the user.
func classify(err error) (int, string, string) {
	var apiErr *remote.APIError
	var netErr net.Error
	switch {
	case errors.Is(err, plans.ErrNotFound):
		return http.StatusNotFound, "plan_not_found", "Plan not found."
	case errors.Is(err, services.ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found", "The editing session has expired. Reload the plan."
	case errors.Is(err, core.ErrRowNotFound):
		return http.StatusNotFound, "row_not_found", "Row not found."
	case errors.Is(err, core.ErrCellLocked),
		errors.Is(err, core.ErrReadOnlyCategory),
		errors.Is(err, core.ErrReserveRow):
		return http.StatusForbidden, "locked", err.Error()
	case errors.Is(err, core.ErrCeilingExceeded):
		return http.StatusUnprocessableEntity, "ceiling_exceeded", err.Error()
	case errors.Is(err, core.ErrUnknownCategory),
		errors.Is(err, core.ErrUnknownDate),
		errors.Is(err, core.ErrInvalidMonth),
		errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrInvalidTerm),
		errors.Is(err, core.ErrNoActiveCell),
		errors.Is(err, settings.ErrInvalidTheme),
		errors.Is(err, plans.ErrUnsupportedFormat),
		errors.Is(err, errBadField):
		return http.StatusUnprocessableEntity, "invalid", err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout", "The plan backend did not answer in time."
	case errors.Is(err, remote.ErrUnauthorized), errors.Is(err, remote.ErrNoToken):
		return http.StatusBadGateway, "backend_auth", "The plan backend rejected our credentials."
	case errors.As(err, &apiErr), errors.As(err, &netErr):
		return http.StatusBadGateway, "backend", "The plan backend is unavailable. Your changes are kept."
	default:
		return http.StatusInternalServerError, "internal", "Something went wrong. Your changes are kept."
	}
}

// writeError answers with the classified error. data, when not nil, is sent
// alongside so the page can redraw the unchanged state.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, op string, data any) {
	status, code, msg := classify(err)

	var detail any
	var ce *core.CeilingError
	if errors.As(err, &ce) {
		detail = ceilingDetail{
			Date:      ce.Date,
			Maximum:   core.FormatAmount(ce.Maximum),
			Available: core.FormatAmount(ce.Available),
			Requested: core.FormatAmount(ce.Requested),
		}
	}

	if status >= http.StatusInternalServerError {
		log.NewStructuredLogger(log.FromContext(r.Context())).
			LogError(r.Context(), "Request failed", err, log.ComponentHTTP, op,
				log.NewFields().WithHTTPRequest(r.Method, r.URL.Path, "", "", "").WithErrorType(errorType(code)))
	}

	NewResponse().Status(status).Data(data).Fail(code, msg, detail).Write(w)
}

func errorType(code string) string {
	switch code {
	case "timeout":
		return log.ErrorTypeTimeout
	case "backend_auth":
		return log.ErrorTypeAuth
	case "backend":
		return log.ErrorTypeNetwork
	default:
		return log.ErrorTypeInternal
	}
}
