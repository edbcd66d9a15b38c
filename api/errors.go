package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/clinops/errs"
	"example.com/backstage/services/clinops/service"
)

type errorBody struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Fields   map[string]string `json:"fields,omitempty"`
	Details  []string          `json:"details,omitempty"`
	Allowed  []string          `json:"allowed,omitempty"`
	Terminal bool              `json:"terminal,omitempty"`
}

// statusFor maps an error class to its HTTP status
func statusFor(err error) int {
	switch errs.Code(err) {
	case "VALIDATION":
		return http.StatusBadRequest
	case "NOT_FOUND":
		return http.StatusNotFound
	case "ALREADY_EXISTS", "CONFLICT":
		return http.StatusConflict
	case "ILLEGAL_TRANSITION":
		return http.StatusUnprocessableEntity
	case "TIMEOUT":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	body := errorBody{Code: errs.Code(err), Message: err.Error()}

	var validation *errs.ValidationError
	var conflict *errs.ConflictError
	var illegal *errs.IllegalTransitionError
	switch {
	case errors.As(err, &validation):
		body.Fields = validation.Fields
	case errors.As(err, &illegal):
		body.Allowed = illegal.Allowed
		body.Terminal = illegal.Terminal
	case errors.As(err, &conflict):
		body.Details = conflict.Details
	}

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Request failed")
		if status == http.StatusInternalServerError {
			body.Message = "internal error"
		}
	}
	c.JSON(status, body)
}

// respondView answers ok, or 202 while the read side is still catching up
func respondView(c *gin.Context, ok int, view service.View) {
	if view.Pending() {
		c.JSON(http.StatusAccepted, view)
		return
	}
	c.JSON(ok, view)
}

// bind decodes a JSON body, reporting malformed input as a validation error
func bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		respondError(c, errs.NewValidationError("malformed request body: %v", err))
		return false
	}
	return true
}
