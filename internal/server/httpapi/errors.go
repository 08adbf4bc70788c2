package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/transcoder/internal/common"
	"github.com/dmitrijs2005/transcoder/internal/server/encoder"
	"github.com/labstack/echo/v4"
)

// StatusClientClosedRequest reports an upload the client abandoned.
const StatusClientClosedRequest = 499

type errorBody struct {
	Error      string `json:"error"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	var he *echo.HTTPError
	switch {
	case errors.Is(err, common.ErrValidation), errors.Is(err, common.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrorUnauthorized), errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrSizeLimitExceeded), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, common.ErrClientAborted), errors.Is(err, context.Canceled):
		return StatusClientClosedRequest
	case errors.Is(err, common.ErrStorageFailure), errors.Is(err, common.ErrMetadataFailure):
		return http.StatusBadGateway
	case errors.As(err, &he):
		return he.Code
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage hides the detail of unclassified failures.
func publicMessage(status int, err error) string {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if msg, ok := he.Message.(string); ok {
			return msg
		}
		return http.StatusText(he.Code)
	}
	if status == http.StatusInternalServerError {
		var ef *encoder.EncodeFailure
		if errors.As(err, &ef) {
			return "encode " + ef.Variant + " failed"
		}
		return http.StatusText(status)
	}
	return err.Error()
}

func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := statusFor(err)
	body := errorBody{Error: publicMessage(status, err)}

	var ef *encoder.EncodeFailure
	if errors.As(err, &ef) {
		body.Diagnostic = ef.Diagnostic
	}
	if status == http.StatusUnauthorized {
		challenge := "Bearer"
		if !errors.Is(err, common.ErrorUnauthorized) {
			challenge = `Bearer error="invalid_token"`
		}
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, challenge)
	}

	ctx := c.Request().Context()
	if status >= http.StatusInternalServerError {
		s.logger.Error(ctx, "request failed", "path", c.Path(), "status", status, "error", err.Error())
	} else {
		s.logger.Debug(ctx, "request rejected", "path", c.Path(), "status", status, "error", err.Error())
	}

	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(status)
	} else {
		werr = c.JSON(status, body)
	}
	if werr != nil {
		s.logger.Error(ctx, "write error response", "error", werr.Error())
	}
}
