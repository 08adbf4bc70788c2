package httpapi

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/transcoder/internal/common"
	"github.com/dmitrijs2005/transcoder/internal/logging"
	"github.com/dmitrijs2005/transcoder/internal/server/scope"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const scopeKey = "scope"

func newRequestID() string {
	return uuid.NewString()
}

// requestLogger tags the request context with its id, so every record
// logged while serving it carries request_id, then logs the outcome.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		rid := c.Response().Header().Get(echo.HeaderXRequestID)
		req := c.Request()
		req = req.WithContext(logging.ContextWith(req.Context(), "request_id", rid))
		c.SetRequest(req)

		if err := next(c); err != nil {
			// render now so the logged status is the one sent
			c.Error(err)
		}
		s.logger.Info(req.Context(), "request",
			"method", req.Method,
			"path", req.URL.Path,
			"status", c.Response().Status,
			"latency", time.Since(start),
		)
		return nil
	}
}

// bearerAuth verifies the Authorization header and stores the caller scope.
func (s *Server) bearerAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return fmt.Errorf("%w: missing bearer token", common.ErrorUnauthorized)
		}

		claims, err := s.verifier.Verify(strings.TrimSpace(token))
		if err != nil {
			if errors.Is(err, common.ErrTokenExpired) || errors.Is(err, common.ErrInvalidToken) {
				return err
			}
			return fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
		}

		sc := scope.Resolve(claims)
		if sc.Anonymous() {
			return fmt.Errorf("%w: token carries no usable identity", common.ErrAccessDenied)
		}
		c.Set(scopeKey, sc)
		return next(c)
	}
}

func callerScope(c echo.Context) scope.Scope {
	sc, _ := c.Get(scopeKey).(scope.Scope)
	return sc
}
