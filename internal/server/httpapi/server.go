// Package httpapi is the HTTP surface of the transcoder: bearer
// authentication, the media routes and error-to-status mapping.
package httpapi

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/transcoder/internal/logging"
	"github.com/dmitrijs2005/transcoder/internal/server/catalog"
	"github.com/dmitrijs2005/transcoder/internal/server/scope"
	"github.com/dmitrijs2005/transcoder/internal/server/services"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// MediaService is the application logic behind the routes.
type MediaService interface {
	Upload(ctx context.Context, sc scope.Scope, filename string, body io.Reader, size int64, contentType string) (*services.UploadResult, error)
	UploadURL(ctx context.Context, sc scope.Scope, filename, contentType string) (*services.UploadURLResult, error)
	Transcode(ctx context.Context, sc scope.Scope, req services.TranscodeRequest) (*services.TranscodeResult, error)
	ListUploads(ctx context.Context, sc scope.Scope) ([]services.UploadItem, bool, error)
	ListProcessed(ctx context.Context, sc scope.Scope) ([]catalog.ProcessedItem, bool, error)
	DownloadURL(ctx context.Context, sc scope.Scope, kind, name, requestedOwner string) (*services.DownloadResult, error)
}

// TokenVerifier turns a bearer token into its claims.
type TokenVerifier interface {
	Verify(token string) (map[string]any, error)
}

const shutdownTimeout = 10 * time.Second

type Server struct {
	address   string
	e         *echo.Echo
	media     MediaService
	verifier  TokenVerifier
	logger    logging.Logger
	maxUpload int64
}

// NewServer builds the router. maxUpload bounds upload request bodies; zero
// disables the bound.
func NewServer(a string, media MediaService, v TokenVerifier, l logging.Logger, maxUpload int64) *Server {
	s := &Server{
		address:   a,
		e:         echo.New(),
		media:     media,
		verifier:  v,
		logger:    l.With("module", "http_server"),
		maxUpload: maxUpload,
	}
	s.e.HideBanner = true
	s.e.HidePort = true
	s.e.HTTPErrorHandler = s.errorHandler
	s.routes()
	return s
}

func (s *Server) routes() {
	s.e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: newRequestID}))
	s.e.Use(s.requestLogger)
	s.e.Use(middleware.Recover())

	s.e.GET("/health", s.health)

	api := s.e.Group("", s.bearerAuth)
	small := middleware.BodyLimit("1M")

	api.POST("/upload", s.upload)
	api.PUT("/upload", s.upload)
	api.POST("/upload-url", s.uploadURL, small)
	api.POST("/transcode", s.transcode, small)
	api.GET("/uploads", s.listUploads)
	api.GET("/processed", s.listProcessed)
	api.GET("/download/:type/:name", s.download)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.e
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {

	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.e,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			s.logger.Error(sctx, "HTTP shutdown", "error", err.Error())
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
