package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/transcoder/internal/common"
	"github.com/dmitrijs2005/transcoder/internal/server/catalog"
	"github.com/dmitrijs2005/transcoder/internal/server/profile"
	"github.com/dmitrijs2005/transcoder/internal/server/services"
	"github.com/labstack/echo/v4"
)

// multipartSlack covers multipart framing on top of the file itself.
const multipartSlack = 1 << 20

// uploadFields are the accepted multipart field names, in preference order.
var uploadFields = []string{"file", "video"}

type listResponse[T any] struct {
	Items  []T  `json:"items"`
	Cached bool `json:"cached"`
}

type transcodeBody struct {
	Filename string `json:"filename"`
	profile.Params
}

type uploadURLBody struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// aborted converts failures caused by the client going away.
func aborted(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return fmt.Errorf("%w: %v", common.ErrSizeLimitExceeded, err)
	}
	if ctx.Err() != nil || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", common.ErrClientAborted, err)
	}
	return err
}

// upload accepts either a multipart form with a "file" (or "video") field,
// or a raw body named by the "filename" query parameter.
func (s *Server) upload(c echo.Context) error {
	req := c.Request()
	ctx := req.Context()
	sc := callerScope(c)

	mediaType, _, _ := mime.ParseMediaType(req.Header.Get(echo.HeaderContentType))
	if mediaType != echo.MIMEMultipartForm {
		if s.maxUpload > 0 {
			req.Body = http.MaxBytesReader(c.Response(), req.Body, s.maxUpload)
		}
		res, err := s.media.Upload(ctx, sc, c.QueryParam("filename"), req.Body, req.ContentLength, req.Header.Get(echo.HeaderContentType))
		if err != nil {
			return aborted(ctx, err)
		}
		return c.JSON(http.StatusCreated, res)
	}

	if s.maxUpload > 0 {
		req.Body = http.MaxBytesReader(c.Response(), req.Body, s.maxUpload+multipartSlack)
	}
	form, err := c.MultipartForm()
	if err != nil {
		if aerr := aborted(ctx, err); aerr != err {
			return aerr
		}
		return fmt.Errorf("%w: malformed multipart body: %v", common.ErrValidation, err)
	}
	defer form.RemoveAll()

	for _, field := range uploadFields {
		files := form.File[field]
		if len(files) == 0 {
			continue
		}
		fh := files[0]
		f, err := fh.Open()
		if err != nil {
			return err
		}
		defer f.Close()

		res, err := s.media.Upload(ctx, sc, fh.Filename, f, fh.Size, fh.Header.Get(echo.HeaderContentType))
		if err != nil {
			return aborted(ctx, err)
		}
		return c.JSON(http.StatusCreated, res)
	}
	return fmt.Errorf("%w: multipart field %q is required", common.ErrValidation, uploadFields[0])
}

func decodeJSON(r io.Reader, v any) error {
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", common.ErrValidation, err)
	}
	return nil
}

func (s *Server) uploadURL(c echo.Context) error {
	var body uploadURLBody
	if err := decodeJSON(c.Request().Body, &body); err != nil {
		return err
	}
	res, err := s.media.UploadURL(c.Request().Context(), callerScope(c), body.Filename, body.ContentType)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) transcode(c echo.Context) error {
	var body transcodeBody
	if err := decodeJSON(c.Request().Body, &body); err != nil {
		return err
	}
	res, err := s.media.Transcode(c.Request().Context(), callerScope(c), services.TranscodeRequest{
		Filename: body.Filename,
		Params:   body.Params,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) listUploads(c echo.Context) error {
	items, cached, err := s.media.ListUploads(c.Request().Context(), callerScope(c))
	if err != nil {
		return err
	}
	if items == nil {
		items = []services.UploadItem{}
	}
	return c.JSON(http.StatusOK, listResponse[services.UploadItem]{Items: items, Cached: cached})
}

func (s *Server) listProcessed(c echo.Context) error {
	items, cached, err := s.media.ListProcessed(c.Request().Context(), callerScope(c))
	if err != nil {
		return err
	}
	if items == nil {
		items = []catalog.ProcessedItem{}
	}
	return c.JSON(http.StatusOK, listResponse[catalog.ProcessedItem]{Items: items, Cached: cached})
}

func (s *Server) download(c echo.Context) error {
	kind := strings.TrimSpace(c.Param("type"))
	name := c.Param("name")
	res, err := s.media.DownloadURL(c.Request().Context(), callerScope(c), kind, name, c.QueryParam("owner"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}
