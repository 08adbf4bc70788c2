// Package services holds the application logic behind the HTTP surface:
// uploads, transcodes, scoped listings and download links.
package services

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/transcoder/internal/clock"
	"github.com/dmitrijs2005/transcoder/internal/common"
	"github.com/dmitrijs2005/transcoder/internal/filex"
	"github.com/dmitrijs2005/transcoder/internal/logging"
	"github.com/dmitrijs2005/transcoder/internal/server/catalog"
	"github.com/dmitrijs2005/transcoder/internal/server/listcache"
	"github.com/dmitrijs2005/transcoder/internal/server/models"
	"github.com/dmitrijs2005/transcoder/internal/server/profile"
	"github.com/dmitrijs2005/transcoder/internal/server/repositories/assets"
	"github.com/dmitrijs2005/transcoder/internal/server/scope"
	"github.com/dmitrijs2005/transcoder/internal/server/storage"
	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"
)

// Transcoder runs one encode and returns the published output path.
type Transcoder interface {
	Execute(ctx context.Context, input string, p profile.Profile) (string, error)
}

// MediaConfig carries the service limits.
type MediaConfig struct {
	WorkDir        string
	MaxUploadBytes int64
	PresignTTL     time.Duration
	CacheTTL       time.Duration
	CacheCoalesce  bool
}

type MediaService struct {
	store      storage.ObjectStore
	repo       assets.Repository
	catalog    *catalog.Reconciler
	transcoder Transcoder
	uploads    *listcache.Cache[[]UploadItem]
	processed  *listcache.Cache[[]catalog.ProcessedItem]
	clock      clock.Clock
	logger     logging.Logger
	cfg        MediaConfig
}

func NewMediaService(
	store storage.ObjectStore,
	repo assets.Repository,
	reconciler *catalog.Reconciler,
	transcoder Transcoder,
	clk clock.Clock,
	logger logging.Logger,
	cfg MediaConfig,
) *MediaService {
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = time.Hour
	}
	return &MediaService{
		store:      store,
		repo:       repo,
		catalog:    reconciler,
		transcoder: transcoder,
		uploads:    listcache.New[[]UploadItem](cfg.CacheTTL, clk, cfg.CacheCoalesce),
		processed:  listcache.New[[]catalog.ProcessedItem](cfg.CacheTTL, clk, cfg.CacheCoalesce),
		clock:      clk,
		logger:     logger.With("module", "media"),
		cfg:        cfg,
	}
}

// UploadResult describes a stored upload.
type UploadResult struct {
	Key      string `json:"key"`
	Owner    string `json:"owner"`
	Filename string `json:"filename"`
	Original string `json:"original"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
}

// UploadURLResult is a presigned direct-to-store upload.
type UploadURLResult struct {
	URL       string `json:"url"`
	Key       string `json:"key"`
	Filename  string `json:"filename"`
	ExpiresIn int64  `json:"expiresIn"`
}

// TranscodeRequest names the input and the raw profile fields.
type TranscodeRequest struct {
	Filename string
	Params   profile.Params
}

type TranscodeResult struct {
	Message string `json:"message"`
	Output  string `json:"output"`
	Owner   string `json:"owner"`
	Tag     string `json:"tag"`
	Variant string `json:"variant"`
}

// UploadItem is one entry of the uploads listing.
type UploadItem struct {
	Key          string `json:"key"`
	Owner        string `json:"owner"`
	Filename     string `json:"filename"`
	Original     string `json:"original"`
	Size         int64  `json:"size"`
	LastModified string `json:"lastModified"`
}

type DownloadResult struct {
	URL       string `json:"url"`
	Key       string `json:"key"`
	ExpiresIn int64  `json:"expiresIn"`
}

func requireOwner(sc scope.Scope) error {
	if sc.Anonymous() {
		return fmt.Errorf("%w: no owner identity", common.ErrAccessDenied)
	}
	return nil
}

// cleanName reduces a client supplied filename to its sanitized base name.
func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = common.SanitizeName(name)
	if name == "" || strings.Trim(name, ".") == "" {
		return "", fmt.Errorf("%w: filename is required", common.ErrValidation)
	}
	return name, nil
}

type countingReader struct {
	r        io.Reader
	n        int64
	limit    int64
	exceeded bool
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	if c.limit > 0 && c.n > c.limit {
		c.exceeded = true
		return n, common.ErrSizeLimitExceeded
	}
	return n, err
}

// spool copies a streaming body into the work directory so the object store
// always gets a seekable payload of known length. Read errors are returned
// wrapped, for the transport to classify.
func (s *MediaService) spool(body io.Reader, limit int64) (*os.File, func(), error) {
	dir, cleanup, err := filex.JobDir(s.cfg.WorkDir)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	f, err := os.Create(filepath.Join(dir, "upload"))
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("%w: spool upload: %v", common.ErrorInternal, err)
	}
	done := func() {
		_ = f.Close()
		cleanup()
	}

	counter := &countingReader{r: body, limit: limit}
	if _, err := io.Copy(f, counter); err != nil {
		done()
		if counter.exceeded {
			return nil, nil, fmt.Errorf("%w: limit %d", common.ErrSizeLimitExceeded, limit)
		}
		return nil, nil, fmt.Errorf("read upload: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		done()
		return nil, nil, fmt.Errorf("%w: spool upload: %v", common.ErrorInternal, err)
	}
	return f, done, nil
}

// measure hashes and counts a rewindable body up front, so the digest can
// travel as object metadata and the SDK keeps a seekable payload.
func measure(rs io.ReadSeeker) (string, int64, error) {
	h := blake3.New()
	n, err := io.Copy(h, rs)
	if err != nil {
		return "", 0, err
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// Upload stores body under the caller's upload prefix and (re)creates the
// asset record. size may be -1 when unknown.
func (s *MediaService) Upload(ctx context.Context, sc scope.Scope, filename string, body io.Reader, size int64, contentType string) (*UploadResult, error) {
	if err := requireOwner(sc); err != nil {
		return nil, err
	}
	name, err := cleanName(filename)
	if err != nil {
		return nil, err
	}
	limit := s.cfg.MaxUploadBytes
	if limit > 0 && size > limit {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", common.ErrSizeLimitExceeded, size, limit)
	}

	rs, ok := body.(io.ReadSeeker)
	if !ok {
		f, done, err := s.spool(body, limit)
		if err != nil {
			return nil, err
		}
		defer done()
		rs = f
	}
	sum, size, err := measure(rs)
	if err != nil {
		return nil, fmt.Errorf("%w: read upload: %v", common.ErrClientAborted, err)
	}
	if limit > 0 && size > limit {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", common.ErrSizeLimitExceeded, size, limit)
	}

	at := s.clock.Now()
	stored := common.StoredName(at, name)
	key := common.ObjectKey(common.UploadsNamespace, sc.OwnerID, stored)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	meta := map[string]string{"owner": sc.OwnerID, "original-name": name, "checksum": sum}

	if err := s.store.Put(ctx, key, rs, size, contentType, meta); err != nil {
		return nil, err
	}

	if err := s.repo.Put(ctx, &models.Asset{
		OwnerID:    sc.OwnerID,
		Filename:   name,
		StorageKey: key,
		Checksum:   sum,
		Size:       size,
		Processed:  []string{},
		UploadedAt: at,
	}); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "upload stored", "owner", sc.OwnerID, "key", key, "size", size)
	return &UploadResult{
		Key:      key,
		Owner:    sc.OwnerID,
		Filename: stored,
		Original: name,
		Size:     size,
		Checksum: sum,
	}, nil
}

// UploadURL presigns a direct PUT of a new upload. The object store enforces
// the size of such uploads.
func (s *MediaService) UploadURL(ctx context.Context, sc scope.Scope, filename, contentType string) (*UploadURLResult, error) {
	if err := requireOwner(sc); err != nil {
		return nil, err
	}
	name, err := cleanName(filename)
	if err != nil {
		return nil, err
	}
	stored := common.StoredName(s.clock.Now(), name)
	key := common.ObjectKey(common.UploadsNamespace, sc.OwnerID, stored)

	url, err := s.store.PresignPut(ctx, key, contentType, s.cfg.PresignTTL)
	if err != nil {
		return nil, err
	}
	return &UploadURLResult{URL: url, Key: key, Filename: stored, ExpiresIn: int64(s.cfg.PresignTTL.Seconds())}, nil
}

// resolveInput finds the upload behind filename: first as an original name
// in the catalog, then as a stored name under the owner's upload prefix. It
// returns the object key and the asset filename the variant is recorded on.
func (s *MediaService) resolveInput(ctx context.Context, ownerID, filename string) (string, string, error) {
	name, err := cleanName(filename)
	if err != nil {
		return "", "", err
	}

	a, err := s.repo.Get(ctx, ownerID, name)
	switch {
	case err == nil:
		return a.StorageKey, a.Filename, nil
	case !errors.Is(err, common.ErrorNotFound):
		return "", "", err
	}

	key := common.ObjectKey(common.UploadsNamespace, ownerID, name)
	ok, err := s.store.Exists(ctx, key)
	if err != nil {
		return "", "", err
	}
	if !ok {
		return "", "", fmt.Errorf("upload %s: %w", name, common.ErrorNotFound)
	}
	return key, common.OriginalName(name), nil
}

// Transcode produces one variant of an upload. Unsupported formats fail
// before any I/O. The artifact is stored before the catalog is updated, and
// client cancellation does not stop a started transcode.
func (s *MediaService) Transcode(ctx context.Context, sc scope.Scope, req TranscodeRequest) (*TranscodeResult, error) {
	ctx = context.WithoutCancel(ctx)

	if err := requireOwner(sc); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Filename) == "" {
		return nil, fmt.Errorf("%w: filename is required", common.ErrValidation)
	}
	p, err := profile.Resolve(req.Params)
	if err != nil {
		return nil, err
	}

	key, assetName, err := s.resolveInput(ctx, sc.OwnerID, req.Filename)
	if err != nil {
		return nil, err
	}
	variant := p.VariantName(common.Stem(assetName))

	dir, cleanup, err := filex.JobDir(s.cfg.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	defer cleanup()

	input := filepath.Join(dir, path.Base(key))
	if err := s.store.Download(ctx, key, input); err != nil {
		return nil, err
	}

	output, err := s.transcoder.Execute(ctx, input, p)
	if err != nil {
		if errors.Is(err, common.ErrEncodeFailure) {
			if rerr := s.catalog.RecordFailure(ctx, sc.OwnerID, assetName, variant, err); rerr != nil {
				s.logger.Error(ctx, "record failure", "owner", sc.OwnerID, "filename", assetName, "error", rerr)
			}
		}
		return nil, err
	}
	variant = filepath.Base(output)

	outKey := common.ObjectKey(common.ProcessedNamespace, sc.OwnerID, variant)
	if err := s.putFile(ctx, outKey, output, p.ContentType(), map[string]string{
		"owner":  sc.OwnerID,
		"source": key,
		"tag":    p.Tag(),
	}); err != nil {
		return nil, err
	}

	if err := s.catalog.RecordVariant(ctx, models.VariantRecord{
		OwnerID:    sc.OwnerID,
		Filename:   assetName,
		StorageKey: key,
		Variant:    variant,
	}); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "transcode complete", "owner", sc.OwnerID, "source", key, "output", outKey, "tag", p.Tag())
	return &TranscodeResult{
		Message: "Transcode complete",
		Output:  outKey,
		Owner:   sc.OwnerID,
		Tag:     p.Tag(),
		Variant: variant,
	}, nil
}

func (s *MediaService) putFile(ctx context.Context, key, file, contentType string, meta map[string]string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("%w: open output: %v", common.ErrorInternal, err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat output: %v", common.ErrorInternal, err)
	}
	return s.store.Put(ctx, key, f, st.Size(), contentType, meta)
}

func formatListingTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ListUploads returns the uploads visible to sc. cached reports whether the
// listing was served from the cache.
func (s *MediaService) ListUploads(ctx context.Context, sc scope.Scope) ([]UploadItem, bool, error) {
	if err := requireOwner(sc); err != nil {
		return nil, false, err
	}
	return s.uploads.GetOrFetch(ctx, sc.CacheKey(common.UploadsNamespace), func(ctx context.Context) ([]UploadItem, error) {
		objects, err := s.store.List(ctx, sc.Prefix(common.UploadsNamespace))
		if err != nil {
			return nil, err
		}
		items := make([]UploadItem, 0, len(objects))
		for _, o := range objects {
			_, owner, name, ok := common.SplitKey(o.Key)
			if !ok || !sc.CanAccess(owner) {
				continue
			}
			items = append(items, UploadItem{
				Key:          o.Key,
				Owner:        owner,
				Filename:     name,
				Original:     common.OriginalName(name),
				Size:         o.Size,
				LastModified: formatListingTime(o.LastModified),
			})
		}
		return items, nil
	})
}

// ListProcessed returns the variants visible to sc, each linked to its
// original through the catalog or, failing that, by name.
func (s *MediaService) ListProcessed(ctx context.Context, sc scope.Scope) ([]catalog.ProcessedItem, bool, error) {
	if err := requireOwner(sc); err != nil {
		return nil, false, err
	}
	return s.processed.GetOrFetch(ctx, sc.CacheKey(common.ProcessedNamespace), func(ctx context.Context) ([]catalog.ProcessedItem, error) {
		var (
			processed, uploads []models.Object
			records            []*models.Asset
		)
		ownerFilter := sc.OwnerID
		if sc.IsAdmin {
			ownerFilter = ""
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			processed, err = s.store.List(gctx, sc.Prefix(common.ProcessedNamespace))
			return err
		})
		g.Go(func() error {
			var err error
			uploads, err = s.store.List(gctx, sc.Prefix(common.UploadsNamespace))
			return err
		})
		g.Go(func() error {
			var err error
			records, err = s.repo.List(gctx, ownerFilter)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}

		items := catalog.Reconcile(processed, uploads, records)
		visible := items[:0]
		for _, it := range items {
			if sc.CanAccess(it.Owner) {
				visible = append(visible, it)
			}
		}
		return visible, nil
	})
}

// DownloadURL presigns a GET for kind ("uploads" or "processed") and name.
// requestedOwner selects another owner's namespace and is honored for
// admins only.
func (s *MediaService) DownloadURL(ctx context.Context, sc scope.Scope, kind, name, requestedOwner string) (*DownloadResult, error) {
	if err := requireOwner(sc); err != nil {
		return nil, err
	}
	if kind != common.UploadsNamespace && kind != common.ProcessedNamespace {
		return nil, fmt.Errorf("%w: unknown download type %q", common.ErrValidation, kind)
	}
	if name == "" || common.SanitizeName(name) != name || strings.Trim(name, ".") == "" {
		return nil, fmt.Errorf("%w: invalid name %q", common.ErrValidation, name)
	}
	owner, err := sc.Owner(requestedOwner)
	if err != nil {
		return nil, err
	}

	key := common.ObjectKey(kind, owner, name)
	ok, err := s.store.Exists(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok && kind == common.UploadsNamespace {
		// an original name resolves through its asset record
		if a, gerr := s.repo.Get(ctx, owner, name); gerr == nil {
			key = a.StorageKey
			ok, err = s.store.Exists(ctx, key)
			if err != nil {
				return nil, err
			}
		}
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, common.ErrorNotFound)
	}

	url, err := s.store.PresignGet(ctx, key, s.cfg.PresignTTL)
	if err != nil {
		return nil, err
	}
	return &DownloadResult{URL: url, Key: key, ExpiresIn: int64(s.cfg.PresignTTL.Seconds())}, nil
}
