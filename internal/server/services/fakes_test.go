package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/transcoder/internal/clock"
	"github.com/dmitrijs2005/transcoder/internal/common"
	"github.com/dmitrijs2005/transcoder/internal/server/encoder"
	"github.com/dmitrijs2005/transcoder/internal/server/models"
	"github.com/dmitrijs2005/transcoder/internal/server/profile"
)

type storedObject struct {
	data        []byte
	contentType string
	meta        map[string]string
	modified    time.Time
	size        int64
	seekable    bool
}

type fakeStore struct {
	mu        sync.Mutex
	clock     clock.Clock
	objects   map[string]storedObject
	lists     int
	downloads int
	puts      int
	putErr    error
}

func newFakeStore(clk clock.Clock) *fakeStore {
	return &fakeStore{clock: clk, objects: map[string]storedObject{}}
}

func (f *fakeStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string, meta map[string]string) error {
	_, seekable := body.(io.Seeker)
	data, err := io.ReadAll(body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrStorageFailure, err)
	}
	if f.putErr != nil {
		return f.putErr
	}
	f.objects[key] = storedObject{data: data, contentType: contentType, meta: meta, modified: f.clock.Now(), size: size, seekable: seekable}
	return nil
}

func (f *fakeStore) Download(ctx context.Context, key, dest string) error {
	f.mu.Lock()
	f.downloads++
	o, ok := f.objects[key]
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("get %s: %w", key, common.ErrorNotFound)
	}
	return os.WriteFile(dest, o.data, 0o600)
}

func (f *fakeStore) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok, nil
}

func (f *fakeStore) List(ctx context.Context, prefix string) ([]models.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	var out []models.Object
	for k, o := range f.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, models.Object{Key: k, Size: int64(len(o.data)), LastModified: o.modified})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (f *fakeStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://signed.example/%s?ttl=%d", key, int(ttl.Seconds())), nil
}

func (f *fakeStore) PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	return "https://signed.example/put/" + key, nil
}

func (f *fakeStore) object(key string) (storedObject, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.objects[key]
	return o, ok
}

func (f *fakeStore) put(key, data string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = storedObject{data: []byte(data), modified: f.clock.Now()}
}

func (f *fakeStore) listCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}

// fakeTranscoder writes "<input>|<tag>" next to the input, or fails.
type fakeTranscoder struct {
	mu    sync.Mutex
	calls int
	fail  error
}

func (t *fakeTranscoder) Execute(ctx context.Context, input string, p profile.Profile) (string, error) {
	t.mu.Lock()
	t.calls++
	t.mu.Unlock()
	if t.fail != nil {
		return "", t.fail
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	src, err := os.ReadFile(input)
	if err != nil {
		return "", err
	}
	out := filepath.Join(filepath.Dir(input), p.VariantName(common.AssetBaseName(filepath.Base(input))))
	if err := os.WriteFile(out, append(src, []byte("|"+p.Tag())...), 0o600); err != nil {
		return "", err
	}
	return out, nil
}

var _ Transcoder = (*encoder.Executor)(nil)

// onceReader hides Seek so uploads take the streaming path.
type onceReader struct{ r io.Reader }

func (o onceReader) Read(p []byte) (int, error) { return o.r.Read(p) }

func seekable(s string) io.Reader { return bytes.NewReader([]byte(s)) }

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }
