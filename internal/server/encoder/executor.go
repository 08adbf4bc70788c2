// Package encoder runs the external encoder for a resolved profile and
// publishes its output at a deterministic path.
package encoder

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/transcoder/internal/common"
	"github.com/dmitrijs2005/transcoder/internal/filex"
	"github.com/dmitrijs2005/transcoder/internal/logging"
	"github.com/dmitrijs2005/transcoder/internal/server/profile"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// DefaultBinary is looked up on PATH when no encoder path is configured.
const DefaultBinary = "ffmpeg"

const maxDiagnostic = 2048

// Runner executes name with args and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput() //nolint:gosec
}

// EncodeFailure is returned for every unsuccessful run. It matches
// common.ErrEncodeFailure under errors.Is.
type EncodeFailure struct {
	Variant    string
	Diagnostic string
	Err        error
}

func (e *EncodeFailure) Error() string {
	msg := "encode " + e.Variant + " failed"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Diagnostic != "" {
		msg += ": " + e.Diagnostic
	}
	return msg
}

func (e *EncodeFailure) Unwrap() []error {
	if e.Err == nil {
		return []error{common.ErrEncodeFailure}
	}
	return []error{common.ErrEncodeFailure, e.Err}
}

// Executor encodes one input per call and blocks until the encoder exits.
// It never retries.
type Executor struct {
	binary string
	outDir string
	run    Runner
	slots  *semaphore.Weighted
	logger logging.Logger
}

// Option customizes an Executor.
type Option func(*Executor)

// WithRunner replaces process execution, mainly for tests.
func WithRunner(r Runner) Option {
	return func(e *Executor) { e.run = r }
}

// WithOutputDir publishes outputs into dir instead of next to the input.
func WithOutputDir(dir string) Option {
	return func(e *Executor) { e.outDir = dir }
}

// WithMaxConcurrent caps the number of encoder processes running at once.
func WithMaxConcurrent(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.slots = semaphore.NewWeighted(int64(n))
		}
	}
}

func NewExecutor(binary string, logger logging.Logger, opts ...Option) *Executor {
	if binary == "" {
		binary = DefaultBinary
	}
	e := &Executor{
		binary: binary,
		run:    execRunner,
		logger: logger.With("module", "encoder"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OutputPath is where Execute publishes the variant of inputPath under p.
func (e *Executor) OutputPath(inputPath string, p profile.Profile) string {
	dir := e.outDir
	if dir == "" {
		dir = filepath.Dir(inputPath)
	}
	base := common.AssetBaseName(filepath.Base(inputPath))
	return filepath.Join(dir, p.VariantName(base))
}

// Execute encodes inputPath with p and returns the output path. The output
// only appears at that path once the encoder has succeeded and written a
// non-empty file; failed runs leave nothing behind.
func (e *Executor) Execute(ctx context.Context, inputPath string, p profile.Profile) (string, error) {
	out := e.OutputPath(inputPath, p)
	variant := filepath.Base(out)

	d, ok := p.Directives()
	if !ok {
		return "", &EncodeFailure{
			Variant:    variant,
			Diagnostic: fmt.Sprintf("no encoder directives for format %q preset %q", p.Format, p.Preset),
		}
	}

	if err := os.MkdirAll(filepath.Dir(out), 0o750); err != nil {
		return "", fmt.Errorf("prepare output dir: %w", err)
	}

	if e.slots != nil {
		if err := e.slots.Acquire(ctx, 1); err != nil {
			return "", err
		}
		defer e.slots.Release(1)
	}

	tmp := filepath.Join(filepath.Dir(out), ".tmp-"+uuid.NewString()+"-"+variant)
	args := d.Args(inputPath, tmp)

	e.logger.Debug(ctx, "running encoder", "binary", e.binary, "args", strings.Join(args, " "))
	start := time.Now()

	output, err := e.run(ctx, e.binary, args...)
	if err != nil {
		_ = os.Remove(tmp)
		failure := &EncodeFailure{Variant: variant, Diagnostic: diagnostic(output), Err: err}
		e.logger.Error(ctx, "encoder failed", "variant", variant, "error", failure.Error())
		return "", failure
	}

	info, err := os.Stat(tmp)
	if err != nil || info.Size() == 0 {
		_ = os.Remove(tmp)
		return "", &EncodeFailure{Variant: variant, Diagnostic: "encoder produced no output"}
	}

	if err := filex.Publish(tmp, out); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("publish %s: %w", variant, err)
	}

	e.logger.Info(ctx, "encoded variant", "variant", variant, "bytes", info.Size(), "took", time.Since(start).String())
	return out, nil
}

// diagnostic keeps the tail of the encoder output, where ffmpeg reports the
// fatal error.
func diagnostic(output []byte) string {
	s := strings.TrimSpace(string(output))
	if len(s) > maxDiagnostic {
		s = s[len(s)-maxDiagnostic:]
	}
	return s
}
