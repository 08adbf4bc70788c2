package main

import (
	"fmt"
	"path/filepath"

	"github.com/dmitrijs2005/transcoder/internal/filex"
	"github.com/dmitrijs2005/transcoder/internal/server/encoder"
	"github.com/dmitrijs2005/transcoder/internal/server/profile"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type profileFlags struct {
	format  string
	preset  string
	scale   string
	fps     string
	enhance bool
	heavy   bool
}

func (p profileFlags) params() profile.Params {
	params := profile.Params{Format: p.format, Preset: p.preset, Scale: p.scale}
	if p.fps != "" {
		params.FPS = profile.Text(p.fps)
	}
	params.Enhance = profile.Bool(p.enhance)
	params.Heavy = profile.Bool(p.heavy)
	return params
}

// addProfileFlags registers the transcode profile fields on fs.
func addProfileFlags(fs *pflag.FlagSet, p *profileFlags) {
	fs.StringVar(&p.format, "format", "", "output container: mp4, webm or avi")
	fs.StringVar(&p.preset, "preset", "", "fast, medium or slow")
	fs.StringVar(&p.scale, "scale", "", "source, 1080p or 720p")
	fs.StringVar(&p.fps, "fps", "", "output frame rate")
	fs.BoolVar(&p.enhance, "enhance", false, "apply the brightness/contrast filter")
	fs.BoolVar(&p.heavy, "heavy", false, "slow 1080p 60fps enhanced")
}

func newEncodeCommand() *cobra.Command {
	var (
		pf     profileFlags
		outDir string
	)

	cmd := &cobra.Command{
		Use:   "encode INPUT",
		Short: "Transcode a local file with the service's profile rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}

			p, err := profile.Resolve(pf.params())
			if err != nil {
				return err
			}

			input, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			opts := []encoder.Option{encoder.WithMaxConcurrent(1)}
			if outDir != "" {
				dir, err := filex.EnsureDir(outDir)
				if err != nil {
					return err
				}
				opts = append(opts, encoder.WithOutputDir(dir))
			}

			out, err := encoder.NewExecutor(cfg.FFmpegPath, logger, opts...).Execute(cmd.Context(), input, p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (tag %s)\n", out, p.Tag())
			return nil
		},
	}

	addProfileFlags(cmd.Flags(), &pf)
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (defaults to the input's directory)")
	return cmd
}
