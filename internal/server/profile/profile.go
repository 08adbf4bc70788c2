// Package profile turns loosely typed transcode parameters into a canonical
// encode profile, the deterministic tag used to name its output, and the
// encoder directives that produce it.
package profile

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/transcoder/internal/common"
)

type Format string

const (
	FormatMP4  Format = "mp4"
	FormatWebM Format = "webm"
	FormatAVI  Format = "avi"
)

type Preset string

const (
	PresetFast   Preset = "fast"
	PresetMedium Preset = "medium"
	PresetSlow   Preset = "slow"
)

type Scale string

const (
	ScaleSource Scale = "source"
	Scale1080p  Scale = "1080p"
	Scale720p   Scale = "720p"
)

// SourceFPS keeps the input frame rate.
const SourceFPS = 0

// Legal values, in the order they are documented.
var (
	Formats = []Format{FormatMP4, FormatWebM, FormatAVI}
	Presets = []Preset{PresetFast, PresetMedium, PresetSlow}
	Scales  = []Scale{ScaleSource, Scale1080p, Scale720p}
)

// Params is the raw parameter set of a transcode request.
type Params struct {
	Format  string `json:"format,omitempty"`
	Preset  string `json:"preset,omitempty"`
	Scale   string `json:"scale,omitempty"`
	FPS     Value  `json:"fps"`
	Enhance Value  `json:"enhance"`
	// Heavy is the legacy single-knob quality switch.
	Heavy Value `json:"heavy"`
}

// Profile is an immutable, normalized encode profile.
type Profile struct {
	Format  Format
	Preset  Preset
	Scale   Scale
	FPS     float64
	Enhance bool
}

// heavyOverride is applied verbatim whenever Params.Heavy is truthy.
var heavyOverride = struct {
	preset  Preset
	scale   Scale
	fps     float64
	enhance bool
}{PresetSlow, Scale1080p, 60, true}

// Resolve normalizes raw into a Profile. Unknown presets, scales and frame
// rates fall back to their defaults; an unknown format is an error.
func Resolve(raw Params) (Profile, error) {
	format, err := ParseFormat(raw.Format)
	if err != nil {
		return Profile{}, err
	}

	p := Profile{Format: format}
	if raw.Heavy.Truthy() {
		p.Preset = heavyOverride.preset
		p.Scale = heavyOverride.scale
		p.FPS = heavyOverride.fps
		p.Enhance = heavyOverride.enhance
		return p, nil
	}

	p.Preset = parsePreset(raw.Preset)
	p.Scale = parseScale(raw.Scale)
	p.FPS = parseFPS(raw.FPS.String())
	p.Enhance = raw.Enhance.Truthy()
	return p, nil
}

// ParseFormat accepts mp4, webm and avi in any case. An empty value means mp4.
func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return FormatMP4, nil
	}
	for _, f := range Formats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", common.ErrUnsupportedFormat, s)
}

func parsePreset(s string) Preset {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, p := range Presets {
		if string(p) == s {
			return p
		}
	}
	return PresetMedium
}

func parseScale(s string) Scale {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, sc := range Scales {
		if string(sc) == s {
			return sc
		}
	}
	return ScaleSource
}

func parseFPS(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "source") {
		return SourceFPS
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return SourceFPS
	}
	return f
}

func formatFPS(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Tag is the canonical profile tag: the preset, then the scale and the frame
// rate unless they keep the source, then "enh" when enhancement is on.
func (p Profile) Tag() string {
	tokens := []string{string(p.Preset)}
	if p.Scale != ScaleSource {
		tokens = append(tokens, string(p.Scale))
	}
	if p.FPS != SourceFPS {
		tokens = append(tokens, formatFPS(p.FPS)+"fps")
	}
	if p.Enhance {
		tokens = append(tokens, "enh")
	}
	return strings.Join(tokens, "_")
}

// VariantName is the file name of the variant this profile derives from an
// asset with the given base name.
func (p Profile) VariantName(base string) string {
	return base + "_" + p.Tag() + "." + string(p.Format)
}

// ContentType is the MIME type stored alongside the variant.
func (p Profile) ContentType() string {
	if p.Format == FormatAVI {
		return "video/x-msvideo"
	}
	return "video/" + string(p.Format)
}
