package profile

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/dmitrijs2005/transcoder/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_Defaults(t *testing.T) {
	p, err := Resolve(Params{})
	require.NoError(t, err)

	assert.Equal(t, Profile{Format: FormatMP4, Preset: PresetMedium, Scale: ScaleSource, FPS: SourceFPS}, p)
	assert.Equal(t, "medium", p.Tag())
	assert.Equal(t, "clip_medium.mp4", p.VariantName("clip"))
}

func TestResolve_Heavy(t *testing.T) {
	tests := []struct {
		name string
		raw  Params
	}{
		{name: "bool", raw: Params{Heavy: Bool(true)}},
		{name: "string", raw: Params{Heavy: Text("true")}},
		{name: "explicit fields ignored", raw: Params{
			Heavy: Bool(true), Preset: "fast", Scale: "720p", FPS: Text("24"), Enhance: Bool(false),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Resolve(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, PresetSlow, p.Preset)
			assert.Equal(t, Scale1080p, p.Scale)
			assert.Equal(t, float64(60), p.FPS)
			assert.True(t, p.Enhance)
			assert.Equal(t, "clip_slow_1080p_60fps_enh.mp4", p.VariantName("clip"))
		})
	}
}

func TestResolve_HeavyFalseUsesGranularFields(t *testing.T) {
	p, err := Resolve(Params{Heavy: Text("false"), Preset: "fast", Scale: "720p", FPS: Text("30")})
	require.NoError(t, err)
	assert.Equal(t, "fast_720p_30fps", p.Tag())
}

func TestResolve_Coercion(t *testing.T) {
	tests := []struct {
		name string
		raw  Params
		want string
	}{
		{name: "unknown preset", raw: Params{Preset: "ultrafast"}, want: "medium"},
		{name: "unknown scale", raw: Params{Scale: "4k"}, want: "medium"},
		{name: "fps source", raw: Params{FPS: Text("source")}, want: "medium"},
		{name: "fps garbage", raw: Params{FPS: Text("fast")}, want: "medium"},
		{name: "fps zero", raw: Params{FPS: Text("0")}, want: "medium"},
		{name: "fps negative", raw: Params{FPS: Text("-5")}, want: "medium"},
		{name: "fps fractional", raw: Params{FPS: Text("29.97")}, want: "medium_29.97fps"},
		{name: "case folded", raw: Params{Preset: "SLOW", Scale: "720P"}, want: "slow_720p"},
		{name: "enhance", raw: Params{Enhance: Text("1")}, want: "medium_enh"},
		{name: "enhance false string", raw: Params{Enhance: Text("false")}, want: "medium"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Resolve(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Tag())
		})
	}
}

func TestResolve_UnsupportedFormat(t *testing.T) {
	_, err := Resolve(Params{Format: "mkv", Heavy: Bool(true)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrUnsupportedFormat))
}

func TestResolve_Deterministic(t *testing.T) {
	raw := Params{Format: "webm", Preset: "slow", Scale: "720p", FPS: Text("25"), Enhance: Bool(true)}
	a, err := Resolve(raw)
	require.NoError(t, err)
	b, err := Resolve(raw)
	require.NoError(t, err)

	assert.Equal(t, a.VariantName("clip"), b.VariantName("clip"))
	da, _ := a.Directives()
	db, _ := b.Directives()
	assert.Equal(t, da.Args("in", "out"), db.Args("in", "out"))
}

func TestVariantName_NoCollisions(t *testing.T) {
	seen := map[string]Profile{}
	for _, f := range Formats {
		for _, pr := range Presets {
			for _, sc := range Scales {
				for _, fps := range []float64{SourceFPS, 24, 30, 60} {
					for _, enh := range []bool{false, true} {
						p := Profile{Format: f, Preset: pr, Scale: sc, FPS: fps, Enhance: enh}
						name := p.VariantName("clip")
						if prev, dup := seen[name]; dup {
							t.Fatalf("%+v and %+v both named %q", prev, p, name)
						}
						seen[name] = p
					}
				}
			}
		}
	}
	assert.Len(t, seen, 3*3*3*4*2)
}

func TestParams_JSONDecoding(t *testing.T) {
	var raw Params
	body := `{"format":"webm","preset":"fast","fps":30,"enhance":"true","heavy":null}`
	require.NoError(t, json.Unmarshal([]byte(body), &raw))

	assert.Equal(t, "30", raw.FPS.String())
	assert.True(t, raw.Enhance.Truthy())
	assert.False(t, raw.Heavy.IsSet())

	p, err := Resolve(raw)
	require.NoError(t, err)
	assert.Equal(t, "clip_fast_30fps_enh.webm", p.VariantName("clip"))

	assert.Error(t, json.Unmarshal([]byte(`{"fps":[30]}`), &raw))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "video/mp4", Profile{Format: FormatMP4}.ContentType())
	assert.Equal(t, "video/webm", Profile{Format: FormatWebM}.ContentType())
	assert.Equal(t, "video/x-msvideo", Profile{Format: FormatAVI}.ContentType())
}
