package profile

// formatEntry describes how one container format is encoded. Quality holds
// the codec quality options keyed by preset.
type formatEntry struct {
	Muxer      string
	VideoCodec string
	AudioCodec string
	Quality    map[Preset][]string
	Extra      []string
}

var formatTable = map[Format]formatEntry{
	FormatMP4: {
		Muxer:      "mp4",
		VideoCodec: "libx264",
		AudioCodec: "aac",
		Quality: map[Preset][]string{
			PresetFast:   {"-preset", "fast", "-crf", "24"},
			PresetMedium: {"-preset", "medium", "-crf", "23"},
			PresetSlow:   {"-preset", "slow", "-crf", "21"},
		},
		Extra: []string{"-movflags", "+faststart"},
	},
	FormatWebM: {
		Muxer:      "webm",
		VideoCodec: "libvpx-vp9",
		AudioCodec: "libopus",
		Quality: map[Preset][]string{
			PresetFast:   {"-b:v", "0", "-crf", "34"},
			PresetMedium: {"-b:v", "0", "-crf", "32"},
			PresetSlow:   {"-b:v", "0", "-crf", "28"},
		},
	},
	FormatAVI: {
		Muxer:      "avi",
		VideoCodec: "mpeg4",
		AudioCodec: "mp3",
		Quality: map[Preset][]string{
			PresetFast:   {"-qscale:v", "5"},
			PresetMedium: {"-qscale:v", "4"},
			PresetSlow:   {"-qscale:v", "3"},
		},
	},
}

var scaleSizes = map[Scale]string{
	Scale1080p: "1920x1080",
	Scale720p:  "1280x720",
}

const enhanceFilter = "eq=brightness=0.02:contrast=1.08:gamma=1.04"

// Directives are the concrete encoder settings for a profile.
type Directives struct {
	Muxer       string
	VideoCodec  string
	AudioCodec  string
	Options     []string
	Size        string
	FrameRate   string
	VideoFilter string
}

// Directives looks up the encoder settings for p. ok is false when the
// format or preset has no table entry.
func (p Profile) Directives() (d Directives, ok bool) {
	entry, ok := formatTable[p.Format]
	if !ok {
		return Directives{}, false
	}
	quality, ok := entry.Quality[p.Preset]
	if !ok {
		return Directives{}, false
	}

	d = Directives{
		Muxer:      entry.Muxer,
		VideoCodec: entry.VideoCodec,
		AudioCodec: entry.AudioCodec,
		Options:    append(append([]string{}, quality...), entry.Extra...),
		Size:       scaleSizes[p.Scale],
	}
	if p.FPS != SourceFPS {
		d.FrameRate = formatFPS(p.FPS)
	}
	if p.Enhance {
		d.VideoFilter = enhanceFilter
	}
	return d, true
}

// Args renders the ffmpeg argument list that encodes input into output.
func (d Directives) Args(input, output string) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin", "-y", "-i", input,
		"-c:v", d.VideoCodec, "-c:a", d.AudioCodec}
	args = append(args, d.Options...)
	if d.Size != "" {
		args = append(args, "-s", d.Size)
	}
	if d.FrameRate != "" {
		args = append(args, "-r", d.FrameRate)
	}
	if d.VideoFilter != "" {
		args = append(args, "-vf", d.VideoFilter)
	}
	return append(args, "-f", d.Muxer, output)
}
