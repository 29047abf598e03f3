// Package codec names the video and audio codecs found in fMP4 init segments.
package codec

import (
	"strings"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"
)

// Kind is the media type of a track.
type Kind string

// Track kinds.
const (
	KindVideo   Kind = "video"
	KindAudio   Kind = "audio"
	KindUnknown Kind = "unknown"
)

// Video represents a video codec.
type Video string

// Video codec constants.
const (
	VideoH264 Video = "h264"
	VideoH265 Video = "h265"
	VideoVP9  Video = "vp9"
	VideoAV1  Video = "av1"
)

// Audio represents an audio codec.
type Audio string

// Audio codec constants.
const (
	AudioAAC  Audio = "aac"
	AudioOpus Audio = "opus"
	AudioAC3  Audio = "ac3"
	AudioEAC3 Audio = "eac3"
	AudioMP3  Audio = "mp3"
)

func (v Video) String() string { return string(v) }
func (a Audio) String() string { return string(a) }

// Aliases seen in manifests, sample entries and tooling output.
var (
	videoAliases = map[string]Video{
		"h264": VideoH264, "avc": VideoH264, "avc1": VideoH264, "avc3": VideoH264,
		"h265": VideoH265, "hevc": VideoH265, "hvc1": VideoH265, "hev1": VideoH265,
		"vp9": VideoVP9, "vp09": VideoVP9,
		"av1": VideoAV1, "av01": VideoAV1,
	}
	audioAliases = map[string]Audio{
		"aac": AudioAAC, "mp4a": AudioAAC,
		"opus": AudioOpus,
		"ac3": AudioAC3, "ac-3": AudioAC3,
		"eac3": AudioEAC3, "ec-3": AudioEAC3,
		"mp3": AudioMP3, "mpeg1audio": AudioMP3,
	}
)

// baseName lowercases s and drops any RFC 6381 profile suffix
// ("avc1.64001f" -> "avc1").
func baseName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.IndexByte(s, '.'); i > 0 {
		s = s[:i]
	}
	return s
}

// ParseVideo resolves a codec name or alias to a Video codec.
func ParseVideo(s string) (Video, bool) {
	v, ok := videoAliases[baseName(s)]
	return v, ok
}

// ParseAudio resolves a codec name or alias to an Audio codec.
func ParseAudio(s string) (Audio, bool) {
	a, ok := audioAliases[baseName(s)]
	return a, ok
}

// Normalize returns the canonical name of a codec string, or the input
// unchanged when it is not recognized.
func Normalize(name string) string {
	if v, ok := ParseVideo(name); ok {
		return string(v)
	}
	if a, ok := ParseAudio(name); ok {
		return string(a)
	}
	return name
}

// FromMP4 names the codec of an fMP4 track.
func FromMP4(c mp4.Codec) (string, Kind) {
	switch c.(type) {
	case *mp4.CodecH264:
		return string(VideoH264), KindVideo
	case *mp4.CodecH265:
		return string(VideoH265), KindVideo
	case *mp4.CodecVP9:
		return string(VideoVP9), KindVideo
	case *mp4.CodecAV1:
		return string(VideoAV1), KindVideo
	case *mp4.CodecMPEG4Audio:
		return string(AudioAAC), KindAudio
	case *mp4.CodecOpus:
		return string(AudioOpus), KindAudio
	case *mp4.CodecAC3:
		return string(AudioAC3), KindAudio
	case *mp4.CodecEAC3:
		return string(AudioEAC3), KindAudio
	case *mp4.CodecMPEG1Audio:
		return string(AudioMP3), KindAudio
	default:
		return "unknown", KindUnknown
	}
}
