package domain

import "fmt"

// Quality is the user-selected target resolution or audio-only mode
type Quality string

const (
	QualityBest      Quality = "best"
	Quality720p      Quality = "720p"
	Quality480p      Quality = "480p"
	Quality360p      Quality = "360p"
	QualityAudioOnly Quality = "audio-only"
)

var formatSelectors = map[Quality]string{
	QualityBest:      "best",
	Quality720p:      "best[height<=720]",
	Quality480p:      "best[height<=480]",
	Quality360p:      "best[height<=360]",
	QualityAudioOnly: "bestaudio",
}

// Labels used by the Korean desktop UI
var qualityAliases = map[string]Quality{
	"최고 품질": QualityBest,
	"오디오만":  QualityAudioOnly,
}

// Qualities returns every supported quality in display order
func Qualities() []Quality {
	return []Quality{QualityBest, Quality720p, Quality480p, Quality360p, QualityAudioOnly}
}

// ParseQuality maps a user-facing label to a Quality. Labels match exactly;
// case or surrounding whitespace variants are rejected.
func ParseQuality(s string) (Quality, error) {
	if q, ok := qualityAliases[s]; ok {
		return q, nil
	}
	q := Quality(s)
	if _, ok := formatSelectors[q]; !ok {
		return "", fmt.Errorf("%w: unsupported quality %q", ErrInvalidRequest, s)
	}
	return q, nil
}

// IsValid reports whether q is one of the supported qualities
func (q Quality) IsValid() bool {
	_, ok := formatSelectors[q]
	return ok
}

// FormatSelector returns the yt-dlp format expression for q, or an empty string for unknown values
func (q Quality) FormatSelector() string {
	return formatSelectors[q]
}
