package classify

import (
	"errors"

	"github.com/nidhogg/clippy/internal/activity"
	"github.com/nidhogg/clippy/internal/jsonrepair"
)

// ErrNoLabel is returned when no classification field can be recovered.
var ErrNoLabel = errors.New("classify: no classification in response")

type verdict struct {
	Classification string   `json:"classification"`
	Confidence     *float64 `json:"confidence"`
}

// Parse turns raw model output into a Classification. Document-level decoding
// is tried first, then field-level extraction. Unknown labels map to normal
// with zero confidence.
func Parse(raw string) (Classification, error) {
	var v verdict
	if err := jsonrepair.Decode(raw, &v); err != nil || v.Classification == "" {
		label, ok := jsonrepair.StringField(raw, "classification")
		if !ok || label == "" {
			return FailClosed, ErrNoLabel
		}
		v = verdict{Classification: label}
		if conf, ok := jsonrepair.NumberField(raw, "confidence"); ok {
			v.Confidence = &conf
		}
	}
	return resolve(v), nil
}

func resolve(v verdict) Classification {
	label, ok := activity.ParseLabel(v.Classification)
	if !ok {
		return FailClosed
	}
	conf := DefaultConfidence
	if v.Confidence != nil {
		conf = *v.Confidence
	}
	return Classification{Label: label, Confidence: clamp(conf)}
}

func clamp(f float64) float64 {
	switch {
	case f != f: // NaN
		return 0
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
