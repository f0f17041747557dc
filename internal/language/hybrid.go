package language

import (
	"context"
	"log/slog"

	"github.com/ashureev/debatebot/internal/metrics"
	"github.com/ashureev/debatebot/internal/retry"
)

// DefaultThreshold is the heuristic confidence below which the secondary
// classifier is consulted.
const DefaultThreshold = 0.7

// Classifier is a secondary, usually remote, language classifier.
type Classifier interface {
	ClassifyLanguage(ctx context.Context, text string) (Language, error)
}

// Hybrid runs the heuristic and falls back to a Classifier when unsure.
type Hybrid struct {
	heuristic  *Heuristic
	classifier Classifier
	caller     *retry.Caller
	threshold  float64
	logger     *slog.Logger
}

// NewHybrid creates a Hybrid detector. A nil classifier makes it
// heuristic-only.
func NewHybrid(classifier Classifier, caller *retry.Caller, logger *slog.Logger) *Hybrid {
	if logger == nil {
		logger = slog.Default()
	}
	if caller == nil {
		caller = retry.NewCaller(retry.Config{MaxAttempts: 1}, nil, logger)
	}
	return &Hybrid{
		heuristic:  NewHeuristic(),
		classifier: classifier,
		caller:     caller,
		threshold:  DefaultThreshold,
		logger:     logger,
	}
}

// Detect implements Detector.
func (d *Hybrid) Detect(ctx context.Context, text string) Result {
	res := d.heuristic.detect(text)
	if res.Confidence >= d.threshold || d.classifier == nil || text == "" {
		metrics.LanguageDetections.WithLabelValues(string(res.Language), string(res.Source)).Inc()
		return res
	}

	d.logger.Debug("low confidence language detection, consulting classifier",
		"language", res.Language,
		"confidence", res.Confidence,
	)
	out := retry.Invoke(ctx, d.caller, "language", func(ctx context.Context) (Language, error) {
		return d.classifier.ClassifyLanguage(ctx, text)
	})
	if !out.OK {
		d.logger.Warn("language classifier failed, using heuristic", "error", out.Err, "class", out.Class)
		metrics.LanguageDetections.WithLabelValues(string(res.Language), string(res.Source)).Inc()
		return res
	}

	res = Result{Language: out.Value, Confidence: d.threshold, Source: SourceClassifier}
	metrics.LanguageDetections.WithLabelValues(string(res.Language), string(res.Source)).Inc()
	return res
}

var (
	_ Detector = (*Heuristic)(nil)
	_ Detector = (*Hybrid)(nil)
)
