package risk

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cbt-coach/internal/agent"
)

// Tier names the source of the merged verdict's label and reasoning.
type Tier string

const (
	TierKeyword    Tier = "keyword"
	TierClassifier Tier = "classifier"
)

// Verdict is the authoritative risk judgment for one turn.
type Verdict struct {
	Level           Level
	RiskType        string
	MatchedKeywords []string
	// Confidence is set only when the classifier answered.
	Confidence *float64
	Reasoning  string
	Source     Tier

	KeywordLevel    Level
	ClassifierLevel Level
	// ClassifierErr is the classifier failure that forced the fail-safe floor, if any.
	ClassifierErr error
}

// Degraded reports whether the classifier tier failed for this verdict.
func (v Verdict) Degraded() bool { return v.ClassifierErr != nil }

// Evaluator merges the keyword and classifier tiers. The classifier runs on
// every message; it is never gated on the keyword result.
type Evaluator struct {
	classifier *Classifier
	logger     *slog.Logger
}

func NewEvaluator(c *Classifier, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{classifier: c, logger: logger}
}

// Evaluate runs the classifier and merges it with the keyword scan. Severity
// is the maximum of the two tiers. A classifier failure counts as a medium
// signal for this turn.
func (e *Evaluator) Evaluate(ctx context.Context, scan ScanResult, in ClassifyInput) Verdict {
	in.Keywords = scan.Keywords()

	v := Verdict{
		MatchedKeywords: in.Keywords,
		KeywordLevel:    scan.Level,
	}

	llm, err := e.classifier.Classify(ctx, in)
	if err != nil {
		e.logger.WarnContext(ctx, "risk classifier degraded, applying medium floor",
			"error", err,
			"timeout", agent.IsTimeout(err),
			"keyword_level", scan.Level.String())
		llm = Assessment{
			Level:     LevelMedium,
			Reasoning: fmt.Sprintf("classifier unavailable (%v); fail-safe medium applied", err),
		}
		v.ClassifierErr = err
	} else {
		conf := llm.Confidence
		v.Confidence = &conf
	}
	v.ClassifierLevel = llm.Level

	// Ties go to the classifier for its richer reasoning.
	if scan.Level > llm.Level {
		v.Level = scan.Level
		v.Source = TierKeyword
		v.RiskType = string(scan.Category)
		v.Reasoning = "keyword match: " + strings.Join(in.Keywords, ", ")
		return v
	}

	v.Level = llm.Level
	v.Source = TierClassifier
	v.RiskType = llm.RiskType
	v.Reasoning = llm.Reasoning
	if v.RiskType == "" && scan.Level == llm.Level && scan.Category != "" {
		v.RiskType = string(scan.Category)
	}
	return v
}
