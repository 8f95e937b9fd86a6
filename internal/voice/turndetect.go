package voice

import (
	"regexp"
	"strings"
	"time"
)

// TurnDecision is the detector's judgement on one transcript snapshot: has
// the caller finished their turn, and how long should the agent hold before
// replying.
type TurnDecision struct {
	EndOfTurn  bool
	Reason     string
	Confidence float64
	Hold       time.Duration
}

const (
	turnHoldMin     = 40 * time.Millisecond
	turnHoldMax     = 900 * time.Millisecond
	turnHoldNeutral = 210 * time.Millisecond

	turnConfidenceUnknown = 0.55
	turnConfidenceCommit  = 0.50
)

var (
	// Cues that the sentence is still going. English function words plus the
	// Arabic connectives the hospitality and medical callers actually use.
	turnContinuationTailRe = regexp.MustCompile(`(?i)\b(and|but|because|so|then|which|that|if|when|while|as|to|for)\s*$|(و|ثم|لكن|لأن|إذا|عشان)\s*$`)
	turnContinuationHeadRe = regexp.MustCompile(`(?i)^(and|but|because|so|then)\b|^(و|ثم|لكن)\s`)
	turnContinuationPhrase = regexp.MustCompile(`(?i)\b(i mean|for example|for instance|in order to)\s*$`)
	turnTerminalTailRe     = regexp.MustCompile(`(?i)([.!?؟]["']?\s*$|\b(done|thanks|thank you|that's all|thats all)\s*$|(شكرا|خلاص|بس كذا)\s*$)`)
	turnOpenTailRe         = regexp.MustCompile(`[,;:،؛\-…]\s*$`)
)

// TurnDetector decides end of turn from transcript shape. It carries no
// per-session state and is shared across sessions like the VAD handle.
type TurnDetector struct{}

func NewTurnDetector() *TurnDetector { return &TurnDetector{} }

func (td *TurnDetector) Decide(transcript string, confidence float64, utteranceAge time.Duration) (TurnDecision, bool) {
	normalized := strings.TrimSpace(strings.ToLower(transcript))
	if normalized == "" {
		return TurnDecision{}, false
	}
	if confidence <= 0 || confidence > 1 {
		confidence = turnConfidenceUnknown
	}

	d := TurnDecision{
		Reason:     "neutral",
		Confidence: maxFloat(0.58, confidence),
		Hold:       turnHoldNeutral,
	}

	continuation := hasContinuationCue(normalized)
	terminal := hasTerminalCue(normalized)
	if continuation {
		d.Reason = "continuation"
		d.Confidence = maxFloat(d.Confidence, 0.86)
		d.Hold = 520 * time.Millisecond
	}
	if terminal {
		d.Reason = "terminal"
		d.Confidence = maxFloat(d.Confidence, 0.82)
		d.Hold = 90 * time.Millisecond
		d.EndOfTurn = confidence >= turnConfidenceCommit
	}

	if utteranceAge > 6*time.Second && !continuation {
		d.Reason = "long_utterance"
		d.Hold -= 70 * time.Millisecond
	}
	if utteranceAge > 0 && utteranceAge < 700*time.Millisecond {
		d.Hold += 110 * time.Millisecond
		if d.Reason == "neutral" {
			d.Reason = "short_utterance"
		}
	}
	if confidence < 0.45 {
		d.Hold += 140 * time.Millisecond
		d.Confidence = minFloat(d.Confidence, 0.62)
		d.EndOfTurn = false
		if d.Reason == "neutral" || d.Reason == "terminal" {
			d.Reason = "low_confidence"
		}
	}

	d.Hold = clampDuration(d.Hold, turnHoldMin, turnHoldMax)
	d.Confidence = clampFloat(d.Confidence, 0.05, 0.99)
	return d, true
}

func hasContinuationCue(normalized string) bool {
	if turnOpenTailRe.MatchString(normalized) {
		return true
	}
	if turnContinuationHeadRe.MatchString(normalized) {
		return true
	}
	if turnContinuationTailRe.MatchString(normalized) {
		return true
	}
	return turnContinuationPhrase.MatchString(normalized)
}

func hasTerminalCue(normalized string) bool {
	if turnOpenTailRe.MatchString(normalized) {
		return false
	}
	return turnTerminalTailRe.MatchString(normalized)
}

func clampDuration(v, min, max time.Duration) time.Duration {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
