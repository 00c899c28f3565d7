package types

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Label is the classifier's verdict for a post
type Label string

const (
	LabelFake    Label = "fake"
	LabelReal    Label = "real"
	LabelUnknown Label = "unknown"
)

// ParseLabel maps a raw label onto the known variants, falling back to LabelUnknown
func ParseLabel(s string) Label {
	switch Label(strings.ToLower(strings.TrimSpace(s))) {
	case LabelFake:
		return LabelFake
	case LabelReal:
		return LabelReal
	default:
		return LabelUnknown
	}
}

// UnknownModelVersion is used when the classifier does not report a model version
const UnknownModelVersion = "unknown"

// PostSnapshot is the extracted, fingerprinted content of one post
type PostSnapshot struct {
	Text        string   `json:"text"`
	Links       []string `json:"links"`
	Fingerprint string   `json:"fingerprint"`
}

// NewPostSnapshot builds a snapshot and computes its fingerprint
func NewPostSnapshot(text string, links []string) PostSnapshot {
	return PostSnapshot{
		Text:        text,
		Links:       links,
		Fingerprint: Fingerprint(text, links),
	}
}

// Fingerprint returns the hex SHA-256 of text and links joined by newlines
func Fingerprint(text string, links []string) string {
	h := sha256.Sum256([]byte(text + "\n" + strings.Join(links, "\n")))
	return hex.EncodeToString(h[:])
}

// ClassificationResult is a classifier verdict. Build it with NewClassificationResult
// so optional fields always carry their defaults.
type ClassificationResult struct {
	Label        Label    `json:"label"`
	ProbFake     float64  `json:"prob_fake"`
	ModelVersion string   `json:"model_version"`
	TopSignals   []string `json:"top_signals"`
}

// NewClassificationResult normalizes raw classifier fields into a result
func NewClassificationResult(label string, probFake float64, modelVersion string, signals []string) ClassificationResult {
	if probFake < 0 {
		probFake = 0
	}
	if probFake > 1 {
		probFake = 1
	}
	if modelVersion == "" {
		modelVersion = UnknownModelVersion
	}
	out := make([]string, len(signals))
	copy(out, signals)

	return ClassificationResult{
		Label:        ParseLabel(label),
		ProbFake:     probFake,
		ModelVersion: modelVersion,
		TopSignals:   out,
	}
}

// Confidence is the probability of the reported label: ProbFake for fake, 1-ProbFake otherwise
func (r ClassificationResult) Confidence() float64 {
	if r.Label == LabelFake {
		return r.ProbFake
	}
	return 1 - r.ProbFake
}

// FeedbackPayload is a user's correction of a verdict
type FeedbackPayload struct {
	Text         string           `json:"text"`
	OurLabel     Label            `json:"our_label"`
	UserLabel    Label            `json:"user_label"`
	ProbFake     float64          `json:"prob_fake"`
	ModelVersion string           `json:"model_version"`
	Signals      []string         `json:"signals"`
	Context      *FeedbackContext `json:"context,omitempty"`
}

// FeedbackContext is attached by the broker before the payload leaves the process
type FeedbackContext struct {
	TS int64 `json:"ts"`
}

// NewFeedbackPayload builds the correction for a scored result
func NewFeedbackPayload(text string, result ClassificationResult, userLabel Label) FeedbackPayload {
	signals := result.TopSignals
	if signals == nil {
		signals = []string{}
	}
	return FeedbackPayload{
		Text:         text,
		OurLabel:     result.Label,
		UserLabel:    userLabel,
		ProbFake:     result.ProbFake,
		ModelVersion: result.ModelVersion,
		Signals:      signals,
	}
}
