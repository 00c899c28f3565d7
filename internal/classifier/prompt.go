package classifier

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ibeckermayer/fauxpost/internal/types"
)

// predictResponse is the body the remote classifier answers /predict with
type predictResponse struct {
	Label        string   `json:"label"`
	ProbFake     *float64 `json:"prob_fake"`
	ModelVersion string   `json:"model_version"`
	TopSignals   []string `json:"top_signals"`
}

// parsePredictResponse turns a /predict body into a result. A missing label
// becomes unknown; a missing probability reads as 0.
func parsePredictResponse(body []byte) (types.ClassificationResult, error) {
	var r predictResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return types.ClassificationResult{}, fmt.Errorf("failed to parse classifier JSON: %w (response was: %.500s)", err, string(body))
	}
	var p float64
	if r.ProbFake != nil {
		p = *r.ProbFake
	}
	return types.NewClassificationResult(r.Label, p, r.ModelVersion, r.TopSignals), nil
}

// llmVerdict is what the LLM backend is asked to produce
type llmVerdict struct {
	ProbFake float64  `json:"prob_fake"`
	Signals  []string `json:"signals"`
}

// buildPrompt constructs the LLM prompt for judging one post
func buildPrompt(text string) string {
	var sb strings.Builder

	sb.WriteString("You are reviewing a single LinkedIn post and estimating how likely it is to be fake.\n")
	sb.WriteString("Fake here means fabricated stories, engagement bait presented as personal experience, ")
	sb.WriteString("scams, or AI-generated filler posing as first-hand content.\n\n")

	sb.WriteString("## Post\n")
	sb.WriteString(text)
	sb.WriteString("\n\n")

	sb.WriteString("## Response Format\n")
	sb.WriteString("Respond with a single JSON object and nothing else:\n")
	sb.WriteString(`{"prob_fake": <number between 0 and 1>, "signals": [<up to 5 short phrases that drove the estimate>]}`)
	sb.WriteString("\n")

	return sb.String()
}

// parseVerdict decodes the LLM output and labels it against threshold
func parseVerdict(raw []byte, threshold float64, model string) (types.ClassificationResult, error) {
	var v llmVerdict
	if err := json.Unmarshal(raw, &v); err != nil {
		return types.ClassificationResult{}, fmt.Errorf("failed to parse verdict JSON: %w (response was: %.500s)", err, string(raw))
	}
	label := types.LabelReal
	if v.ProbFake >= threshold {
		label = types.LabelFake
	}
	if len(v.Signals) > 5 {
		v.Signals = v.Signals[:5]
	}
	return types.NewClassificationResult(string(label), v.ProbFake, model, v.Signals), nil
}
