package classifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ibeckermayer/fauxpost/internal/config"
	"github.com/ibeckermayer/fauxpost/internal/types"
)

// DefaultAnthropicModel is used when the record names no model
const DefaultAnthropicModel = "claude-sonnet-4-20250514"

// predictAnthropic asks Claude for a fake probability and labels it against the threshold
func (c *Client) predictAnthropic(ctx context.Context, cfg config.Classifier, text string) (types.ClassificationResult, error) {
	model := cfg.Model
	if model == "" {
		model = DefaultAnthropicModel
	}

	// retries are the user's call, like every other predict failure
	opts := append([]option.RequestOption{option.WithAPIKey(cfg.Credential), option.WithMaxRetries(0)}, c.anthropicOpts...)
	client := anthropic.NewClient(opts...)

	prompt := buildPrompt(text)

	// Prefill "{" so the reply continues a JSON object
	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 512,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			anthropic.NewAssistantMessage(anthropic.NewTextBlock("{")),
		},
	})
	if err != nil {
		c.dump(ctx, cfg, "anthropic", prompt, "", 0, err)
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return types.ClassificationResult{}, &RemoteRejectionError{Op: "predict", StatusCode: apiErr.StatusCode, Body: apiErr.Error()}
		}
		return types.ClassificationResult{}, &NetworkError{Op: "predict", URL: "anthropic", Err: err}
	}

	var responseText string
	for _, block := range message.Content {
		if block.Type == "text" {
			responseText = block.Text
			break
		}
	}
	c.dump(ctx, cfg, "anthropic", prompt, responseText, 200, nil)

	if responseText == "" {
		return types.ClassificationResult{}, fmt.Errorf("Claude returned empty response")
	}

	// Prepend "{" since we used prefilling
	return parseVerdict([]byte("{"+responseText), cfg.Threshold, model)
}
