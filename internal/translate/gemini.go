package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	genai "google.golang.org/genai"

	"polyglot/internal/util/jsonutil"
)

const DefaultGeminiModel = "gemini-2.5-flash"

var ErrEmptyResponse = errors.New("translate: empty model response")

// GeminiTranslator asks a Gemini model for a JSON object of translations.
type GeminiTranslator struct {
	cli   *genai.Client
	model string
}

// NewGemini creates a client. An empty apiKey lets genai read it from the
// environment.
func NewGemini(ctx context.Context, apiKey, model string) (*GeminiTranslator, error) {
	if model == "" {
		model = DefaultGeminiModel
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	return &GeminiTranslator{cli: cli, model: model}, nil
}

func (g *GeminiTranslator) Name() string { return "Gemini:" + g.model }

func (g *GeminiTranslator) Translate(ctx context.Context, req Request) (map[string]string, error) {
	prompt, err := buildPrompt(req)
	if err != nil {
		return nil, &PermanentError{Err: err}
	}
	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	)
	if err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, ErrEmptyResponse
	}
	return parseResponse(resp.Candidates[0].Content.Parts[0].Text)
}

func buildPrompt(req Request) (string, error) {
	in, err := json.MarshalIndent(req.Texts, "", "  ")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`Translate the values of the JSON object below from %s to %s.
Keep every placeholder in curly braces, such as {name}, exactly as written.
Answer with a JSON object that has the same keys and the translated values.

[INPUT JSON]
%s`, req.SourceLanguageTag, req.TargetLanguageTag, in), nil
}

func parseResponse(text string) (map[string]string, error) {
	var out map[string]string
	if err := jsonutil.UnmarshalFlex([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("translate: decode model response: %w", err)
	}
	return out, nil
}
