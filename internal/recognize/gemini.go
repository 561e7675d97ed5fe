package recognize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const cardPrompt = `
You are reading a photo of a single collectible trading card.

Extract exactly these fields and return ONLY a JSON object, no prose:
{
  "name": "card name as printed",
  "number": "collector number, e.g. 025 or 4/102",
  "set_code": "set abbreviation if visible, e.g. BS, NEO, SWSH1",
  "set_name": "full set name if identifiable",
  "confidence": 0.0-1.0
}

If a field is not readable, use an empty string. Never invent a set code.
`

// GeminiProvider recognizes cards with the Gemini vision API
type GeminiProvider struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiProvider creates a Gemini-backed recognition provider
func NewGeminiProvider(ctx context.Context, apiKey, modelName string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is empty")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	if modelName == "" {
		modelName = "gemini-2.0-flash"
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0)

	return &GeminiProvider{client: client, model: model}, nil
}

// Close closes the client connection
func (p *GeminiProvider) Close() {
	if p.client != nil {
		p.client.Close()
	}
}

func (p *GeminiProvider) Code() string { return "gemini" }

// Recognize sends the image plus the extraction prompt and parses the JSON reply
func (p *GeminiProvider) Recognize(ctx context.Context, image []byte, filename string) (*Guess, error) {
	resp, err := p.model.GenerateContent(ctx,
		genai.ImageData(imageFormat(filename), image),
		genai.Text(cardPrompt),
	)
	if err != nil {
		return nil, fmt.Errorf("gemini generation error: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("empty response from gemini")
	}

	var fullText string
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			fullText += string(txt)
		}
	}

	guess, err := parseGuessJSON(fullText)
	if err != nil {
		return nil, fmt.Errorf("unparseable gemini reply: %w", err)
	}
	return guess, nil
}

// parseGuessJSON tolerates markdown code fences around the JSON object
func parseGuessJSON(raw string) (*Guess, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var guess Guess
	if err := json.Unmarshal([]byte(raw), &guess); err != nil {
		return nil, err
	}
	return &guess, nil
}

// imageFormat maps the upload's extension to a genai image format string
func imageFormat(filename string) string {
	name := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(name, ".png"):
		return "png"
	case strings.HasSuffix(name, ".webp"):
		return "webp"
	default:
		return "jpeg"
	}
}
