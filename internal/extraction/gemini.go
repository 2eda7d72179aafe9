package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const geminiTimeout = 30 * time.Second

// Gemini is the free-text Provider variant backed by Google Gemini. The
// model replies with text and the JSON object is located and decoded from
// it after the fact.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates a Gemini provider. An empty API key is a valid degraded
// state: the provider registers but every call reports it is not
// configured.
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		slog.Warn("Gemini API key not configured")
		return &Gemini{}, nil
	}
	if modelName == "" {
		modelName = "gemini-flash-latest"
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client: client,
		model:  client.GenerativeModel(modelName),
	}, nil
}

// Name returns the registry key for this provider.
func (g *Gemini) Name() string {
	return "gemini"
}

// ExtractReceipt sends the image and the shared prompt to Gemini and
// decodes the JSON object embedded in the text reply.
func (g *Gemini) ExtractReceipt(ctx context.Context, image []byte, mimeType string) (Document, error) {
	if g.client == nil {
		return nil, &NotConfiguredError{Provider: g.Name()}
	}

	ctx, cancel := context.WithTimeout(ctx, geminiTimeout)
	defer cancel()

	// genai.ImageData expects just the format suffix, e.g. "png"
	format := strings.TrimPrefix(strings.ToLower(mimeType), "image/")
	parts := []genai.Part{
		genai.ImageData(format, image),
		genai.Text(extractionPrompt),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, &UpstreamError{Provider: g.Name(), Err: err}
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		return nil, &RefusedError{
			Provider: g.Name(),
			Reason:   resp.PromptFeedback.BlockReason.String(),
		}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
			return nil, &RefusedError{Provider: g.Name(), Reason: resp.Candidates[0].FinishReason.String()}
		}
		return nil, &UpstreamError{Provider: g.Name(), Err: errors.New("empty response from model")}
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	doc, err := parseDocument(responseText.String())
	if err != nil {
		slog.Error("Gemini response was not parsable JSON", "error", err, "response", responseText.String())
		return nil, &UnparsableError{Provider: g.Name(), Raw: responseText.String()}
	}

	return doc, nil
}

// Close closes the Gemini client.
func (g *Gemini) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}
