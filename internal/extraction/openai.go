package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const openAITimeout = 60 * time.Second

// receiptSchema is the strict JSON schema passed to OpenAI so the backend
// is contractually limited to emitting conforming output: string-or-null
// scalars, number-or-null amounts, and an array of {name, cost} items.
const receiptSchema = `{
  "type": "object",
  "properties": {
    "vendorName": {"type": ["string", "null"]},
    "date": {"type": ["string", "null"]},
    "currency": {
      "type": ["string", "null"],
      "description": "3-character ISO 4217 currency code (e.g. USD)"
    },
    "total": {"type": ["number", "null"]},
    "gst": {"type": ["number", "null"]},
    "items": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string"},
          "cost": {"type": "number"}
        },
        "required": ["name", "cost"],
        "additionalProperties": false
      }
    }
  },
  "required": ["vendorName", "date", "currency", "total", "gst", "items"],
  "additionalProperties": false
}`

// OpenAI is the schema-constrained Provider variant. It talks to the chat
// completions API directly and receives already-structured output.
type OpenAI struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// NewOpenAI creates an OpenAI provider. baseURL overrides the API endpoint
// for tests and compatible gateways; empty means api.openai.com. An empty
// API key leaves the provider registered but unconfigured.
func NewOpenAI(apiKey, baseURL, modelName string) *OpenAI {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if modelName == "" {
		modelName = "gpt-4o"
	}
	if apiKey == "" {
		slog.Warn("OpenAI API key not configured")
	}

	return &OpenAI{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   modelName,
		client: &http.Client{
			Timeout: openAITimeout,
		},
	}
}

// Name returns the registry key for this provider.
func (o *OpenAI) Name() string {
	return "openai"
}

type openAIContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type openAIRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat json.RawMessage `json:"response_format"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
	} `json:"choices"`
}

// ExtractReceipt sends the image to the chat completions API with the
// strict receipt schema and decodes the structured reply. An explicit
// refusal from the model is surfaced distinctly from a parse failure.
func (o *OpenAI) ExtractReceipt(ctx context.Context, image []byte, mimeType string) (Document, error) {
	if o.apiKey == "" {
		return nil, &NotConfiguredError{Provider: o.Name()}
	}

	ctx, cancel := context.WithTimeout(ctx, openAITimeout)
	defer cancel()

	imagePart := openAIContentPart{Type: "image_url"}
	imagePart.ImageURL = &struct {
		URL string `json:"url"`
	}{
		URL: fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image)),
	}

	responseFormat := fmt.Sprintf(`{
  "type": "json_schema",
  "json_schema": {
    "name": "extracted_receipt",
    "strict": true,
    "schema": %s
  }
}`, receiptSchema)

	reqBody := openAIRequest{
		Model: o.model,
		Messages: []openAIMessage{
			{
				Role:    "system",
				Content: "Extract receipt information from the provided image. Use the supplied schema to structure your response.",
			},
			{
				Role:    "user",
				Content: []openAIContentPart{imagePart},
			},
		},
		MaxTokens:      1000,
		ResponseFormat: json.RawMessage(responseFormat),
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := o.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, &UpstreamError{Provider: o.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &UpstreamError{
			Provider: o.Name(),
			Err:      fmt.Errorf("openai API error (status %d): %s", resp.StatusCode, string(body)),
		}
	}

	var chatResp openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, &UpstreamError{Provider: o.Name(), Err: fmt.Errorf("decoding response: %w", err)}
	}
	if len(chatResp.Choices) == 0 {
		return nil, &UpstreamError{Provider: o.Name(), Err: errors.New("empty response from model")}
	}

	choice := chatResp.Choices[0]
	if choice.Message.Refusal != "" {
		slog.Error("OpenAI model refused to extract receipt", "refusal", choice.Message.Refusal)
		return nil, &RefusedError{Provider: o.Name(), Reason: choice.Message.Refusal}
	}
	if choice.Message.Content == "" {
		return nil, &UpstreamError{Provider: o.Name(), Err: errors.New("empty message content")}
	}

	var doc Document
	if err := json.Unmarshal([]byte(choice.Message.Content), &doc); err != nil {
		slog.Error("OpenAI response was not parsable JSON", "error", err, "response", choice.Message.Content)
		return nil, &UnparsableError{Provider: o.Name(), Raw: choice.Message.Content}
	}

	return doc, nil
}

// Close closes the OpenAI provider (no-op for the HTTP client).
func (o *OpenAI) Close() error {
	return nil
}
