package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Ollama vision models are slow, especially on CPU.
const ollamaTimeout = 120 * time.Second

// Ollama is a free-text Provider variant for locally hosted vision models.
// It needs no credential, so it is never in the not-configured state.
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllama creates an Ollama provider. Recommended vision models: llava,
// qwen2-vl:7b, bakllava.
func NewOllama(baseURL string, modelName string) *Ollama {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llava"
	}

	return &Ollama{
		baseURL: baseURL,
		model:   modelName,
		client: &http.Client{
			Timeout: ollamaTimeout,
		},
	}
}

// Name returns the registry key for this provider.
func (o *Ollama) Name() string {
	return "ollama"
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// ExtractReceipt sends the image and the shared prompt to Ollama's chat API
// and decodes the JSON object embedded in the text reply.
func (o *Ollama) ExtractReceipt(ctx context.Context, image []byte, mimeType string) (Document, error) {
	ctx, cancel := context.WithTimeout(ctx, ollamaTimeout)
	defer cancel()

	reqBody := ollamaChatRequest{
		Model:  o.model,
		Stream: false,
		Messages: []ollamaMessage{
			{
				Role:    "system",
				Content: "You are an expert at reading and extracting information from receipts and invoices. You must carefully read all text in images and extract accurate information.",
			},
			{
				Role:    "user",
				Content: extractionPrompt,
				Images:  []string{base64.StdEncoding.EncodeToString(image)},
			},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", o.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, &UpstreamError{Provider: o.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &UpstreamError{
			Provider: o.Name(),
			Err:      fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body)),
		}
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, &UpstreamError{Provider: o.Name(), Err: fmt.Errorf("decoding response: %w", err)}
	}

	text := strings.TrimSpace(chatResp.Message.Content)
	doc, err := parseDocument(text)
	if err != nil {
		slog.Error("Ollama response was not parsable JSON", "error", err, "response", text)
		return nil, &UnparsableError{Provider: o.Name(), Raw: text}
	}

	return doc, nil
}

// Close closes the Ollama provider (no-op for the HTTP client).
func (o *Ollama) Close() error {
	return nil
}
