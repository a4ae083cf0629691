package llm

import (
	"context"
	"net/http"
	"strings"
)

const defaultOllamaURL = "http://localhost:11434"

// ollamaClient talks to a local Ollama server.
type ollamaClient struct {
	httpClient  *http.Client
	baseURL     string
	model       string
	temperature float64
}

func newOllamaClient(cfg Config) (*ollamaClient, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	model := cfg.Model
	if model == "" {
		model = "llama3.2:3b"
	}
	return &ollamaClient{
		httpClient:  newHTTPClient(),
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       model,
		temperature: cfg.Temperature,
	}, nil
}

func (c *ollamaClient) modelName() string { return c.model }

func (c *ollamaClient) complete(ctx context.Context, system, prompt string) (string, error) {
	requestBody := map[string]any{
		"model":  c.model,
		"system": system,
		"prompt": prompt,
		"format": "json",
		"stream": false,
		"options": map[string]any{
			"temperature": c.temperature,
		},
	}

	var response struct {
		Response string `json:"response"`
		Done     bool   `json:"done"`
	}
	if err := postJSON(ctx, c.httpClient, c.baseURL+"/api/generate", nil, requestBody, &response); err != nil {
		return "", err
	}
	return response.Response, nil
}
