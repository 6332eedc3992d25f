package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/opencouncil/meeting-search/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, genModel, embedModel string, executor *resilience.Executor) *Client {
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

// Embedder implements ports.Embedder over /api/embed.
type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	request := map[string]any{
		"model": e.client.embedModel,
		"input": []string{text},
	}

	vector, err := resilience.ExecuteValue(ctx, e.client.executor, "ollama_embed",
		func(ctx context.Context) ([]float32, error) {
			var response struct {
				Embeddings [][]float32 `json:"embeddings"`
			}
			if err := e.client.postJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
				return nil, err
			}
			if len(response.Embeddings) == 0 || len(response.Embeddings[0]) == 0 {
				return nil, fmt.Errorf("empty embedding result")
			}
			return response.Embeddings[0], nil
		}, classifyOllamaError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("ollama embed", err)
	}
	return vector, nil
}

// Generator implements ports.Generator over /api/generate. JSON-mode calls
// set format:json so planner steps come back as a single object.
type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) GenerateFromPrompt(ctx context.Context, prompt string) (string, error) {
	return g.client.generate(ctx, map[string]any{
		"model":  g.client.genModel,
		"prompt": prompt,
		"stream": false,
	})
}

func (g *Generator) GenerateJSONFromPrompt(ctx context.Context, prompt string) (string, error) {
	raw, err := g.client.generate(ctx, map[string]any{
		"model":  g.client.genModel,
		"prompt": prompt,
		"stream": false,
		"format": "json",
	})
	if err != nil {
		return "", err
	}
	return extractJSONObject(raw), nil
}

func (c *Client) generate(ctx context.Context, reqBody map[string]any) (string, error) {
	text, err := resilience.ExecuteValue(ctx, c.executor, "ollama_generate",
		func(ctx context.Context) (string, error) {
			var response struct {
				Response string `json:"response"`
			}
			if err := c.postJSON(ctx, "/api/generate", reqBody, &response, "generate"); err != nil {
				return "", err
			}
			return strings.TrimSpace(response.Response), nil
		}, classifyOllamaError)
	if err != nil {
		return "", wrapTemporaryIfNeeded("ollama generate", err)
	}
	return text, nil
}

// extractJSONObject trims chatter around the outermost JSON object. Models
// in json mode still occasionally wrap the payload.
func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
