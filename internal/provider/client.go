// Package provider calls AI providers through an OpenAI-compatible API and
// wraps those calls with recording and deterministic playback.
package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/replaykit/replayd/internal/errs"
)

// Client is a streaming client for an OpenAI-compatible chat completion API.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient creates a new provider client.
func NewClient(baseURL, apiKey, model string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// chatCompletionRequest is the OpenAI chat completion request body.
type chatCompletionRequest struct {
	Model          string                 `json:"model"`
	Messages       []chatMessage          `json:"messages"`
	Temperature    *float64               `json:"temperature,omitempty"`
	MaxTokens      *int                   `json:"max_tokens,omitempty"`
	Stream         bool                   `json:"stream,omitempty"`
	Tools          []Tool                 `json:"tools,omitempty"`
	ResponseFormat map[string]interface{} `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Tool is an OpenAI-style tool definition.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction is a function definition within a tool.
type ToolFunction struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Parameters  interface{} `json:"parameters,omitempty"`
}

type streamChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Delta *struct {
			Content string `json:"content"`
		} `json:"delta,omitempty"`
		FinishReason string `json:"finish_reason,omitempty"`
	} `json:"choices"`
	Usage *Usage `json:"usage,omitempty"`
}

type errorResponse struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Name identifies the provider in recording metadata.
func (c *Client) Name() string { return "openai-compatible" }

// Call sends a streaming chat completion for the request, forwarding each
// raw stream chunk to onEvent and aggregating the final result.
func (c *Client) Call(ctx context.Context, req Request, onEvent StreamFunc) (*Result, error) {
	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, errs.Wrap(errs.CodeProvider, "marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, errs.Wrap(errs.CodeProvider, "create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errs.Wrap(errs.CodeProvider, "send request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		var errResp errorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != nil {
			return nil, errs.New(errs.CodeProvider, "provider error [%d]: %s (type: %s)", resp.StatusCode, errResp.Error.Message, errResp.Error.Type)
		}
		return nil, errs.New(errs.CodeProvider, "provider error [%d]: %s", resp.StatusCode, string(respBody))
	}

	return c.readStream(ctx, resp.Body, onEvent)
}

func (c *Client) buildRequest(req Request) chatCompletionRequest {
	out := chatCompletionRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: req.Prompt}},
		Stream:   true,
		Tools:    req.Tools,
	}
	if m, ok := req.Options["model"].(string); ok && m != "" {
		out.Model = m
	}
	if t, ok := req.Options["temperature"].(float64); ok {
		out.Temperature = &t
	}
	if mt, ok := req.Options["max_tokens"].(float64); ok {
		n := int(mt)
		out.MaxTokens = &n
	}
	if len(req.Schema) > 0 {
		var schema interface{}
		if err := json.Unmarshal(req.Schema, &schema); err == nil {
			out.ResponseFormat = map[string]interface{}{
				"type":        "json_schema",
				"json_schema": schema,
			}
		}
	}
	return out
}

// readStream parses the provider's SSE stream. Each data line is forwarded
// verbatim to onEvent so recordings capture the exact wire bytes.
func (c *Client) readStream(ctx context.Context, body io.Reader, onEvent StreamFunc) (*Result, error) {
	reader := bufio.NewReader(body)
	result := &Result{}
	var text strings.Builder

	for {
		select {
		case <-ctx.Done():
			return nil, errs.Wrap(errs.CodeProvider, "stream cancelled", ctx.Err())
		default:
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, errs.Wrap(errs.CodeProvider, "read stream", err)
		}

		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Skip malformed chunks
			continue
		}

		if onEvent != nil {
			if err := onEvent(json.RawMessage(data)); err != nil {
				return nil, err
			}
		}

		if chunk.Model != "" {
			result.Model = chunk.Model
		}
		if chunk.Usage != nil {
			result.Usage = chunk.Usage
		}
		for _, choice := range chunk.Choices {
			if choice.Delta != nil {
				text.WriteString(choice.Delta.Content)
			}
		}
	}

	result.Text = text.String()
	return result, nil
}
