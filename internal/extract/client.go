// internal/extract/client.go
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"rfp-pipeline/internal/common/config"
	commonerrors "rfp-pipeline/internal/common/errors"
	commonhttp "rfp-pipeline/internal/common/http"
	"rfp-pipeline/internal/common/logger"
	"rfp-pipeline/internal/models"
)

// Extractor turns a raw proposal email into structured fields.
type Extractor interface {
	ExtractProposal(ctx context.Context, rawEmail string) (json.RawMessage, error)
}

// Scorer produces a total score and rationale for one structured proposal
// against its request's structured form.
type Scorer interface {
	ScoreProposal(ctx context.Context, parsed, rfpStructured json.RawMessage) (*models.ScoreResult, error)
}

const (
	extractSystemPrompt = `You are an assistant that extracts structured proposal data from raw email text. Output ONLY valid JSON. Capture all relevant fields such as vendor name, cost, delivery timeline, quality metrics, support, reliability, compliance, business stability, and any other proposal details. If a value is missing, use null.`

	scoreSystemPrompt = `You are an expert evaluator. Score a vendor's proposal against an RFP. Use these metrics: 0. Requirements Fulfillment, 1. Cost & Financial, 2. Delivery & Timeline, 3. Quality (Defect Rate, Return Rate), 4. Service & Support, 5. Reliability (Failure Rate), 6. Compliance & Risk, 7. Business Stability (Years in Operation, Client Retention Rate). Output a JSON object with a score (0-100) for each metric, a totalScore, and a short recommendation_reason.`
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// ChatClient talks to an OpenAI-compatible chat completions endpoint and
// implements both collaborator roles.
type ChatClient struct {
	cfg  config.CollaboratorsConfig
	http *commonhttp.Client
	log  logger.Logger
}

func NewChatClient(cfg config.CollaboratorsConfig, log logger.Logger) *ChatClient {
	timeout := time.Duration(cfg.Timeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ChatClient{
		cfg:  cfg,
		http: commonhttp.NewClient(timeout),
		log:  log,
	}
}

func (c *ChatClient) ExtractProposal(ctx context.Context, rawEmail string) (json.RawMessage, error) {
	if strings.TrimSpace(rawEmail) == "" {
		return nil, commonerrors.NewExtractionFailedError(fmt.Errorf("raw email is empty"))
	}

	content, err := c.complete(ctx, []chatMessage{
		{Role: "system", Content: extractSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Extract all possible proposal fields from the following email and return as a JSON object.\n\n---\n%s\n---", rawEmail)},
	})
	if err != nil {
		return nil, commonerrors.NewExtractionFailedError(err)
	}

	doc := ExtractJSON(content)
	if doc == nil {
		c.log.Warn("Extraction output contained no JSON", map[string]interface{}{
			"output_length": len(content),
		})
		return nil, commonerrors.NewExtractionFailedError(fmt.Errorf("no JSON object in model output"))
	}
	if err := ValidateParsedProposal(doc); err != nil {
		return nil, commonerrors.NewExtractionFailedError(err)
	}
	return doc, nil
}

func (c *ChatClient) ScoreProposal(ctx context.Context, parsed, rfpStructured json.RawMessage) (*models.ScoreResult, error) {
	if len(parsed) == 0 {
		return nil, commonerrors.NewScoringFailedError(fmt.Errorf("parsed proposal is empty"))
	}

	rfpDoc := "null"
	if len(rfpStructured) > 0 {
		rfpDoc = string(rfpStructured)
	}

	content, err := c.complete(ctx, []chatMessage{
		{Role: "system", Content: scoreSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("RFP (structured):\n%s\n\nVendor Proposal (parsed):\n%s\n\nScore this proposal and explain.", rfpDoc, string(parsed))},
	})
	if err != nil {
		return nil, commonerrors.NewScoringFailedError(err)
	}

	doc := ExtractJSON(content)
	if doc == nil {
		return nil, commonerrors.NewScoringFailedError(fmt.Errorf("no JSON object in model output"))
	}

	var result models.ScoreResult
	if err := json.Unmarshal(doc, &result); err != nil {
		return nil, commonerrors.NewScoringFailedError(fmt.Errorf("malformed score payload: %w", err))
	}
	return &result, nil
}

func (c *ChatClient) complete(ctx context.Context, messages []chatMessage) (string, error) {
	reqBody := chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to encode completion request: %w", err)
	}

	url := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.DoWithContext(ctx, req)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read completion response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion endpoint returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("malformed completion response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("completion error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("completion response has no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
