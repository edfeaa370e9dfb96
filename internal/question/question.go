/*
Copyright © 2026 juizo-game
*/

// Package question wraps the external text-generation service behind a
// narrow interface. Generation may fail or come back empty; callers always
// fall back to a deterministic question, so players never see an error.
package question

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Generator produces one third-person question about targetName within the
// given category.
type Generator interface {
	Generate(ctx context.Context, category, targetName string) (string, error)
}

// Func adapts a plain function to the Generator interface.
type Func func(ctx context.Context, category, targetName string) (string, error)

func (f Func) Generate(ctx context.Context, category, targetName string) (string, error) {
	return f(ctx, category, targetName)
}

// Fallback is the question used whenever generation fails or returns empty.
func Fallback(targetName string) string {
	return fmt.Sprintf("O que %s faria em uma situação de emergência?", targetName)
}

// Resolve runs the generator and degrades to the fallback on any error or
// empty result. A nil generator yields the fallback directly.
func Resolve(ctx context.Context, g Generator, category, targetName string) string {
	if g == nil {
		return Fallback(targetName)
	}

	text, err := g.Generate(ctx, category, targetName)
	if err != nil || strings.TrimSpace(text) == "" {
		return Fallback(targetName)
	}

	return strings.ReplaceAll(text, `"`, "")
}

// HTTPGenerator calls a question-generation endpoint with a JSON request
// {"category": ..., "target": ...} and expects {"question": ...} back.
type HTTPGenerator struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

func NewHTTPGenerator(endpoint, apiKey string) *HTTPGenerator {
	return &HTTPGenerator{
		Endpoint: endpoint,
		APIKey:   apiKey,
		Client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (g *HTTPGenerator) Generate(ctx context.Context, category, targetName string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"category": category,
		"target":   targetName,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.APIKey)
	}

	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("question service returned %s", resp.Status)
	}

	var out struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}

	return out.Question, nil
}
