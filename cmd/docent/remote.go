package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hyperjump/docent/internal/models"
	"github.com/hyperjump/docent/internal/rag"
)

// asker answers questions either in-process or through a running server.
type asker interface {
	Ask(ctx context.Context, question string) (*models.Answer, error)
}

type localAsker struct {
	session *rag.Session
}

func (l localAsker) Ask(ctx context.Context, question string) (*models.Answer, error) {
	req := models.QuestionRequest{Question: question}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return l.session.GenerateAnswer(ctx, req.Question), nil
}

// client talks to the HTTP API of "docent serve".
type client struct {
	baseURL string
	http    *http.Client
}

func newClient(baseURL string) *client {
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Minute},
	}
}

func (c *client) Ask(ctx context.Context, question string) (*models.Answer, error) {
	var ans models.Answer
	if err := c.do(ctx, http.MethodPost, "/api/v1/ask", models.QuestionRequest{Question: question}, &ans); err != nil {
		return nil, err
	}
	return &ans, nil
}

func (c *client) Load(ctx context.Context, path string) (*models.LoadStats, error) {
	var stats models.LoadStats
	if err := c.do(ctx, http.MethodPost, "/api/v1/documents", models.LoadRequest{Path: path}, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *client) Status(ctx context.Context) (*models.SystemInfo, error) {
	var info models.SystemInfo
	if err := c.do(ctx, http.MethodGet, "/api/v1/status", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(b, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
