// Package video submits avatar-video scripts and tracks them to completion
// in the background.
package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusGenerating Status = "generating"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "generating", "processing", "rendering":
		return StatusGenerating
	case "completed", "complete", "done", "ready":
		return StatusCompleted
	case "failed", "error":
		return StatusFailed
	default:
		return StatusPending
	}
}

// Job is the provider's view of one render.
type Job struct {
	ID          string `json:"id"`
	Status      Status `json:"status"`
	DownloadURL string `json:"download_url,omitempty"`
}

type Provider interface {
	Submit(ctx context.Context, script, personaID string) (Job, error)
	Status(ctx context.Context, jobID string) (Job, error)
}

// HTTPProvider talks to a REST avatar-video service.
type HTTPProvider struct {
	BaseURL string
	APIKey  string
	client  *http.Client
}

func NewHTTPProvider(baseURL, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type apiJob struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	DownloadURL string `json:"download_url"`
}

func (p *HTTPProvider) Submit(ctx context.Context, script, personaID string) (Job, error) {
	body, err := json.Marshal(map[string]string{
		"script":     script,
		"persona_id": personaID,
	})
	if err != nil {
		return Job{}, fmt.Errorf("marshal video request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/videos", bytes.NewReader(body))
	if err != nil {
		return Job{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	j, err := p.do(req)
	if err != nil {
		return Job{}, fmt.Errorf("submit video: %w", err)
	}
	if j.ID == "" {
		return Job{}, errors.New("submit video: provider returned no job id")
	}
	return j, nil
}

func (p *HTTPProvider) Status(ctx context.Context, jobID string) (Job, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"/videos/"+url.PathEscape(jobID), nil)
	if err != nil {
		return Job{}, fmt.Errorf("create request: %w", err)
	}
	j, err := p.do(req)
	if err != nil {
		return Job{}, fmt.Errorf("video status: %w", err)
	}
	if j.ID == "" {
		j.ID = jobID
	}
	return j, nil
}

func (p *HTTPProvider) do(req *http.Request) (Job, error) {
	if p.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return Job{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return Job{}, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out apiJob
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Job{}, fmt.Errorf("decode response: %w", err)
	}
	return Job{ID: out.ID, Status: ParseStatus(out.Status), DownloadURL: out.DownloadURL}, nil
}
