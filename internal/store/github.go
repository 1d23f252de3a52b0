package store

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// GitHubConfig identifies the repository backing the content store.
type GitHubConfig struct {
	BaseURL string // e.g. https://api.github.com
	Owner   string
	Repo    string
	Branch  string
	Token   string
}

// GitHubClient implements RemoteClient against the GitHub contents API. The
// blob sha returned by the API is the version token: a PUT carrying a stale
// sha is rejected by GitHub, which is surfaced as ErrConflict.
type GitHubClient struct {
	cfg        GitHubConfig
	httpClient *http.Client
}

// NewGitHubClient constructs a client with sane defaults.
func NewGitHubClient(cfg GitHubConfig) *GitHubClient {
	return &GitHubClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *GitHubClient) contentsURL(path string) string {
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s", c.cfg.BaseURL, c.cfg.Owner, c.cfg.Repo, path)
}

// Get fetches a file's content and blob sha. A 404 is a normal miss.
func (c *GitHubClient) Get(ctx context.Context, path string) ([]byte, string, bool, error) {
	url := c.contentsURL(path)
	if c.cfg.Branch != "" {
		url += "?ref=" + c.cfg.Branch
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", false, err
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, "", false, nil
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, "", false, fmt.Errorf("content store get %s: %s: %s", path, resp.Status, body)
	}

	var payload struct {
		Content string `json:"content"`
		SHA     string `json:"sha"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, "", false, err
	}

	// The API base64-encodes content with embedded newlines.
	decoded, err := base64.StdEncoding.DecodeString(stripNewlines(payload.Content))
	if err != nil {
		return nil, "", false, fmt.Errorf("content store get %s: decode content: %w", path, err)
	}
	return decoded, payload.SHA, true, nil
}

// Put creates or updates a file. An empty token creates; a stale token is
// reported as ErrConflict.
func (c *GitHubClient) Put(ctx context.Context, path string, content []byte, token string) (string, error) {
	payload := map[string]any{
		"message": fmt.Sprintf("Update %s", path),
		"content": base64.StdEncoding.EncodeToString(content),
	}
	if token != "" {
		payload["sha"] = token
	}
	if c.cfg.Branch != "" {
		payload["branch"] = c.cfg.Branch
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.contentsURL(path), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	// GitHub reports sha mismatches as 409, and as 422 on some paths.
	if resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusUnprocessableEntity {
		return "", ErrConflict
	}
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("content store put %s: %s: %s", path, resp.Status, data)
	}

	var result struct {
		Content struct {
			SHA string `json:"sha"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Content.SHA, nil
}

// List returns the file paths directly under prefix. A missing directory is
// an empty listing.
func (c *GitHubClient) List(ctx context.Context, prefix string) ([]string, error) {
	url := c.contentsURL(prefix)
	if c.cfg.Branch != "" {
		url += "?ref=" + c.cfg.Branch
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("content store list %s: %s: %s", prefix, resp.Status, body)
	}

	var entries []struct {
		Path string `json:"path"`
		Type string `json:"type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type == "file" {
			paths = append(paths, entry.Path)
		}
	}
	return paths, nil
}

func (c *GitHubClient) authorize(req *http.Request) {
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
}

func stripNewlines(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\n' && s[i] != '\r' {
			out = append(out, s[i])
		}
	}
	return string(out)
}
