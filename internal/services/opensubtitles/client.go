// Package opensubtitles resolves subtitles through the OpenSubtitles REST API.
package opensubtitles

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/subtis/internal/config"
	"github.com/amaumene/subtis/internal/models"
	"github.com/amaumene/subtis/internal/parser"
	"github.com/amaumene/subtis/internal/subtitles"
)

const userAgent = "subtis v1.0"

// SearchResponse is returned by GET /subtitles
type SearchResponse struct {
	TotalCount int            `json:"total_count"`
	Data       []SubtitleItem `json:"data"`
}

// SubtitleItem is one subtitle entry of a search
type SubtitleItem struct {
	ID         string             `json:"id"`
	Attributes SubtitleAttributes `json:"attributes"`
}

// SubtitleAttributes holds the descriptive fields of a subtitle
type SubtitleAttributes struct {
	Language string `json:"language"`
	Release  string `json:"release"`
	Files    []File `json:"files"`
}

// File is a downloadable file of a subtitle entry
type File struct {
	FileID   int    `json:"file_id"`
	FileName string `json:"file_name"`
}

type downloadRequest struct {
	FileID int `json:"file_id"`
}

// DownloadResponse is returned by POST /download
type DownloadResponse struct {
	Link      string `json:"link"`
	FileName  string `json:"file_name"`
	Remaining int    `json:"remaining"`
}

// Client resolves candidates from OpenSubtitles
type Client struct {
	baseURL    string
	apiKey     string
	username   string
	password   string
	language   string
	tokenStore TokenStore
	tokenMu    sync.Mutex
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a new OpenSubtitles client. Login is used only when a
// username is configured.
func NewClient(cfg *config.Config, logger *logrus.Logger) (*Client, error) {
	if cfg.OpenSubtitlesBaseURL == "" {
		return nil, fmt.Errorf("opensubtitles base URL is required")
	}
	if cfg.OpenSubtitlesAPIKey == "" {
		return nil, fmt.Errorf("opensubtitles API key is required")
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.OpenSubtitlesBaseURL, "/"),
		apiKey:     cfg.OpenSubtitlesAPIKey,
		username:   cfg.OpenSubtitlesUsername,
		password:   cfg.OpenSubtitlesPassword,
		language:   cfg.SubtitleLanguage,
		tokenStore: NewFileTokenStore(cfg.TokenFile),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}, nil
}

// Name returns the subtitle group this client feeds
func (c *Client) Name() string {
	return models.SubtitleGroupOpenSubtitles
}

// Resolve searches by catalog id. The first entry whose release mentions the
// release group and resolution wins, then the first with the resolution.
func (c *Client) Resolve(ctx context.Context, identity *parser.MovieIdentity, externalID string) (*subtitles.Candidate, error) {
	digits := parser.ExternalIDDigits(externalID)
	if digits == "" {
		return nil, subtitles.NewNoMatch(c.Name(), "no catalog id for %s", identity.FileName)
	}

	params := url.Values{}
	params.Set("imdb_id", digits)
	params.Set("languages", c.language)

	var search SearchResponse
	if err := c.doRequest(ctx, http.MethodGet, "/subtitles", params, nil, &search); err != nil {
		return nil, subtitles.NewUpstreamError(c.Name(), err)
	}

	file, ok := pickFile(search.Data, identity)
	if !ok {
		return nil, subtitles.NewNoMatch(c.Name(), "no subtitle for %s %s among %d", identity.ReleaseGroup, identity.Resolution, len(search.Data))
	}

	var download DownloadResponse
	if err := c.doRequest(ctx, http.MethodPost, "/download", nil, downloadRequest{FileID: file.FileID}, &download); err != nil {
		return nil, subtitles.NewUpstreamError(c.Name(), err)
	}
	if download.Link == "" {
		return nil, subtitles.NewUnsupportedContent(c.Name(), "download returned no link for file %d", file.FileID)
	}

	c.logger.WithFields(logrus.Fields{
		"file_name": identity.FileName,
		"file_id":   file.FileID,
		"remaining": download.Remaining,
	}).Debug("OpenSubtitles file selected")

	candidate := subtitles.NewCandidate(identity, c.Name(), download.Link, subtitles.KindPlaintext)
	return &candidate, nil
}

func pickFile(items []SubtitleItem, identity *parser.MovieIdentity) (File, bool) {
	releaseGroup := strings.ToLower(identity.ReleaseGroup)
	resolution := strings.ToLower(strings.TrimSuffix(identity.Resolution, ".3D"))

	var fallback *File
	for i := range items {
		attrs := items[i].Attributes
		if len(attrs.Files) == 0 {
			continue
		}
		release := strings.ToLower(attrs.Release)
		if !strings.Contains(release, resolution) {
			continue
		}
		if strings.Contains(release, releaseGroup) {
			return attrs.Files[0], true
		}
		if fallback == nil {
			fallback = &attrs.Files[0]
		}
	}

	if fallback != nil {
		return *fallback, true
	}
	return File{}, false
}

// doRequest performs an API request with the key and, when configured, the bearer token
func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}
	c.logger.WithFields(logrus.Fields{
		"method": method,
		"url":    fullURL,
	}).Debug("Making OpenSubtitles API request")

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Api-Key", c.apiKey)

	if path != "/login" {
		token, err := c.bearerToken(ctx)
		if err != nil {
			return fmt.Errorf("failed to ensure valid token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
