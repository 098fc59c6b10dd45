// Package subdivx scrapes the SubDivX search page for release subtitles.
package subdivx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/subtis/internal/config"
	"github.com/amaumene/subtis/internal/models"
	"github.com/amaumene/subtis/internal/parser"
	"github.com/amaumene/subtis/internal/subtitles"
)

const (
	userAgent       = "subtis/1.0"
	maxSearchPage   = 2 * 1024 * 1024
	titlePrefix     = "subtitulos de "
	minTitleSlack   = 3
	titleSlackRatio = 10 // allowed distance is len/ratio, at least minTitleSlack
)

// Client resolves candidates from SubDivX
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a new SubDivX client
func NewClient(cfg *config.Config, logger *logrus.Logger) (*Client, error) {
	if cfg.SubDivXBaseURL == "" {
		return nil, fmt.Errorf("subdivx base URL is required")
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.SubDivXBaseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}, nil
}

// Name returns the subtitle group this client feeds
func (c *Client) Name() string {
	return models.SubtitleGroupSubDivX
}

// Resolve searches by "Name (Year)" and returns the first result whose title
// is close to the searched name and whose description mentions both the
// release group and the resolution.
func (c *Client) Resolve(ctx context.Context, identity *parser.MovieIdentity, _ string) (*subtitles.Candidate, error) {
	results, err := c.search(ctx, identity.SearchableName)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, subtitles.NewNoMatch(c.Name(), "no results for %q", identity.SearchableName)
	}

	result, ok := pickResult(results, identity)
	if !ok {
		return nil, subtitles.NewNoMatch(c.Name(), "no result for %s %s among %d", identity.ReleaseGroup, identity.Resolution, len(results))
	}

	finalURL, err := c.resolveDownload(ctx, result.DownloadLink)
	if err != nil {
		return nil, err
	}

	kind, err := subtitles.ContainerKindFromExtension(finalURL)
	if err != nil {
		return nil, subtitles.NewUnsupportedContent(c.Name(), "%v", err)
	}

	c.logger.WithFields(logrus.Fields{
		"file_name": identity.FileName,
		"title":     result.Title,
		"link":      finalURL,
	}).Debug("SubDivX result selected")

	candidate := subtitles.NewCandidate(identity, c.Name(), finalURL, kind)
	return &candidate, nil
}

func (c *Client) search(ctx context.Context, query string) ([]SearchResult, error) {
	searchURL, err := url.Parse(c.baseURL + "/index.php")
	if err != nil {
		return nil, subtitles.NewUpstreamError(c.Name(), fmt.Errorf("invalid subdivx URL: %w", err))
	}
	params := url.Values{}
	params.Set("buscar2", query)
	params.Set("accion", "5")
	searchURL.RawQuery = params.Encode()

	c.logger.WithField("url", searchURL.String()).Debug("Performing SubDivX search")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL.String(), nil)
	if err != nil {
		return nil, subtitles.NewUpstreamError(c.Name(), fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, subtitles.NewUpstreamError(c.Name(), fmt.Errorf("search request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, subtitles.NewUpstreamError(c.Name(), fmt.Errorf("search returned status %d", resp.StatusCode))
	}

	results, err := parseSearchPage(io.LimitReader(resp.Body, maxSearchPage), c.baseURL)
	if err != nil {
		return nil, subtitles.NewUnsupportedContent(c.Name(), "failed to parse search page: %v", err)
	}
	return results, nil
}

// resolveDownload follows the download redirect and returns the final archive URL
func (c *Client) resolveDownload(ctx context.Context, link string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, link, nil)
	if err != nil {
		return "", subtitles.NewUpstreamError(c.Name(), fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", subtitles.NewUpstreamError(c.Name(), fmt.Errorf("download link request failed: %w", err))
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", subtitles.NewUpstreamError(c.Name(), fmt.Errorf("download link returned status %d", resp.StatusCode))
	}
	return resp.Request.URL.String(), nil
}

func pickResult(results []SearchResult, identity *parser.MovieIdentity) (SearchResult, bool) {
	want := strings.ToLower(identity.SearchableName)
	slack := len(want) / titleSlackRatio
	if slack < minTitleSlack {
		slack = minTitleSlack
	}

	releaseGroup := strings.ToLower(identity.ReleaseGroup)
	resolution := strings.ToLower(strings.TrimSuffix(identity.Resolution, ".3D"))

	for _, r := range results {
		title := strings.TrimPrefix(strings.ToLower(r.Title), titlePrefix)
		if levenshtein.ComputeDistance(title, want) > slack {
			continue
		}
		description := strings.ToLower(r.Description)
		if strings.Contains(description, releaseGroup) && strings.Contains(description, resolution) {
			return r, true
		}
	}
	return SearchResult{}, false
}
