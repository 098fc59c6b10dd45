// Package argenteam resolves subtitles through the Argenteam metadata API.
package argenteam

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/subtis/internal/config"
	"github.com/amaumene/subtis/internal/models"
	"github.com/amaumene/subtis/internal/parser"
	"github.com/amaumene/subtis/internal/subtitles"
)

const userAgent = "subtis/1.0"

// SearchResponse is returned by the search endpoint
type SearchResponse struct {
	Results []SearchResult `json:"results"`
	Total   int            `json:"total"`
	Offset  int            `json:"offset"`
}

// SearchResult is one search hit
type SearchResult struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
	Type  string `json:"type"` // "movie", "episode", "tvshow"
	IMDB  string `json:"imdb"`
}

// Resource is a movie with its releases
type Resource struct {
	ID       int       `json:"id"`
	Title    string    `json:"title"`
	Releases []Release `json:"releases"`
}

// Release is one encoding of the resource with its subtitles
type Release struct {
	Source    string         `json:"source"`
	Codec     string         `json:"codec"`
	Team      string         `json:"team"`
	Tags      string         `json:"tags"`
	Subtitles []SubtitleLink `json:"subtitles"`
}

// SubtitleLink points at a downloadable subtitle archive
type SubtitleLink struct {
	URI   string `json:"uri"`
	Count int    `json:"count"`
}

// Client resolves candidates from Argenteam
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a new Argenteam client
func NewClient(cfg *config.Config, logger *logrus.Logger) (*Client, error) {
	if cfg.ArgenteamBaseURL == "" {
		return nil, fmt.Errorf("argenteam base URL is required")
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.ArgenteamBaseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}, nil
}

// Name returns the subtitle group this client feeds
func (c *Client) Name() string {
	return models.SubtitleGroupArgenteam
}

// Resolve looks the title up by catalog id and picks the first release whose
// team is the release group and whose tags carry the resolution.
func (c *Client) Resolve(ctx context.Context, identity *parser.MovieIdentity, externalID string) (*subtitles.Candidate, error) {
	digits := parser.ExternalIDDigits(externalID)
	if digits == "" {
		return nil, subtitles.NewNoMatch(c.Name(), "no catalog id for %s", identity.FileName)
	}

	var search SearchResponse
	if err := c.doRequest(ctx, "/search", url.Values{"q": {digits}}, &search); err != nil {
		return nil, err
	}
	if len(search.Results) == 0 {
		return nil, subtitles.NewNoMatch(c.Name(), "no results for %s", externalID)
	}

	first := search.Results[0]
	if first.Type != "movie" {
		return nil, subtitles.NewUnsupportedContent(c.Name(), "result type %q not supported", first.Type)
	}

	var resource Resource
	if err := c.doRequest(ctx, "/movie", url.Values{"id": {strconv.Itoa(first.ID)}}, &resource); err != nil {
		return nil, err
	}

	release, ok := pickRelease(resource.Releases, identity)
	if !ok {
		return nil, subtitles.NewNoMatch(c.Name(), "no release for %s %s", identity.ReleaseGroup, identity.Resolution)
	}
	if len(release.Subtitles) == 0 {
		return nil, subtitles.NewNoMatch(c.Name(), "release %s has no subtitles", release.Team)
	}

	link := release.Subtitles[0].URI
	kind, err := subtitles.ContainerKindFromExtension(link)
	if err != nil {
		return nil, subtitles.NewUnsupportedContent(c.Name(), "%v", err)
	}

	c.logger.WithFields(logrus.Fields{
		"file_name": identity.FileName,
		"team":      release.Team,
		"link":      link,
	}).Debug("Argenteam release selected")

	candidate := subtitles.NewCandidate(identity, c.Name(), link, kind)
	return &candidate, nil
}

func pickRelease(releases []Release, identity *parser.MovieIdentity) (Release, bool) {
	resolution := strings.ToLower(strings.TrimSuffix(identity.Resolution, ".3D"))
	for _, r := range releases {
		if !strings.EqualFold(r.Team, identity.ReleaseGroup) {
			continue
		}
		if strings.Contains(strings.ToLower(r.Tags), resolution) {
			return r, true
		}
	}
	return Release{}, false
}

// doRequest performs a GET against the API and decodes the JSON body into result
func (c *Client) doRequest(ctx context.Context, path string, params url.Values, result interface{}) error {
	fullURL := c.baseURL + path + "?" + params.Encode()
	c.logger.WithField("url", fullURL).Debug("Making Argenteam API request")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return subtitles.NewUpstreamError(c.Name(), fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return subtitles.NewUpstreamError(c.Name(), fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return subtitles.NewUpstreamError(c.Name(), fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return subtitles.NewUnsupportedContent(c.Name(), "failed to decode response: %v", err)
	}
	return nil
}
