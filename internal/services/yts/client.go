package yts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/subtis/internal/config"
)

// ErrCatalogUnavailable is returned once every retry against the catalog failed
var ErrCatalogUnavailable = errors.New("catalog unavailable")

const (
	userAgent      = "subtis/1.0"
	maxTorrentSize = 10 * 1024 * 1024 // 10MB
)

// ListResponse is the envelope returned by list_movies.json
type ListResponse struct {
	Status        string   `json:"status"`
	StatusMessage string   `json:"status_message"`
	Data          ListData `json:"data"`
}

// ListData holds one page of movies
type ListData struct {
	MovieCount int     `json:"movie_count"`
	Limit      int     `json:"limit"`
	PageNumber int     `json:"page_number"`
	Movies     []Movie `json:"movies"`
}

// Movie is a catalog entry with its torrent variants
type Movie struct {
	ID              int       `json:"id"`
	ImdbCode        string    `json:"imdb_code"`
	Title           string    `json:"title"`
	Year            int       `json:"year"`
	Rating          float64   `json:"rating"`
	LargeCoverImage string    `json:"large_cover_image"`
	BackgroundImage string    `json:"background_image_original"`
	Torrents        []Torrent `json:"torrents"`
}

// Torrent is one release variant of a movie
type Torrent struct {
	URL       string `json:"url"`
	Hash      string `json:"hash"`
	Quality   string `json:"quality"` // "720p", "1080p", "2160p", "3D"
	Type      string `json:"type"`    // "web", "bluray"
	SizeBytes int64  `json:"size_bytes"`
}

// Client wraps the YTS catalog API
type Client struct {
	baseURL       string
	pageSize      int
	maxRetries    int
	retryInterval time.Duration
	httpClient    *http.Client
	logger        *logrus.Logger
}

// NewClient creates a new catalog client
func NewClient(cfg *config.Config, logger *logrus.Logger) (*Client, error) {
	if cfg.YTSBaseURL == "" {
		return nil, fmt.Errorf("catalog base URL is required")
	}

	return &Client{
		baseURL:       strings.TrimRight(cfg.YTSBaseURL, "/"),
		pageSize:      cfg.YTSPageSize,
		maxRetries:    cfg.CatalogMaxRetries,
		retryInterval: 500 * time.Millisecond,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}, nil
}

// PageSize returns the number of movies requested per page
func (c *Client) PageSize() int {
	return c.pageSize
}

// listMovies fetches list_movies.json with retries. A non-200 status or a
// non-ok payload status is retried; a malformed URL is not.
func (c *Client) listMovies(ctx context.Context, params url.Values) (*ListData, error) {
	apiURL, err := url.Parse(c.baseURL + "/list_movies.json")
	if err != nil {
		return nil, fmt.Errorf("invalid catalog URL: %w", err)
	}
	apiURL.RawQuery = params.Encode()
	finalURL := apiURL.String()

	var data *ListData
	operation := func() error {
		result, err := c.fetchList(ctx, finalURL)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			c.logger.WithError(err).WithField("url", finalURL).Warn("Catalog request failed, retrying")
			return err
		}
		data = result
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval
	retries := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.maxRetries)), ctx)

	if err := backoff.Retry(operation, retries); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	return data, nil
}

func (c *Client) fetchList(ctx context.Context, finalURL string) (*ListData, error) {
	c.logger.WithField("url", finalURL).Debug("Performing catalog request")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("catalog returned status %d: %s", resp.StatusCode, string(body))
	}

	var list ListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode catalog response: %w", err)
	}
	if list.Status != "ok" {
		return nil, fmt.Errorf("catalog returned status %q: %s", list.Status, list.StatusMessage)
	}

	return &list.Data, nil
}

// DownloadTorrent downloads a .torrent descriptor
func (c *Client) DownloadTorrent(ctx context.Context, torrentURL string) ([]byte, error) {
	c.logger.WithField("url", torrentURL).Debug("Downloading torrent file")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, torrentURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create torrent download request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download torrent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("torrent download failed with status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTorrentSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read torrent content: %w", err)
	}

	c.logger.WithField("size_bytes", len(data)).Debug("Torrent file downloaded")
	return data, nil
}

func pageParams(limit, page int) url.Values {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("page", strconv.Itoa(page))
	return params
}
