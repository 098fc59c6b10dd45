package yts

import (
	"context"
	"strings"
)

// TotalPages returns the movie count and the number of pages to crawl
func (c *Client) TotalPages(ctx context.Context) (int, int, error) {
	data, err := c.listMovies(ctx, pageParams(c.pageSize, 1))
	if err != nil {
		return 0, 0, err
	}

	pages := (data.MovieCount + c.pageSize - 1) / c.pageSize
	return data.MovieCount, pages, nil
}

// ListPage returns the movies of a 1-based catalog page
func (c *Client) ListPage(ctx context.Context, page int) ([]Movie, error) {
	data, err := c.listMovies(ctx, pageParams(c.pageSize, page))
	if err != nil {
		return nil, err
	}
	return data.Movies, nil
}

// Search finds movies whose title matches query, optionally narrowed to year
func (c *Client) Search(ctx context.Context, query string, year int) ([]Movie, error) {
	params := pageParams(c.pageSize, 1)
	params.Set("query_term", query)

	data, err := c.listMovies(ctx, params)
	if err != nil {
		return nil, err
	}

	if year == 0 {
		return data.Movies, nil
	}

	var matches []Movie
	for _, m := range data.Movies {
		if m.Year == year {
			matches = append(matches, m)
		}
	}
	return matches, nil
}

// MatchesResolution reports whether a torrent variant carries the given
// parsed resolution ("1080p", "1080p.3D").
func (t Torrent) MatchesResolution(resolution string) bool {
	if strings.HasSuffix(resolution, ".3D") {
		return strings.EqualFold(t.Quality, "3D")
	}
	return strings.EqualFold(t.Quality, resolution)
}
