package opensubtitles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// tokenLifetime is how long a login token is reused before logging in again
const tokenLifetime = 23 * time.Hour

var errNoToken = errors.New("token file not found")

// TokenStore defines the interface for storing and retrieving tokens
type TokenStore interface {
	GetToken() (*Token, error)
	SaveToken(token *Token) error
}

// Token is an OpenSubtitles login token
type Token struct {
	AccessToken string    `json:"access_token"`
	ObtainedAt  time.Time `json:"obtained_at"`
}

// Expired reports whether the token should be renewed
func (t *Token) Expired(now time.Time) bool {
	return now.Sub(t.ObtainedAt) >= tokenLifetime
}

// FileTokenStore implements TokenStore using a JSON file
type FileTokenStore struct {
	filepath string
}

// NewFileTokenStore creates a new file-based token store
func NewFileTokenStore(filepath string) *FileTokenStore {
	return &FileTokenStore{filepath: filepath}
}

// GetToken retrieves the token from the file
func (s *FileTokenStore) GetToken() (*Token, error) {
	data, err := os.ReadFile(s.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errNoToken
		}
		return nil, err
	}

	var token Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

// SaveToken saves the token to the file
func (s *FileTokenStore) SaveToken(token *Token) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.filepath, data, 0600)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token  string `json:"token"`
	Status int    `json:"status"`
}

// Login exchanges the configured credentials for a token and stores it
func (c *Client) Login(ctx context.Context) (*Token, error) {
	var resp loginResponse
	err := c.doRequest(ctx, "POST", "/login", nil, loginRequest{
		Username: c.username,
		Password: c.password,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("failed to login: %w", err)
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("login returned no token")
	}

	token := &Token{AccessToken: resp.Token, ObtainedAt: time.Now()}
	if err := c.tokenStore.SaveToken(token); err != nil {
		return nil, fmt.Errorf("failed to save token: %w", err)
	}

	c.logger.Info("OpenSubtitles login successful")
	return token, nil
}

// bearerToken returns a valid token, logging in when the stored one is
// missing or expired. Anonymous clients get an empty token.
func (c *Client) bearerToken(ctx context.Context) (string, error) {
	if c.username == "" {
		return "", nil
	}

	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	token, err := c.tokenStore.GetToken()
	if err == nil && !token.Expired(time.Now()) {
		return token.AccessToken, nil
	}
	if err != nil && !errors.Is(err, errNoToken) {
		c.logger.WithError(err).Warn("Failed to read stored token, logging in again")
	}

	token, err = c.Login(ctx)
	if err != nil {
		return "", err
	}
	return token.AccessToken, nil
}
