package gamehub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/compose-network/throne/x/progression"
)

var _ progression.SessionHub = (*Client)(nil)

// Client reports multiplayer session start and end to a game hub over HTTP.
type Client struct {
	baseURL    *url.URL
	apiKey     string
	gameID     string
	httpClient *http.Client
	log        zerolog.Logger
}

type startGameReq struct {
	Game      string         `json:"game"`
	SessionID uint32         `json:"session_id"`
	RoundID   uint32         `json:"round_id"`
	Player1   common.Address `json:"player1"`
	Player2   common.Address `json:"player2"`
}

type endGameReq struct {
	Game       string `json:"game"`
	SessionID  uint32 `json:"session_id"`
	Player1Won bool   `json:"player1_won"`
}

// NewClient constructs a hub client. httpClient may be nil.
func NewClient(cfg Config, httpClient *http.Client, log zerolog.Logger) (*Client, error) {
	if !cfg.Enabled() {
		return nil, errors.New("gamehub url is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	parsed, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid gamehub url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	logger := log.With().Str("component", "gamehub-client").Logger()
	logger.Info().Str("base_url", cfg.URL).Str("game", cfg.GameID).Msg("Game hub client initialized")

	return &Client{
		baseURL:    parsed,
		apiKey:     cfg.APIKey,
		gameID:     cfg.GameID,
		httpClient: httpClient,
		log:        logger,
	}, nil
}

// StartGame announces a session linked to round.
func (c *Client) StartGame(ctx context.Context, s progression.Session, round uint32) error {
	return c.post(ctx, c.buildURL("v1", "games", "start"), startGameReq{
		Game:      c.gameID,
		SessionID: s.ID,
		RoundID:   round,
		Player1:   s.Player1,
		Player2:   s.Player2,
	})
}

// EndGame reports the session outcome.
func (c *Client) EndGame(ctx context.Context, session uint32, player1Won bool) error {
	return c.post(ctx, c.buildURL("v1", "games", "end"), endGameReq{
		Game:       c.gameID,
		SessionID:  session,
		Player1Won: player1Won,
	})
}

func (c *Client) post(ctx context.Context, endpoint string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("prepare request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", endpoint, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		c.log.Error().
			Int("status_code", res.StatusCode).
			Str("response", string(msg)).
			Str("endpoint", endpoint).
			Msg("Game hub returned error response")
		return fmt.Errorf("game hub returned %s: %s", res.Status, string(msg))
	}

	c.log.Debug().Str("endpoint", endpoint).Msg("Game hub notified")
	return nil
}

func (c *Client) buildURL(elem ...string) string {
	clone := *c.baseURL
	clone.Path = path.Join(append([]string{c.baseURL.Path}, elem...)...)
	return clone.String()
}
