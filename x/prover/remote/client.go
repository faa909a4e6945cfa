package remote

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
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/compose-network/throne/x/prover"
)

// Client implements prover.Generator against another throne prover's REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	log        zerolog.Logger
}

var _ prover.Generator = (*Client)(nil)

// NewClient constructs a prover client for the given base URL.
func NewClient(rawURL string, httpClient *http.Client, log zerolog.Logger) (*Client, error) {
	if rawURL == "" {
		return nil, errors.New("base URL is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid prover base URL: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	logger := log.With().Str("component", "prover-client").Logger()

	logger.Info().
		Str("base_url", rawURL).
		Dur("timeout", httpClient.Timeout).
		Msg("Remote prover client initialized")

	return &Client{
		baseURL:    parsed,
		httpClient: httpClient,
		log:        logger,
	}, nil
}

// Generate asks the remote prover for an artifact. Transport and 5xx
// failures surface as prover.ErrProofGenerationFailed; 4xx as
// prover.ErrInvalidRequest.
func (c *Client) Generate(ctx context.Context, req prover.Request) (*prover.Artifact, error) {
	endpoint := c.buildURL("v1", "prove")

	wire, err := prover.NewProveRequest(req)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal prove request: %w", err)
	}

	c.log.Debug().
		Str("endpoint", endpoint).
		Str("trial_id", req.TrialID.Hex()).
		Uint32("round_id", req.RoundID).
		Msg("Requesting remote proof")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("prepare request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("proof generation cancelled: %w", ctx.Err())
		}
		c.log.Error().Err(err).Str("endpoint", endpoint).Msg("Remote proof request failed")
		return nil, prover.ErrProofGenerationFailed.WithCause(err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		c.log.Error().
			Int("status_code", res.StatusCode).
			Str("response", string(msg)).
			Msg("Remote prover returned error response")
		cause := fmt.Errorf("prover returned %s: %s", res.Status, string(msg))
		if res.StatusCode < 500 {
			return nil, prover.ErrInvalidRequest.WithCause(cause)
		}
		return nil, prover.ErrProofGenerationFailed.WithCause(cause)
	}

	var out prover.ProveResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, prover.ErrProofGenerationFailed.WithCause(fmt.Errorf("decode prover response: %w", err))
	}
	if !out.Success {
		return nil, prover.ErrProofGenerationFailed.WithMessage("remote prover reported failure")
	}

	artifact, err := out.Artifact()
	if err != nil {
		return nil, prover.ErrProofGenerationFailed.WithCause(err)
	}
	if err := matchesRequest(artifact, req); err != nil {
		return nil, prover.ErrProofGenerationFailed.WithCause(err)
	}

	c.log.Debug().
		Str("image_id", artifact.Fingerprint.Hex()).
		Bool("is_valid", artifact.Journal.IsValid).
		Int("proof_bytes", len(artifact.Proof)).
		Msg("Remote proof received")

	return artifact, nil
}

// ImageID fetches the fingerprint of the remote prover's verifying key.
func (c *Client) ImageID(ctx context.Context) (common.Hash, error) {
	endpoint := c.buildURL("v1", "image-id")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("prepare image id request: %w", err)
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return common.Hash{}, fmt.Errorf("get image id: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return common.Hash{}, fmt.Errorf("prover returned %s: %s", res.Status, string(msg))
	}

	var out prover.ImageIDResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return common.Hash{}, fmt.Errorf("decode image id response: %w", err)
	}
	return out.ImageID, nil
}

func (c *Client) buildURL(elem ...string) string {
	clone := *c.baseURL
	clone.Path = path.Join(append([]string{c.baseURL.Path}, elem...)...)
	return clone.String()
}

func matchesRequest(a *prover.Artifact, req prover.Request) error {
	j := a.Journal
	switch {
	case j.TrialID != req.TrialID:
		return fmt.Errorf("artifact trial %s, requested %s", j.TrialID.Hex(), req.TrialID.Hex())
	case j.PlayerID != req.PlayerID:
		return fmt.Errorf("artifact player %s, requested %s", j.PlayerID.Hex(), req.PlayerID.Hex())
	case j.RoundID != req.RoundID:
		return fmt.Errorf("artifact round %d, requested %d", j.RoundID, req.RoundID)
	}
	return nil
}
