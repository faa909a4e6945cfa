package main

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"github.com/compose-network/throne/x/attestation"
	"github.com/compose-network/throne/x/auth"
	"github.com/compose-network/throne/x/issuer"
	"github.com/compose-network/throne/x/progression"
	"github.com/compose-network/throne/x/trials"
)

type commandFlags struct {
	throneURL  string
	privateKey string
	action     string

	trial    uint
	solution string
	round    uint
	timeout  time.Duration
}

func main() {
	flags := parseFlags()

	if err := run(flags); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() commandFlags {
	var flags commandFlags
	flag.StringVar(&flags.throneURL, "throne-url", "http://127.0.0.1:8080", "Throne HTTP API base URL")
	flag.StringVar(&flags.privateKey, "private-key", "", "Hex-encoded secp256k1 player key (random when empty)")
	flag.StringVar(&flags.action, "action", "", "Action to perform: trials|solve|play|progress|advance")

	flag.UintVar(&flags.trial, "trial", 1, "Trial index for solve")
	flag.StringVar(&flags.solution, "solution", "", "Solution for solve (defaults to the built-in answer)")
	flag.UintVar(&flags.round, "round", 0, "Round id (0 means current)")
	flag.DurationVar(&flags.timeout, "timeout", 5*time.Minute, "Per-request timeout; proving is slow")

	flag.Parse()

	if flags.action == "" {
		flag.Usage()
		fmt.Fprintln(os.Stderr, "\nmissing required flag: -action")
		os.Exit(2)
	}

	return flags
}

type player struct {
	base   string
	key    *ecdsa.PrivateKey
	http   *http.Client
	logger zerolog.Logger
}

func run(cfg commandFlags) error {
	logger := zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}).Level(zerolog.InfoLevel).With().Timestamp().Logger()

	key, err := loadKey(cfg.privateKey)
	if err != nil {
		return err
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)
	p := &player{
		base:   strings.TrimRight(cfg.throneURL, "/"),
		key:    key,
		http:   &http.Client{Timeout: cfg.timeout},
		logger: logger.With().Str("player", addr.Hex()).Logger(),
	}

	ctx := context.Background()
	switch cfg.action {
	case "trials":
		return p.printGet(ctx, "/v1/trials")
	case "solve":
		solution := cfg.solution
		if solution == "" {
			solution = builtinAnswer(uint32(cfg.trial))
		}
		_, err := p.solveAndSubmit(ctx, uint32(cfg.trial), solution, uint32(cfg.round))
		return err
	case "play":
		return p.play(ctx, uint32(cfg.round))
	case "progress":
		round := cfg.round
		if round == 0 {
			return p.printGet(ctx, "/v1/rounds/current")
		}
		return p.printGet(ctx, fmt.Sprintf("/v1/rounds/%d/players/%s", round, addr.Hex()))
	case "advance":
		return p.advance(ctx, uint32(cfg.round))
	default:
		return fmt.Errorf("unknown action %q", cfg.action)
	}
}

// play walks every built-in trial in order until the player is crowned or
// the backend refuses.
func (p *player) play(ctx context.Context, round uint32) error {
	catalog := trials.Default()
	for _, t := range catalog.All() {
		events, err := p.solveAndSubmit(ctx, t.Index, builtinAnswer(t.Index), round)
		if err != nil {
			return fmt.Errorf("trial %d: %w", t.Index, err)
		}
		for _, ev := range events {
			if ev.Kind == progression.EventKingCrowned {
				p.logger.Info().Uint32("trial", t.Index).Msg("crowned King")
				return nil
			}
		}
	}
	p.logger.Info().Msg("all trials submitted")
	return nil
}

// advance closes round, or the current round when round is zero.
func (p *player) advance(ctx context.Context, round uint32) error {
	if round == 0 {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.base+"/v1/rounds/current", nil)
		if err != nil {
			return err
		}
		var cur struct {
			RoundID uint32 `json:"round_id"`
		}
		if err := p.do(req, &cur); err != nil {
			return err
		}
		round = cur.RoundID
	}
	body := struct {
		Caller   common.Address `json:"caller"`
		Round    uint32         `json:"round"`
		IssuedAt int64          `json:"issued_at"`
	}{Caller: crypto.PubkeyToAddress(p.key.PublicKey), Round: round, IssuedAt: time.Now().Unix()}
	return p.post(ctx, "/v1/admin/rounds/advance", body, nil)
}

type eventView struct {
	Kind  progression.EventKind `json:"kind"`
	Event json.RawMessage       `json:"event"`
}

func (p *player) solveAndSubmit(ctx context.Context, trial uint32, solution string, round uint32) ([]eventView, error) {
	addr := crypto.PubkeyToAddress(p.key.PublicKey)

	var receipt issuer.Receipt
	start := time.Now()
	if err := p.post(ctx, "/v1/solutions", issuer.Request{
		Player:     addr,
		TrialIndex: trial,
		Solution:   solution,
		RoundID:    round,
	}, &receipt); err != nil {
		return nil, err
	}
	p.logger.Info().
		Uint32("trial", trial).
		Uint64("nonce", receipt.Nonce).
		Str("solution_hash", receipt.SolutionHash).
		Dur("took", time.Since(start)).
		Msg("attestation issued")

	var resp struct {
		Events []eventView `json:"events"`
	}
	body := struct {
		RoundID     uint32                  `json:"round_id"`
		Attestation attestation.Attestation `json:"attestation"`
	}{RoundID: round, Attestation: receipt.Attestation}
	if err := p.post(ctx, "/v1/submissions/attestation", body, &resp); err != nil {
		return nil, err
	}
	for _, ev := range resp.Events {
		p.logger.Info().Str("kind", string(ev.Kind)).RawJSON("event", ev.Event).Msg("event")
	}
	return resp.Events, nil
}

func (p *player) post(ctx context.Context, path string, payload, dst any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	sig, err := auth.SignHex(p.key, body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.Header, sig)
	return p.do(req, dst)
}

func (p *player) printGet(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.base+path, nil)
	if err != nil {
		return err
	}
	var out json.RawMessage
	if err := p.do(req, &out); err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func (p *player) do(req *http.Request, dst any) error {
	res, err := p.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, res.StatusCode, strings.TrimSpace(string(msg)))
	}
	if dst == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(dst)
}

func loadKey(hexKey string) (*ecdsa.PrivateKey, error) {
	if hexKey == "" {
		return crypto.GenerateKey()
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, errors.New("invalid private key")
	}
	return key, nil
}

// builtinAnswer returns the completion token of a built-in trial.
func builtinAnswer(index uint32) string {
	t, err := trials.Default().Get(index)
	if err != nil || len(t.Accept) == 0 {
		return ""
	}
	return t.Accept[0]
}
