package http

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/throne/server/api/middleware"
	"github.com/compose-network/throne/x/attestation"
	"github.com/compose-network/throne/x/auth"
	"github.com/compose-network/throne/x/progression"
	"github.com/compose-network/throne/x/store"
)

type fixture struct {
	router   http.Handler
	routes   *mux.Router
	signer   *attestation.Signer
	adminKey *ecdsa.PrivateKey
	player   *ecdsa.PrivateKey
	nonce    uint64
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	pub, priv, err := attestation.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := attestation.NewSigner(priv, zerolog.Nop())
	require.NoError(t, err)
	verifier, err := attestation.NewVerifier(pub)
	require.NoError(t, err)

	adminKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	playerKey, err := crypto.GenerateKey()
	require.NoError(t, err)

	st := store.NewMemory(0, zerolog.Nop())
	t.Cleanup(func() { _ = st.Close() })
	m, err := progression.New(progression.DefaultConfig(), zerolog.Nop(),
		progression.WithStore(st),
		progression.WithAttestationVerifier(verifier))
	require.NoError(t, err)
	require.NoError(t, m.Initialize(t.Context(), crypto.PubkeyToAddress(adminKey.PublicKey), 2))

	f := &fixture{
		routes:   mux.NewRouter(),
		signer:   signer,
		adminKey: adminKey,
		player:   playerKey,
		now:      time.Unix(1_800_000_000, 0),
	}
	h := NewHandler(m, auth.DefaultConfig(), zerolog.Nop())
	h.now = func() time.Time { return f.now }
	h.RegisterMux(f.routes)
	f.router = middleware.Signer(1<<20, zerolog.Nop())(f.routes)
	return f
}

func (f *fixture) issuedAt() int64 {
	return f.now.Unix()
}

func (f *fixture) playerAddr() common.Address {
	return crypto.PubkeyToAddress(f.player.PublicKey)
}

func (f *fixture) attestation(t *testing.T, trial uint32) attestation.Attestation {
	t.Helper()
	f.nonce++
	a, err := f.signer.Attest(trial, f.playerAddr(), common.HexToHash("0xfeed"), f.nonce)
	require.NoError(t, err)
	return a
}

func (f *fixture) do(t *testing.T, method, path string, body any, key *ecdsa.PrivateKey) *httptest.ResponseRecorder {
	t.Helper()

	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	if key != nil {
		sig, err := auth.SignHex(key, raw)
		require.NoError(t, err)
		req.Header.Set(auth.Header, sig)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type errorResp struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type eventsBody struct {
	Events []struct {
		Kind  string          `json:"kind"`
		Event json.RawMessage `json:"event"`
	} `json:"events"`
}

func TestHandler_SubmitAttestation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	first := attestationSubmitReq{Attestation: f.attestation(t, 1)}

	rec := f.do(t, http.MethodPost, routeSubmitAttestation, first, f.player)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[eventsBody](t, rec)
	require.Len(t, body.Events, 1)
	require.Equal(t, "progress", body.Events[0].Kind)

	rec = f.do(t, http.MethodPost, routeSubmitAttestation, first, f.player)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "replayed_nonce", decode[errorResp](t, rec).Error.Code)

	rec = f.do(t, http.MethodPost, routeSubmitAttestation, attestationSubmitReq{RoundID: 1, Attestation: f.attestation(t, 2)}, f.player)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode[eventsBody](t, rec)
	require.Equal(t, "king_crowned", body.Events[0].Kind)

	rec = f.do(t, http.MethodPost, routeSubmitAttestation, attestationSubmitReq{Attestation: f.attestation(t, 3)}, f.player)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "round_locked", decode[errorResp](t, rec).Error.Code)
}

func TestHandler_SubmitRequiresPlayerSignature(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	req := attestationSubmitReq{Attestation: f.attestation(t, 1)}

	rec := f.do(t, http.MethodPost, routeSubmitAttestation, req, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, routeSubmitAttestation, req, f.adminKey)
	require.Equal(t, http.StatusForbidden, rec.Code)

	forged := req
	forged.Attestation.Nonce++
	rec = f.do(t, http.MethodPost, routeSubmitAttestation, forged, f.player)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "invalid_attestation", decode[errorResp](t, rec).Error.Code)
}

func TestHandler_SubmitProofValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(t, http.MethodPost, routeSubmitProof, proofSubmitReq{Player: f.playerAddr(), TrialIndex: 1}, f.player)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "missing_artifact", decode[errorResp](t, rec).Error.Code)

	rec = f.do(t, http.MethodPost, routeSubmitProof, map[string]any{"player": f.playerAddr(), "bogus": 1}, f.player)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_json", decode[errorResp](t, rec).Error.Code)
}

func TestHandler_Reads(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(t, http.MethodPost, routeSubmitAttestation, attestationSubmitReq{Attestation: f.attestation(t, 1)}, f.player)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, routeCurrentRound, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rs := decode[progression.RoundState](t, rec)
	require.EqualValues(t, 1, rs.RoundID)
	require.EqualValues(t, 2, rs.RequiredTrials)

	u, err := f.routes.Get(routeNameRound).URL("round", "9")
	require.NoError(t, err)
	rec = f.do(t, http.MethodGet, u.String(), nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	u, err = f.routes.Get(routeNamePlayerProgress).URL("round", "1", "player", f.playerAddr().Hex())
	require.NoError(t, err)
	rec = f.do(t, http.MethodGet, u.String(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	p := decode[progressResp](t, rec)
	require.EqualValues(t, 1, p.TrialsCompleted)
	require.Equal(t, progression.StatusInProgress, p.Status)

	u, err = f.routes.Get(routeNamePlayerNonce).URL("player", f.playerAddr().Hex())
	require.NoError(t, err)
	rec = f.do(t, http.MethodGet, u.String(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 1, decode[nonceResp](t, rec).LastNonce)

	u, err = f.routes.Get(routeNamePlayerNonce).URL("player", "not-an-address")
	require.NoError(t, err)
	rec = f.do(t, http.MethodGet, u.String(), nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Admin(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	admin := crypto.PubkeyToAddress(f.adminKey.PublicKey)

	rec := f.do(t, http.MethodPost, routeAdvanceRound, advanceRoundReq{Caller: f.playerAddr(), Round: 1, IssuedAt: f.issuedAt()}, f.player)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "unauthorized", decode[errorResp](t, rec).Error.Code)

	rec = f.do(t, http.MethodPost, routeAdvanceRound, advanceRoundReq{Caller: admin, Round: 1, IssuedAt: f.issuedAt()}, f.player)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "forbidden", decode[errorResp](t, rec).Error.Code)

	rec = f.do(t, http.MethodPost, routeAdvanceRound, advanceRoundReq{Caller: admin, IssuedAt: f.issuedAt()}, f.adminKey)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_round", decode[errorResp](t, rec).Error.Code)

	rec = f.do(t, http.MethodPost, routeAdvanceRound, advanceRoundReq{Caller: admin, Round: 1, IssuedAt: f.issuedAt()}, f.adminKey)
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 2, decode[progression.RoundState](t, rec).RoundID)

	rec = f.do(t, http.MethodPost, routeRequiredTrials, requiredTrialsReq{Caller: admin, RequiredTrials: 5, IssuedAt: f.issuedAt()}, f.adminKey)
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 5, decode[progression.RoundState](t, rec).RequiredTrials)

	rec = f.do(t, http.MethodPost, routeRequiredTrials, requiredTrialsReq{Caller: admin, IssuedAt: f.issuedAt()}, f.adminKey)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_AdminReplayRefused(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	admin := crypto.PubkeyToAddress(f.adminKey.PublicKey)
	advance := advanceRoundReq{Caller: admin, Round: 1, IssuedAt: f.issuedAt()}

	rec := f.do(t, http.MethodPost, routeAdvanceRound, advance, f.adminKey)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The identical signed body inside the window names a round that has closed.
	rec = f.do(t, http.MethodPost, routeAdvanceRound, advance, f.adminKey)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "stale_round", decode[errorResp](t, rec).Error.Code)

	// Outside the window the body is refused before it reaches the machine.
	f.now = f.now.Add(auth.DefaultConfig().MaxRequestAge + time.Second)
	rec = f.do(t, http.MethodPost, routeAdvanceRound, advanceRoundReq{Caller: admin, Round: 2, IssuedAt: advance.IssuedAt}, f.adminKey)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "stale_request", decode[errorResp](t, rec).Error.Code)

	trials := requiredTrialsReq{Caller: admin, RequiredTrials: 4, IssuedAt: advance.IssuedAt}
	rec = f.do(t, http.MethodPost, routeRequiredTrials, trials, f.adminKey)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, routeAdvanceRound, advanceRoundReq{Caller: admin, Round: 2}, f.adminKey)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rs := decode[progression.RoundState](t, f.do(t, http.MethodGet, routeCurrentRound, nil, nil))
	require.EqualValues(t, 2, rs.RoundID)
	require.EqualValues(t, 2, rs.RequiredTrials)
}

func TestHandler_StartSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	other := common.HexToAddress("0x00000000000000000000000000000000000000b2")

	req := startSessionReq{SessionID: 3, Player1: f.playerAddr(), Player2: other, IssuedAt: f.issuedAt()}
	rec := f.do(t, http.MethodPost, routeSessions, req, f.adminKey)
	require.Equal(t, http.StatusForbidden, rec.Code)

	stale := req
	stale.IssuedAt = f.now.Add(-time.Hour).Unix()
	rec = f.do(t, http.MethodPost, routeSessions, stale, f.player)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, routeSessions, req, f.player)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "session_started", decode[eventsBody](t, rec).Events[0].Kind)
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	require.Equal(t, http.StatusConflict, statusFor(progression.ErrorTypeOutOfOrderTrial))
	require.Equal(t, http.StatusUnprocessableEntity, statusFor(progression.ErrorTypeSolutionRejected))
	require.Equal(t, http.StatusConflict, statusFor(progression.ErrorTypeStaleRound))
	require.Equal(t, http.StatusServiceUnavailable, statusFor(progression.ErrorTypeNotInitialized))
	require.Equal(t, http.StatusInternalServerError, statusFor(progression.ErrorTypeInternal))
}
