package http

// Route patterns for the progression HTTP surface.
const (
	routeSubmitAttestation = "/v1/submissions/attestation"
	routeSubmitProof       = "/v1/submissions/proof"
	routeCurrentRound      = "/v1/rounds/current"
	routeRound             = "/v1/rounds/{round:[0-9]+}"
	routePlayerProgress    = "/v1/rounds/{round:[0-9]+}/players/{player}"
	routePlayerNonce       = "/v1/players/{player}/nonce"
	routeAdvanceRound      = "/v1/admin/rounds/advance"
	routeRequiredTrials    = "/v1/admin/required-trials"
	routeSessions          = "/v1/sessions"
)

// Route names for mux URL building.
const (
	routeNameSubmitAttestation = "progression_submit_attestation"
	routeNameSubmitProof       = "progression_submit_proof"
	routeNameCurrentRound      = "progression_current_round"
	routeNameRound             = "progression_round"
	routeNamePlayerProgress    = "progression_player_progress"
	routeNamePlayerNonce       = "progression_player_nonce"
	routeNameAdvanceRound      = "progression_advance_round"
	routeNameRequiredTrials    = "progression_required_trials"
	routeNameSessions          = "progression_sessions"
)
