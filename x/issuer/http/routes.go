package http

// Route patterns for the issuer HTTP surface.
const (
	routeSolutions = "/v1/solutions"
	routeTrials    = "/v1/trials"
)

// Route names for mux URL building.
const (
	routeNameSolutions = "issuer_solutions"
	routeNameTrials    = "issuer_trials"
)
