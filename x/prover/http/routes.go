package http

// Route patterns for the prover HTTP surface.
const (
	routeProve     = "/v1/prove"
	routeProveJobs = "/v1/prove/jobs"
	routeProveJob  = "/v1/prove/jobs/{id}"
	routeVerify    = "/v1/verify"
	routeImageID   = "/v1/image-id"
)

// Route names for mux URL building.
const (
	routeNameProve     = "prover_prove"
	routeNameProveJobs = "prover_prove_jobs"
	routeNameProveJob  = "prover_prove_job"
	routeNameVerify    = "prover_verify"
	routeNameImageID   = "prover_image_id"
)
