package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/compose-network/throne/x/auth"
)

// SignerKey is the context key for the recovered request signer.
const SignerKey contextKey = "signer"

// Signer recovers the address behind the X-Signature header, an EIP-191
// signature over the raw body, and stores it in the request context. The body
// is restored for downstream handlers. Requests with a bad signature continue
// unauthenticated; handlers decide whether that is acceptable.
func Signer(maxBody int64, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sig := r.Header.Get(auth.Header)
			if sig == "" || r.Body == nil {
				next.ServeHTTP(w, r)
				return
			}

			reader := io.Reader(r.Body)
			if maxBody > 0 {
				reader = io.LimitReader(r.Body, maxBody+1)
			}
			body, err := io.ReadAll(reader)
			_ = r.Body.Close()
			if err != nil {
				http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			if maxBody > 0 && int64(len(body)) > maxBody {
				next.ServeHTTP(w, r)
				return
			}

			signer, err := auth.RecoverHex(body, sig)
			if err != nil {
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("Ignoring invalid request signature")
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), SignerKey, signer)))
		})
	}
}

// SignerFromContext returns the authenticated signer, if any.
func SignerFromContext(ctx context.Context) (common.Address, bool) {
	addr, ok := ctx.Value(SignerKey).(common.Address)
	return addr, ok
}
