package wsmux

import "net/http"

// RecoveryConfig configures RecoveryMiddleware.
type RecoveryConfig struct {
	// LogFunc, if set, is invoked with the request and recovered value
	// whenever a handler panics.
	LogFunc func(r *http.Request, recovered any)
}

// RecoveryMiddleware recovers a panicking handler and answers 500 instead
// of letting net/http's own panic-recovery tear down just the one
// goroutine silently -- on a WebSocket upgrade route a silent panic during
// handshake negotiation would otherwise leave the client hanging with no
// response at all.
func RecoveryMiddleware(cfg RecoveryConfig) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if cfg.LogFunc != nil {
						cfg.LogFunc(r, rec)
					}
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
