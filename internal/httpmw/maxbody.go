package httpmw

import "net/http"

// MaxBody caps request bodies at n bytes. A declared length over the cap
// is refused with 413 up front; otherwise reading past it fails, which the
// rewrite proxy also reports upstream as a truncated body.
func MaxBody(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > n {
				http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, n)
			next.ServeHTTP(w, r)
		})
	}
}
