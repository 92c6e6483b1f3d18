package middleware

import "net/http"

// CORS header values sent on every response.
const (
	CORSAllowOrigin      = "*"
	CORSAllowMethods     = "POST, PATCH, PUT, DELETE, HEAD, OPTIONS, GET"
	CORSAllowHeaders     = "*"
	CORSAllowCredentials = "true"
)

// CORS adds the cross-origin headers to every response, including errors.
// OPTIONS requests on any path are answered here with 204 No Content so that
// no catch-all route is needed.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", CORSAllowOrigin)
		h.Set("Access-Control-Allow-Methods", CORSAllowMethods)
		h.Set("Access-Control-Allow-Headers", CORSAllowHeaders)
		h.Set("Access-Control-Allow-Credentials", CORSAllowCredentials)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
