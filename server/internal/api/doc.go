// Package api implements the HTTP surface of teamprofiles-server.
//
// New(svc, opts) returns an http.Handler that serves:
//
//	GET    /team[?department=slug]             rendered HTML fragment; 204 when nobody is listed
//	GET    /api/v1/profiles[?department=slug]  records straight from the content source
//	DELETE /api/v1/cache                       drop every cached listing (API key required)
//
// Every response carries an X-Request-ID header, taken from the request when
// the caller supplied one. Errors are JSON ({"error": "...", "request_id": "..."})
// and non-matching methods get 405.
//
// JSON types are defined in types.go. No external HTTP framework is used.
package api
