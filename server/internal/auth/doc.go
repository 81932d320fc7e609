// Package auth provides API key authentication for teamprofiles-server.
//
// APIKeyInterceptor(mode, header, key) guards the gRPC listener and
// RequireAPIKey(mode, header, key) guards mutating HTTP routes. Both let
// every call through when mode != "apikey" or key == "" (local development
// with auth disabled). A missing or wrong key is rejected with
// codes.Unauthenticated or 401 respectively.
package auth
