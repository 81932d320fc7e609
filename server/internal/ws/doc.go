// Package ws implements the live preview hub for teamprofiles-server.
//
// Hub keeps a set of connected websocket clients and pushes the current team
// listing to all of them every interval, and immediately after Refresh (the
// server calls it when the content changes).
//
// Message format sent to clients:
//
//	{
//	  "event": "team",
//	  "data":  {"html": "...", "empty": false, "generated_at": "..."}
//	}
//
// The upgrader accepts all origins. Apply CORS restrictions at the reverse
// proxy level. The endpoint is mounted at /ws/stream by the server.
package ws
