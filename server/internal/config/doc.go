// Package config loads the server configuration from the `server:` section
// of config.yaml.
//
// Config fields:
//   - GRPCPort       : port for the gRPC health service (default 50051)
//   - HTTPPort       : port for the fragment, REST API and WebSocket hub (default 8080)
//   - Auth           : "apikey" or "none"; key resolved from KeyEnv, header from Header
//   - Cache.Backend  : "memory" (default) or "disk" with Cache.Dir
//   - Cache.TTL      : how long a rendered listing is served (default 24h)
//   - Source         : "file" (YAML at Path) or "http" (REST Endpoint), query
//     defaults team / 50 / title / asc
//   - Render         : heading, lead quote, thumbnail size (default 100px)
//   - Stream, Probe  : websocket broadcast and health probe intervals
//   - Webhooks       : teams | slack | http targets notified on invalidation
//
// Load(path) applies defaults before unmarshalling, then validates.
// Watch(ctx, path, onChange) reloads the file on change via fsnotify.
package config
