// Package probe publishes the health of the display pipeline through the
// standard gRPC health service (grpc.health.v1.Health).
//
// Prober periodically asks the display service for the full listing and sets
// the serving status of ServiceName accordingly: SERVING when the listing
// could be produced (an empty listing is healthy), NOT_SERVING when the
// content source failed.
package probe
