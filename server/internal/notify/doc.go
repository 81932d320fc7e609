// Package notify delivers webhook notifications when the cached team listing
// is invalidated, so editors and chat channels learn that the public page
// has been refreshed.
//
// Supported target types are slack, teams (MessageCard) and http (raw JSON
// event). Delivery is asynchronous; failures are logged and never reach the
// caller.
package notify
