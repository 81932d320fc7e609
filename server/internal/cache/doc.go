// Package cache provides the time-expiring key/value store that memoizes
// rendered listings.
//
// Two backends implement Cache:
//   - Memory: RWMutex-guarded map with an injectable clock, for a single process.
//   - Disk: one JSON file per key (MD5-hashed name) under a base directory,
//     surviving restarts and shareable between processes on one host.
//
// Expiry is evaluated on read; Run purges expired entries only to reclaim space.
package cache
