// Package source reads team profiles from the content store.
//
// New(cfg) returns one of:
//   - File: a YAML document of posts, re-read on every List, with Watch for
//     change notifications (used to invalidate the cached listing).
//   - Remote: a CMS REST collection (WordPress-style JSON with custom fields
//     under "acf"), authenticated with apikey, bearer or basic credentials.
//
// Both map raw posts through profile.Post.Record, so callers only ever see
// typed records. Errors are returned to the caller unchanged in meaning; the
// package never retries.
package source
