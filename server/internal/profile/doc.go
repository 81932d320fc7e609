// Package profile defines the team member record served by the listing and
// the mapping from raw content-source posts (title, body, thumbnail and
// named custom fields) onto it.
package profile
