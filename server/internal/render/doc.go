// Package render turns an ordered list of profile records into the team
// listing HTML fragment.
//
// Render is pure: the same records always produce byte-identical output.
// Optional elements (photo, position, bio, each contact link) are left out
// entirely when their field is empty. A listing with no renderable records
// yields Empty rather than an error.
package render
