package api

// ProfileResponse is one record in GET /api/v1/profiles.
type ProfileResponse struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Position    string          `json:"position,omitempty"`
	Bio         string          `json:"bio,omitempty"`
	Photo       string          `json:"photo,omitempty"`
	Departments []string        `json:"departments"`
	MenuOrder   int             `json:"menu_order"`
	Contact     ContactResponse `json:"contact"`
}

// ContactResponse holds the optional contact channels of a profile.
type ContactResponse struct {
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
	Twitter  string `json:"twitter,omitempty"`
	LinkedIn string `json:"linkedin,omitempty"`
}

// TeamResponse is the JSON form of a rendered listing, used by the
// websocket stream.
type TeamResponse struct {
	Department  string `json:"department,omitempty"`
	HTML        string `json:"html"`
	Empty       bool   `json:"empty"`
	GeneratedAt string `json:"generated_at"` // RFC3339
}

// InvalidateResponse is the payload for DELETE /api/v1/cache.
type InvalidateResponse struct {
	Invalidated int      `json:"invalidated"`
	Keys        []string `json:"keys"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}
