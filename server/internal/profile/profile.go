package profile

import (
	"strconv"
	"strings"
)

// Custom field names used by the content source for profile data.
const (
	FieldPosition = "team_position"
	FieldPhone    = "team_phone"
	FieldEmail    = "team_email"
	FieldTwitter  = "team_twitter"
	FieldLinkedIn = "team_linkedin"
)

// Contact holds the optional ways to reach a team member.
// An empty field means the affordance is not rendered.
type Contact struct {
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
	Twitter  string `json:"twitter,omitempty"`
	LinkedIn string `json:"linkedin,omitempty"`
}

// Record is one team member, typed and ready to render.
// Records are immutable for the duration of a render pass.
type Record struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Position    string   `json:"position,omitempty"`
	Bio         string   `json:"bio,omitempty"`
	PhotoRef    string   `json:"photo_ref,omitempty"`
	Contact     Contact  `json:"contact"`
	Departments []string `json:"departments,omitempty"`
	SortKey     string   `json:"sort_key"`
	MenuOrder   int      `json:"menu_order"`
}

// Valid reports whether r has the minimum data needed to render: a display name.
func (r Record) Valid() bool {
	return strings.TrimSpace(r.Name) != ""
}

// InDepartment reports whether r belongs to the department slug.
func (r Record) InDepartment(slug string) bool {
	for _, d := range r.Departments {
		if strings.EqualFold(d, slug) {
			return true
		}
	}
	return false
}

// Post is a raw content-source entry: a titled post plus untyped custom fields.
type Post struct {
	ID          string            `yaml:"id" json:"id"`
	Type        string            `yaml:"type" json:"type"`
	Title       string            `yaml:"title" json:"title"`
	Content     string            `yaml:"content" json:"content"`
	Thumbnail   string            `yaml:"thumbnail" json:"thumbnail"`
	MenuOrder   int               `yaml:"menu_order" json:"menu_order"`
	Departments []string          `yaml:"departments" json:"departments"`
	Fields      map[string]string `yaml:"fields" json:"fields"`
}

// Record maps p onto a typed Record. This is the only place custom fields
// are looked up by name.
func (p Post) Record() Record {
	field := func(name string) string {
		return strings.TrimSpace(p.Fields[name])
	}
	name := strings.TrimSpace(p.Title)
	id := p.ID
	if id == "" {
		id = strconv.Itoa(p.MenuOrder) + ":" + name
	}
	return Record{
		ID:       id,
		Name:     name,
		Position: field(FieldPosition),
		Bio:      strings.TrimSpace(p.Content),
		PhotoRef: strings.TrimSpace(p.Thumbnail),
		Contact: Contact{
			Phone:    field(FieldPhone),
			Email:    field(FieldEmail),
			Twitter:  field(FieldTwitter),
			LinkedIn: field(FieldLinkedIn),
		},
		Departments: p.Departments,
		SortKey:     strings.ToLower(name),
		MenuOrder:   p.MenuOrder,
	}
}
