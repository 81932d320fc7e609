package render

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/obsidianstack/teamprofiles/server/internal/profile"
)

// View is a rendered listing fragment, embedded verbatim by the caller.
type View string

// Empty is the view for a listing with no members. It is a valid result,
// not an error.
const Empty View = ""

// IsEmpty reports whether v is the Empty sentinel.
func (v View) IsEmpty() bool { return v == Empty }

// Options controls the static parts of the fragment.
type Options struct {
	Heading   string
	Lead      string
	ThumbSize int
}

// Renderer turns an ordered slice of records into a View.
// It holds no mutable state and is safe for concurrent use.
type Renderer struct {
	opts Options
}

// New creates a Renderer. A non-positive ThumbSize falls back to 100.
func New(opts Options) *Renderer {
	if opts.ThumbSize <= 0 {
		opts.ThumbSize = 100
	}
	return &Renderer{opts: opts}
}

// Options returns the options r was built with.
func (r *Renderer) Options() Options { return r.opts }

type listing struct {
	Heading   string
	Lead      string
	ThumbSize int
	Members   []member
}

type member struct {
	Name     string
	Position string
	Bio      template.HTML
	Photo    string
	Alt      string
	Phone    string
	Mailto   template.HTMLAttr
	Twitter  string
	LinkedIn string
}

// Render produces the fragment for records in the order given. Records
// without a display name are skipped. If no renderable record remains the
// result is Empty.
func (r *Renderer) Render(records []profile.Record) View {
	data := listing{
		Heading:   r.opts.Heading,
		Lead:      r.opts.Lead,
		ThumbSize: r.opts.ThumbSize,
		Members:   make([]member, 0, len(records)),
	}
	for _, rec := range records {
		if !rec.Valid() {
			continue
		}
		data.Members = append(data.Members, toMember(rec))
	}
	if len(data.Members) == 0 {
		return Empty
	}

	var buf bytes.Buffer
	if err := teamTmpl.Execute(&buf, data); err != nil {
		// The template is static and data is plain strings; failure is a bug.
		panic(fmt.Sprintf("render: execute team template: %v", err))
	}
	return View(buf.String())
}

func toMember(rec profile.Record) member {
	m := member{
		Name:     strings.TrimSpace(rec.Name),
		Position: rec.Position,
		// Bio is editor-authored markup from the content source.
		Bio:      template.HTML(rec.Bio), //nolint:gosec
		Photo:    rec.PhotoRef,
		Phone:    rec.Contact.Phone,
		Twitter:  rec.Contact.Twitter,
		LinkedIn: rec.Contact.LinkedIn,
	}
	m.Alt = m.Name
	if rec.Position != "" {
		m.Alt += ", " + rec.Position
	}
	if rec.Contact.Email != "" {
		m.Mailto = template.HTMLAttr(`href="` + obfuscate("mailto:"+rec.Contact.Email) + `"`) //nolint:gosec
	}
	return m
}

// obfuscate encodes every character of s as an HTML numeric character
// reference, alternating decimal and hex forms. Browsers decode it; naive
// address harvesters do not. Output depends only on s.
func obfuscate(s string) string {
	var b strings.Builder
	i := 0
	for _, c := range s {
		if i%2 == 0 {
			fmt.Fprintf(&b, "&#%d;", c)
		} else {
			fmt.Fprintf(&b, "&#x%x;", c)
		}
		i++
	}
	return b.String()
}

var teamTmpl = template.Must(template.New("team").Parse(`<section class="row profiles">
	<div class="intro">
		<h2>{{.Heading}}</h2>
		{{- if .Lead}}
		<p class="lead">{{.Lead}}</p>
		{{- end}}
	</div>
	{{- range .Members}}
	<article class="col-sm-6 profile">
		<div class="profile-header">
			{{- if .Photo}}
			<img src="{{.Photo}}" alt="{{.Alt}}" width="{{$.ThumbSize}}" height="{{$.ThumbSize}}" class="img-circle">
			{{- end}}
		</div>
		<div class="profile-content">
			<h3>{{.Name}}</h3>
			{{- if .Position}}
			<p class="lead position">{{.Position}}</p>
			{{- end}}
			{{- if .Bio}}
			{{.Bio}}
			{{- end}}
		</div>
		<div class="profile-footer">
			{{- if .Phone}}
			<a href="tel:{{.Phone}}"><i class="icon-mobile-phone"></i></a>
			{{- end}}
			{{- if .Mailto}}
			<a {{.Mailto}}><i class="icon-envelope"></i></a>
			{{- end}}
			{{- if .Twitter}}
			<a href="{{.Twitter}}"><i class="icon-twitter"></i></a>
			{{- end}}
			{{- if .LinkedIn}}
			<a href="{{.LinkedIn}}"><i class="icon-linkedin"></i></a>
			{{- end}}
		</div>
	</article>
	{{- end}}
</section>
`))
