package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/obsidianstack/teamprofiles/server/internal/profile"
)

// document is the on-disk layout of a profile file.
type document struct {
	Posts []profile.Post `yaml:"posts"`
}

// File reads profiles from a YAML document:
//
//	posts:
//	  - id: "1"
//	    title: Mona Lisa
//	    content: <p>Smiles a lot.</p>
//	    thumbnail: https://cdn.example.com/mona.jpg
//	    departments: [art]
//	    fields:
//	      team_position: Head of Portraits
//	      team_email: mona@example.com
//
// The file is read on every List so edits are picked up without a restart.
type File struct {
	path string
}

// NewFile creates a File source for path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the profile file path.
func (f *File) Path() string { return f.path }

// List reads the file and returns the records selected by q.
func (f *File) List(ctx context.Context, q Query) ([]profile.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("file source: read %q: %w", f.path, err)
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("file source: parse %q: %w", f.path, err)
	}
	return apply(doc.Posts, q), nil
}

// Watch calls onChange each time the profile file is written, created or
// replaced. It watches the parent directory so atomic saves (write to temp,
// rename over) are seen. Watch blocks until ctx is cancelled.
func (f *File) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(f.path)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	name := filepath.Clean(f.path)

	slog.Info("file source: watching for changes", "path", f.path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			slog.Info("file source: profiles changed", "path", f.path, "op", event.Op.String())
			onChange()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("file source: watcher error", "err", err)
		}
	}
}
