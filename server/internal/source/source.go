package source

import (
	"context"
	"fmt"
	"sort"

	"github.com/obsidianstack/teamprofiles/server/internal/config"
	"github.com/obsidianstack/teamprofiles/server/internal/profile"
)

// Ordering fields and directions accepted in a Query.
const (
	OrderByTitle     = "title"
	OrderByMenuOrder = "menu_order"
	Asc              = "asc"
	Desc             = "desc"
)

// Query selects and orders records.
type Query struct {
	PostType   string
	Department string // empty matches every department
	Limit      int    // <= 0 means no limit
	OrderBy    string // title | menu_order
	Order      string // asc | desc
}

// Source is the read side of the content store.
type Source interface {
	List(ctx context.Context, q Query) ([]profile.Record, error)
}

// QueryFromConfig builds the listing query from the source settings.
func QueryFromConfig(cfg config.SourceConfig) Query {
	return Query{
		PostType: cfg.PostType,
		Limit:    cfg.Limit,
		OrderBy:  cfg.OrderBy,
		Order:    cfg.Order,
	}
}

// New returns the Source described by cfg.
func New(cfg config.SourceConfig) (Source, error) {
	switch cfg.Type {
	case "file":
		return NewFile(cfg.Path), nil
	case "http":
		return NewRemote(cfg)
	default:
		return nil, fmt.Errorf("source: unsupported type %q", cfg.Type)
	}
}

// apply filters posts by type and department, maps them to records, orders
// them and truncates to the limit. Posts without a type count as "team".
// Sorting is stable so equal keys keep their source order.
func apply(posts []profile.Post, q Query) []profile.Record {
	out := make([]profile.Record, 0, len(posts))
	for _, p := range posts {
		typ := p.Type
		if typ == "" {
			typ = "team"
		}
		if q.PostType != "" && typ != q.PostType {
			continue
		}
		r := p.Record()
		if q.Department != "" && !r.InDepartment(q.Department) {
			continue
		}
		out = append(out, r)
	}

	less := func(a, b profile.Record) bool { return a.SortKey < b.SortKey }
	if q.OrderBy == OrderByMenuOrder {
		less = func(a, b profile.Record) bool {
			if a.MenuOrder != b.MenuOrder {
				return a.MenuOrder < b.MenuOrder
			}
			return a.SortKey < b.SortKey
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if q.Order == Desc {
			return less(out[j], out[i])
		}
		return less(out[i], out[j])
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}
