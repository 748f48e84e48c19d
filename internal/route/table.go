package route

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/switchboard/internal/api"
	"github.com/felixgeelhaar/switchboard/internal/errors"
)

// TableVersion is the route table schema version this build reads.
const TableVersion = 1

//go:embed routes.yaml
var defaultRoutes []byte

// Table is an ordered set of route declarations.
type Table struct {
	Version int     `yaml:"version"`
	Routes  []Route `yaml:"routes"`
}

// DefaultTable returns the built-in route table.
func DefaultTable() *Table {
	t, err := ParseTable(defaultRoutes)
	if err != nil {
		panic(fmt.Sprintf("built-in route table: %v", err))
	}
	return t
}

// LoadTable reads a route table override from path. An empty path selects
// the built-in table.
func LoadTable(path string) (*Table, error) {
	if path == "" {
		return DefaultTable(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, fmt.Sprintf("failed to read route table: %s", path), err).
			WithSuggestion("Check routes.file in the config or remove it to use the built-in table")
	}
	t, err := ParseTable(data)
	if err != nil {
		if sbErr, ok := errors.As(err); ok && sbErr.Code == errors.ErrCodeFileUnmarshal {
			return nil, errors.NewFileUnmarshalError(path, "YAML", sbErr.Cause)
		}
		return nil, err
	}
	return t, nil
}

// ParseTable decodes and validates a YAML route table.
func ParseTable(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileUnmarshal, "failed to parse route table", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	for i := range t.Routes {
		t.Routes[i].Path = Normalize(t.Routes[i].Path)
	}
	return &t, nil
}

// Validate checks the declarations for unknown roles and duplicates. A
// path may be declared twice only as one exact entry and one section.
func (t *Table) Validate() error {
	if t.Version != TableVersion {
		return invalid("unsupported route table version %d (want %d)", t.Version, TableVersion)
	}
	if len(t.Routes) == 0 {
		return invalid("route table declares no routes")
	}
	type key struct {
		path  string
		exact bool
	}
	seen := make(map[key]bool, len(t.Routes))
	hasLogin := false
	for i, r := range t.Routes {
		if r.Path == "" || r.Path[0] != '/' {
			return invalid("route %d: path %q must start with /", i, r.Path)
		}
		k := key{Normalize(r.Path), r.Exact}
		if seen[k] {
			return invalid("route %d: duplicate declaration of %s (exact=%t)", i, k.path, k.exact)
		}
		seen[k] = true
		for _, role := range r.Roles {
			if !role.Valid() {
				return invalid("route %s: unknown role %q", r.Path, role)
			}
		}
		if r.Public && len(r.Roles) > 0 {
			return invalid("route %s: a public route cannot restrict roles", r.Path)
		}
		if k.path == LoginPath {
			hasLogin = true
		}
	}
	if !hasLogin {
		return invalid("route table must declare %s", LoginPath)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return errors.New(errors.ErrCodeRouteTableInvalid, fmt.Sprintf(format, args...)).
		WithSuggestion("Fix the route table file or remove routes.file from the config")
}

// Resolve finds the declaration governing p: an exact declaration of the
// path first, then a section declaring the path itself, then the longest
// section prefix.
func (t *Table) Resolve(p string) (Route, bool) {
	p = Normalize(p)
	var (
		best  Route
		found bool
	)
	for _, r := range t.Routes {
		if r.Exact && r.Path == p {
			return r, true
		}
	}
	for _, r := range t.Routes {
		if r.Exact || !r.Matches(p) {
			continue
		}
		if !found || len(r.Path) > len(best.Path) {
			best, found = r, true
		}
	}
	return best, found
}

// Nav returns the titled routes role may render, in declaration order.
func (t *Table) Nav(role api.Role) []Route {
	var out []Route
	for _, r := range t.Routes {
		if r.Title == "" || r.Public || !r.Allows(role) {
			continue
		}
		out = append(out, r)
	}
	return out
}
