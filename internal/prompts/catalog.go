// Package prompts holds the instruction texts sent to the inference backend
// for each routing step.
package prompts

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Catalog entry names.
const (
	RouteQuery             = "route_query"
	PrepareDatabaseQuery   = "prepare_database_query"
	HandleDatabaseQuery    = "handle_database_query"
	HandleNonDatabaseQuery = "handle_non_database_query"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Prompt is one catalog entry. Task is a text/template rendered against Data.
type Prompt struct {
	Role   string `yaml:"role"`
	System string `yaml:"system"`
	Task   string `yaml:"task"`

	tmpl *template.Template
}

// Data is the template input for a task.
type Data struct {
	Query    string
	Category string
	Previous string
}

// Rendered is a prompt ready for a completion request.
type Rendered struct {
	Instructions string
	Input        string
}

type Catalog struct {
	Prompts map[string]*Prompt `yaml:"prompts"`
}

// Default returns a fresh copy of the embedded catalog.
func Default() *Catalog {
	c, err := Load(bytes.NewReader(defaultCatalog))
	if err != nil {
		panic(fmt.Sprintf("embedded prompt catalog: %v", err))
	}
	return c
}

// Load decodes and compiles a catalog.
func Load(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var c Catalog
	if err := dec.Decode(&c); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode prompt catalog: %w", err)
	}
	if c.Prompts == nil {
		c.Prompts = map[string]*Prompt{}
	}
	if err := c.compile(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadFile reads a catalog from disk.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open prompt catalog %s: %w", path, err)
	}
	defer f.Close()
	c, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func (c *Catalog) compile() error {
	for name, p := range c.Prompts {
		if p == nil || strings.TrimSpace(p.Task) == "" {
			return fmt.Errorf("prompt %q: task is required", name)
		}
		t, err := template.New(name).Option("missingkey=error").Parse(p.Task)
		if err != nil {
			return fmt.Errorf("prompt %q: %w", name, err)
		}
		p.tmpl = t
	}
	return nil
}

// Merge returns a catalog where entries of override replace those of c.
func (c *Catalog) Merge(override *Catalog) *Catalog {
	out := &Catalog{Prompts: make(map[string]*Prompt, len(c.Prompts))}
	for k, v := range c.Prompts {
		out.Prompts[k] = v
	}
	if override != nil {
		for k, v := range override.Prompts {
			out.Prompts[k] = v
		}
	}
	return out
}

// Names lists the catalog entries in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.Prompts))
	for k := range c.Prompts {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Render fills the named task template.
func (c *Catalog) Render(name string, data Data) (Rendered, error) {
	p, ok := c.Prompts[name]
	if !ok {
		return Rendered{}, fmt.Errorf("prompt %q not found", name)
	}
	var buf strings.Builder
	if err := p.tmpl.Execute(&buf, data); err != nil {
		return Rendered{}, fmt.Errorf("render prompt %q: %w", name, err)
	}
	return Rendered{Instructions: strings.TrimSpace(p.System), Input: buf.String()}, nil
}
