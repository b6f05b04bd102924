// Package analysis renders stored sessions into prompts and sends them to an
// OpenAI-compatible chat-completion endpoint.
package analysis

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Custom is the analysis type whose prompt is supplied by the caller.
const Custom = "custom"

var ErrUnknownType = errors.New("unknown analysis type")

//go:embed prompts/*.yaml prompts/*.tmpl
var embedded embed.FS

type Type struct {
	Key         string `yaml:"-"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	File        string `yaml:"file"`
}

// Registry holds the analysis types and their parsed templates. It is built
// once and shared read-only.
type Registry struct {
	types map[string]Type
	tmpl  *template.Template
}

// LoadRegistry reads metadata.yaml and the templates it names from dir, or
// from the built-in prompts when dir is empty.
func LoadRegistry(dir string) (*Registry, error) {
	var fsys fs.FS
	if dir == "" {
		sub, err := fs.Sub(embedded, "prompts")
		if err != nil {
			return nil, err
		}
		fsys = sub
	} else {
		fsys = os.DirFS(dir)
	}
	return loadRegistry(fsys)
}

func loadRegistry(fsys fs.FS) (*Registry, error) {
	data, err := fs.ReadFile(fsys, "metadata.yaml")
	if err != nil {
		return nil, fmt.Errorf("read prompt metadata: %w", err)
	}
	var meta map[string]Type
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse prompt metadata: %w", err)
	}

	r := &Registry{types: make(map[string]Type, len(meta)), tmpl: template.New("prompts")}
	for key, t := range meta {
		if key == Custom {
			return nil, fmt.Errorf("analysis type %q is reserved", Custom)
		}
		if t.File == "" {
			return nil, fmt.Errorf("analysis type %q has no template file", key)
		}
		body, err := fs.ReadFile(fsys, t.File)
		if err != nil {
			return nil, fmt.Errorf("analysis type %q: %w", key, err)
		}
		if _, err := r.tmpl.New(key).Option("missingkey=error").Parse(string(body)); err != nil {
			return nil, fmt.Errorf("parse template %s: %w", t.File, err)
		}
		t.Key = key
		if t.Name == "" {
			t.Name = key
		}
		r.types[key] = t
	}
	return r, nil
}

// Types returns the template-backed types sorted by key.
func (r *Registry) Types() []Type {
	out := make([]Type, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Lookup returns the type registered under key.
func (r *Registry) Lookup(key string) (Type, bool) {
	if key == Custom {
		return Type{Key: Custom, Name: "Custom Analysis"}, true
	}
	t, ok := r.types[key]
	return t, ok
}

// Render builds the prompt of analysis type key for transcript. customPrompt
// is required for the custom type and ignored otherwise.
func (r *Registry) Render(key, customPrompt, transcript string) (string, error) {
	if key == Custom {
		if customPrompt == "" {
			return "", errors.New("a prompt is required for the custom analysis type")
		}
		return customPrompt + "\n\n---\n\nCONVERSATION TRANSCRIPT:\n\n" + transcript, nil
	}
	if _, ok := r.types[key]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownType, key)
	}
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, key, struct{ Transcript string }{transcript}); err != nil {
		return "", fmt.Errorf("render %s: %w", key, err)
	}
	return buf.String(), nil
}
