// Package templates holds named email templates loaded from YAML. Providers
// without server-side template storage render templated sends from here.
package templates

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"os"
	"sort"
	texttemplate "text/template"

	"gopkg.in/yaml.v3"
)

// ErrTemplateNotFound is returned when a name is not in the catalog.
var ErrTemplateNotFound = errors.New("template not found")

// Template is the YAML definition of one template. Fields use Go template
// syntax against the decoded template data, e.g. "Hello {{.name}}".
type Template struct {
	Subject string `yaml:"subject"`
	Text    string `yaml:"text"`
	HTML    string `yaml:"html"`
}

// Rendered is a template executed against its data.
type Rendered struct {
	Subject string
	Text    string
	HTML    string
}

type file struct {
	Templates map[string]Template `yaml:"templates"`
}

type compiled struct {
	subject *texttemplate.Template
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

// Catalog is an immutable set of parsed templates. A nil Catalog is empty.
type Catalog struct {
	templates map[string]compiled
}

// Load reads and parses a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("reading templates file %q: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a catalog from YAML of the form:
//
//	templates:
//	  welcome:
//	    subject: "Hi {{.name}}"
//	    text: "..."
//	    html: "..."
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	return New(f.Templates)
}

// New compiles the given definitions.
func New(defs map[string]Template) (*Catalog, error) {
	c := &Catalog{templates: make(map[string]compiled, len(defs))}
	for name, def := range defs {
		if def.Subject == "" {
			return nil, fmt.Errorf("template %q: subject is required", name)
		}
		if def.Text == "" && def.HTML == "" {
			return nil, fmt.Errorf("template %q: text or html body is required", name)
		}

		var ct compiled
		var err error
		if ct.subject, err = texttemplate.New(name + ".subject").Parse(def.Subject); err != nil {
			return nil, fmt.Errorf("template %q subject: %w", name, err)
		}
		if ct.text, err = texttemplate.New(name + ".text").Parse(def.Text); err != nil {
			return nil, fmt.Errorf("template %q text: %w", name, err)
		}
		if ct.html, err = htmltemplate.New(name + ".html").Parse(def.HTML); err != nil {
			return nil, fmt.Errorf("template %q html: %w", name, err)
		}
		c.templates[name] = ct
	}
	return c, nil
}

// Has reports whether name is in the catalog.
func (c *Catalog) Has(name string) bool {
	if c == nil {
		return false
	}
	_, ok := c.templates[name]
	return ok
}

// Names returns the template names in sorted order.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.templates))
	for name := range c.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render executes the named template. data is a JSON object; an empty string
// renders with no values.
func (c *Catalog) Render(name, data string) (Rendered, error) {
	if c == nil {
		return Rendered{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	ct, ok := c.templates[name]
	if !ok {
		return Rendered{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}

	values := map[string]any{}
	if data != "" {
		if err := json.Unmarshal([]byte(data), &values); err != nil {
			return Rendered{}, fmt.Errorf("decoding template data: %w", err)
		}
	}

	var out Rendered
	var buf bytes.Buffer
	if err := ct.subject.Execute(&buf, values); err != nil {
		return Rendered{}, fmt.Errorf("rendering %q subject: %w", name, err)
	}
	out.Subject = buf.String()

	buf.Reset()
	if err := ct.text.Execute(&buf, values); err != nil {
		return Rendered{}, fmt.Errorf("rendering %q text: %w", name, err)
	}
	out.Text = buf.String()

	buf.Reset()
	if err := ct.html.Execute(&buf, values); err != nil {
		return Rendered{}, fmt.Errorf("rendering %q html: %w", name, err)
	}
	out.HTML = buf.String()

	return out, nil
}
