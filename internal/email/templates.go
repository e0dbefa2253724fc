package email

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/osteele/liquid"
	"gopkg.in/yaml.v3"
)

const (
	TemplateWelcome           = "welcome"
	TemplateAdminNotification = "admin_notification"
	TemplateBroadcast         = "broadcast"
)

//go:embed templates.yaml
var catalogYAML []byte

type templateSource struct {
	Subject string `yaml:"subject"`
	HTML    string `yaml:"html"`
	Text    string `yaml:"text"`
}

type compiled struct {
	subject, html, text *liquid.Template
}

type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

// Renderer renders the embedded template catalog with Liquid. Every render
// receives the brand name as "brand".
type Renderer struct {
	brand     string
	templates map[string]compiled
}

func NewRenderer(brand string) (*Renderer, error) {
	return newRenderer(brand, catalogYAML)
}

func newRenderer(brand string, catalog []byte) (*Renderer, error) {
	var sources map[string]templateSource
	if err := yaml.Unmarshal(catalog, &sources); err != nil {
		return nil, fmt.Errorf("parse template catalog: %w", err)
	}

	engine := liquid.NewEngine()
	r := &Renderer{brand: brand, templates: make(map[string]compiled, len(sources))}
	for name, src := range sources {
		var c compiled
		for _, part := range []struct {
			label string
			body  string
			dst   **liquid.Template
		}{
			{"subject", src.Subject, &c.subject},
			{"html", src.HTML, &c.html},
			{"text", src.Text, &c.text},
		} {
			tpl, err := engine.ParseString(part.body)
			if err != nil {
				return nil, fmt.Errorf("template %s.%s: %w", name, part.label, err)
			}
			*part.dst = tpl
		}
		r.templates[name] = c
	}
	return r, nil
}

func (r *Renderer) Names() []string {
	out := make([]string, 0, len(r.templates))
	for name := range r.templates {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *Renderer) Render(name string, vars map[string]any) (Rendered, error) {
	c, ok := r.templates[name]
	if !ok {
		return Rendered{}, fmt.Errorf("unknown template %q", name)
	}

	bindings := liquid.Bindings{"brand": r.brand}
	for k, v := range vars {
		bindings[k] = v
	}

	var out Rendered
	var err error
	if out.Subject, err = renderPart(c.subject, bindings); err != nil {
		return Rendered{}, fmt.Errorf("template %s.subject: %w", name, err)
	}
	if out.HTML, err = renderPart(c.html, bindings); err != nil {
		return Rendered{}, fmt.Errorf("template %s.html: %w", name, err)
	}
	if out.Text, err = renderPart(c.text, bindings); err != nil {
		return Rendered{}, fmt.Errorf("template %s.text: %w", name, err)
	}
	out.Subject = strings.TrimSpace(sanitizeHeader(out.Subject))
	return out, nil
}

func renderPart(tpl *liquid.Template, b liquid.Bindings) (string, error) {
	s, serr := tpl.RenderString(b)
	if serr != nil {
		return "", serr
	}
	return s, nil
}
