package worker

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"strings"

	"github.com/voyagecrm/notify/internal/domain/mailqueue"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Renderer maps a template type to an embedded template set defining
// "subject", "html" and "text". Unknown types fall back to the generic
// template so a new event kind can ship before its dedicated template.
type Renderer struct {
	sets map[string]*template.Template
}

var _ mailqueue.Renderer = (*Renderer)(nil)

func NewRenderer() (*Renderer, error) {
	entries, err := fs.ReadDir(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}

	sets := make(map[string]*template.Template, len(entries))
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".tmpl")
		t, err := template.ParseFS(templateFS, "templates/"+e.Name())
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", e.Name(), err)
		}
		sets[name] = t
	}
	if _, ok := sets["generic"]; !ok {
		return nil, fmt.Errorf("generic fallback template missing")
	}
	return &Renderer{sets: sets}, nil
}

func (r *Renderer) Render(templateType string, vars map[string]any) (mailqueue.RenderedMail, error) {
	t, ok := r.sets[templateType]
	if !ok {
		t = r.sets["generic"]
	}

	render := func(part string) (string, error) {
		var buf bytes.Buffer
		if err := t.ExecuteTemplate(&buf, part, vars); err != nil {
			return "", fmt.Errorf("render %s/%s: %w", templateType, part, err)
		}
		return strings.TrimSpace(buf.String()), nil
	}

	subject, err := render("subject")
	if err != nil {
		return mailqueue.RenderedMail{}, err
	}
	html, err := render("html")
	if err != nil {
		return mailqueue.RenderedMail{}, err
	}
	text, err := render("text")
	if err != nil {
		return mailqueue.RenderedMail{}, err
	}
	return mailqueue.RenderedMail{Subject: subject, HTML: html, Text: text}, nil
}
