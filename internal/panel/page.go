package panel

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"

	"github.com/niivue/niiview/internal/protocol"
)

//go:embed page.html
var pageTemplateContent string

// PageRenderer produces the host page served to the surface of a panel.
type PageRenderer interface {
	Render(p *Panel) ([]byte, error)
}

// TemplatePage renders the embedded host page.
type TemplatePage struct {
	tmpl *template.Template
}

// NewTemplatePage parses the embedded host page template.
func NewTemplatePage() (*TemplatePage, error) {
	tmpl, err := template.New("page").Parse(pageTemplateContent)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page template: %w", err)
	}
	return &TemplatePage{tmpl: tmpl}, nil
}

type pageData struct {
	ID           string
	Kind         string
	Title        string
	SocketPath   string
	Subprotocols []string
}

// Render implements PageRenderer.
func (tp *TemplatePage) Render(p *Panel) ([]byte, error) {
	var buf bytes.Buffer
	err := tp.tmpl.Execute(&buf, pageData{
		ID:    p.ID(),
		Kind:  p.Kind(),
		Title: p.Title(),
		// relative to /panels/{id}
		SocketPath: p.ID() + "/ws",
		// the page only speaks JSON
		Subprotocols: []string{protocol.JSON.Subprotocol()},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render page of panel %s: %w", p.ID(), err)
	}
	return buf.Bytes(), nil
}
