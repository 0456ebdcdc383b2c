package panel

import (
	"context"
	"fmt"
	"io"

	"github.com/pkg/browser"
)

// Revealer shows a freshly created panel to the user.
type Revealer interface {
	Reveal(ctx context.Context, p *Panel) error
}

// URLFunc returns the address of the page of a panel.
type URLFunc func(p *Panel) string

// BrowserRevealer opens the panel page in the default browser.
type BrowserRevealer struct {
	URL URLFunc

	openURL func(url string) error
}

// NewBrowserRevealer returns a revealer opening url(p) in the default browser.
func NewBrowserRevealer(url URLFunc) *BrowserRevealer {
	return &BrowserRevealer{URL: url, openURL: browser.OpenURL}
}

// Reveal implements Revealer.
func (r *BrowserRevealer) Reveal(ctx context.Context, p *Panel) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.openURL(r.URL(p))
}

// PrintRevealer writes the panel address to w, for hosts without a browser.
type PrintRevealer struct {
	URL URLFunc
	W   io.Writer
}

// Reveal implements Revealer.
func (r *PrintRevealer) Reveal(_ context.Context, p *Panel) error {
	_, err := fmt.Fprintf(r.W, "%s: %s\n", p.Title(), r.URL(p))
	return err
}
