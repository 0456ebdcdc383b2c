package panel

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/niivue/niiview/internal/eventloop"
	"github.com/niivue/niiview/internal/registry"
)

// Observer is notified of panel lifecycle changes, on the event loop.
type Observer interface {
	PanelCreated(info Info)
	PanelAttached(info Info)
	PanelDisposed(info Info)
}

// FactoryOptions configures a Factory.
type FactoryOptions struct {
	Loop     *eventloop.EventLoop
	Registry *registry.Registry[*Panel]
	Pages    PageRenderer
	Revealer Revealer
	Observer Observer
	Logger   logrus.FieldLogger
	// OnError receives the errors of queued panel tasks.
	OnError func(error)
	// Common attaches the message listeners every panel shares.
	Common func(p *Panel) error
}

// Factory creates panels.
type Factory struct {
	opts  FactoryOptions
	newID func() string
}

// NewFactory returns a Factory. Pages defaults to the embedded template.
func NewFactory(opts FactoryOptions) (*Factory, error) {
	if opts.Pages == nil {
		pages, err := NewTemplatePage()
		if err != nil {
			return nil, err
		}
		opts.Pages = pages
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Factory{
		opts:  opts,
		newID: uuid.NewString,
	}, nil
}

// CreatePanel allocates a panel of the given kind, attaches the common
// listeners, registers it under resource and reveals it. It must be called on
// the event loop; the panel can't receive messages before the caller returns
// control to the loop, so listeners added right after it never miss one.
func (f *Factory) CreatePanel(ctx context.Context, kind, title, resource string) (*Panel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := newPanel(f.opts.Loop, f.opts.Logger, f.opts.Observer, f.opts.OnError,
		f.newID(), kind, title, resource)

	page, err := f.opts.Pages.Render(p)
	if err != nil {
		return nil, err
	}
	p.page = page

	if f.opts.Common != nil {
		if err := f.opts.Common(p); err != nil {
			return nil, fmt.Errorf("attaching listeners to panel %s: %w", p.ID(), err)
		}
	}

	if f.opts.Registry != nil && !f.opts.Registry.Register(resource, p) {
		return nil, fmt.Errorf("panel %s is already registered for %s", p.ID(), resource)
	}

	p.logger.WithFields(logrus.Fields{
		"kind":     kind,
		"resource": resource,
	}).Debug("Panel created")
	if f.opts.Observer != nil {
		f.opts.Observer.PanelCreated(p.Info())
	}

	if f.opts.Revealer != nil {
		// the panel outlives the request that created it
		revealCtx := context.WithoutCancel(ctx)
		go func() {
			if err := f.opts.Revealer.Reveal(revealCtx, p); err != nil {
				p.logger.WithError(err).Warn("Couldn't reveal the panel")
			}
		}()
	}

	return p, nil
}
