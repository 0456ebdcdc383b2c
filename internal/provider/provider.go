// Package provider implements the niiview commands: it opens resources,
// creates the panels showing them and answers the requests of their surfaces.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/niivue/niiview/internal/document"
	"github.com/niivue/niiview/internal/eventloop"
	"github.com/niivue/niiview/internal/fsext"
	"github.com/niivue/niiview/internal/panel"
	"github.com/niivue/niiview/internal/protocol"
	"github.com/niivue/niiview/internal/registry"
	"github.com/niivue/niiview/internal/ui/dialog"
)

// Panel titles.
const (
	WebPanelTitle     = "NiiView Web Panel"
	ComparePanelTitle = "NiiView Compare Panel"
)

// Dialog labels.
const (
	OverlayDialogLabel = "Open Overlay"
	ImagesDialogLabel  = "Open Images"
)

// ErrUnknownPanel is returned for ids that don't belong to a live panel.
var ErrUnknownPanel = errors.New("unknown panel")

// Picker shows file selection dialogs. An empty selection means the user
// cancelled.
type Picker interface {
	Pick(ctx context.Context, opts dialog.Options) ([]document.URI, error)
}

// Notifier surfaces errors to the user of the host.
type Notifier interface {
	Notify(err error)
}

// Options configures a Provider.
type Options struct {
	Fs       fsext.Fs
	Loop     *eventloop.EventLoop
	Picker   Picker
	Notifier Notifier
	Pages    panel.PageRenderer
	Revealer panel.Revealer
	Observer panel.Observer
	Logger   logrus.FieldLogger
}

// Provider owns the panel registry and creates every panel of the host.
//
// Its exported methods must not be called from the event loop.
type Provider struct {
	ctx      context.Context //nolint:containedctx
	cancel   context.CancelFunc
	fs       fsext.Fs
	loop     *eventloop.EventLoop
	picker   Picker
	notifier Notifier
	logger   logrus.FieldLogger

	registry *registry.Registry[*panel.Panel]
	factory  *panel.Factory
}

// New returns a provider. File reads and dialogs are canceled when ctx is done
// or the provider is closed.
func New(ctx context.Context, opts Options) (*Provider, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(ctx)
	pr := &Provider{
		ctx:      ctx,
		cancel:   cancel,
		fs:       opts.Fs,
		loop:     opts.Loop,
		picker:   opts.Picker,
		notifier: opts.Notifier,
		logger:   opts.Logger,
		registry: registry.New[*panel.Panel](),
	}

	factory, err := panel.NewFactory(panel.FactoryOptions{
		Loop:     opts.Loop,
		Registry: pr.registry,
		Pages:    opts.Pages,
		Revealer: opts.Revealer,
		Observer: opts.Observer,
		Logger:   opts.Logger,
		OnError:  pr.ReportError,
		Common:   pr.addCommonListeners,
	})
	if err != nil {
		cancel()
		return nil, err
	}
	pr.factory = factory
	return pr, nil
}

// ReportError logs err and forwards it to the notifier.
func (pr *Provider) ReportError(err error) {
	var ioErr *document.IOError
	if errors.As(err, &ioErr) {
		pr.logger.WithError(ioErr.Err).WithField("resource", ioErr.URI.String()).Error("Couldn't read resource")
	} else {
		pr.logger.WithError(err).Error("Panel error")
	}
	if pr.notifier != nil {
		pr.notifier.Notify(err)
	}
}

// OpenDocument reads the resource at uri.
func (pr *Provider) OpenDocument(ctx context.Context, uri document.URI) (*document.Document, error) {
	doc, err := document.Open(ctx, pr.fs, uri)
	if err != nil {
		return nil, err
	}
	pr.logger.WithFields(logrus.Fields{
		"resource": uri.String(),
		"size":     doc.Len(),
	}).Debug("Document opened")
	return doc, nil
}

// ResolveEditor creates the editor panel of doc. Once the surface is ready it
// receives the document payload.
func (pr *Provider) ResolveEditor(ctx context.Context, doc *document.Document) (*panel.Panel, error) {
	return pr.create(ctx, panel.KindDefault, doc.Name(), doc.URI(), func(p *panel.Panel) error {
		return pr.post(p, protocol.AddImage(doc.URI().String(), doc.Bytes()))
	})
}

// CreateOrShow creates a panel showing the resource at uri, which is read once
// the surface is ready.
func (pr *Provider) CreateOrShow(ctx context.Context, uri document.URI) (*panel.Panel, error) {
	title := WebPanelTitle
	if name := uri.Name(); name != "" {
		title = "web: " + name
	}
	return pr.create(ctx, panel.KindWebview, title, uri, func(p *panel.Panel) error {
		go pr.streamImages(p, []document.URI{uri})
		return nil
	})
}

// CreateCompareView creates a panel showing every resource of uris side by
// side, registered under the first one.
func (pr *Provider) CreateCompareView(ctx context.Context, uris []document.URI) (*panel.Panel, error) {
	if len(uris) == 0 {
		return nil, errors.New("nothing to compare")
	}
	uris = append([]document.URI(nil), uris...)
	return pr.create(ctx, panel.KindCompare, ComparePanelTitle, uris[0], func(p *panel.Panel) error {
		if err := pr.post(p, protocol.InitCanvas(len(uris))); err != nil {
			return err
		}
		go pr.streamImages(p, uris)
		return nil
	})
}

func (pr *Provider) create(
	ctx context.Context, kind, title string, uri document.URI, onReady func(p *panel.Panel) error,
) (*panel.Panel, error) {
	var p *panel.Panel
	err := pr.loop.Call(ctx, func() error {
		var err error
		p, err = pr.factory.CreatePanel(ctx, kind, title, uri.String())
		if err != nil {
			return err
		}
		return p.OnReady(func() error {
			return onReady(p)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("creating %s panel for %s: %w", kind, uri, err)
	}
	return p, nil
}

// streamImages reads uris in order and pushes each of them to p. A failed read
// is reported and skips that resource only. It blocks on file reads and must
// not run on the event loop.
func (pr *Provider) streamImages(p *panel.Panel, uris []document.URI) {
	for _, uri := range uris {
		data, err := document.Read(pr.ctx, pr.fs, uri)
		queued := p.Queue(func() error {
			if err != nil {
				return err
			}
			return pr.post(p, protocol.AddImage(uri.String(), data))
		})
		if !queued {
			return
		}
	}
}

// post sends msg to p. A panel disposed in the meantime isn't an error.
func (pr *Provider) post(p *panel.Panel, msg protocol.Message) error {
	err := p.Post(msg)
	if errors.Is(err, panel.ErrDisposed) {
		pr.logger.WithField("panel", p.ID()).Debugf("Dropping %s for a disposed panel", msg.Type)
		return nil
	}
	return err
}

// Attach connects a surface to the panel with the given id.
func (pr *Provider) Attach(ctx context.Context, id string, conn panel.Conn) error {
	return pr.loop.Call(ctx, func() error {
		p, ok := pr.registry.Get(id)
		if !ok {
			return fmt.Errorf("%w %s", ErrUnknownPanel, id)
		}
		return p.Attach(conn)
	})
}

// Page returns the host page of the panel with the given id.
func (pr *Provider) Page(ctx context.Context, id string) ([]byte, error) {
	var page []byte
	err := pr.loop.Call(ctx, func() error {
		p, ok := pr.registry.Get(id)
		if !ok {
			return fmt.Errorf("%w %s", ErrUnknownPanel, id)
		}
		page = p.Page()
		return nil
	})
	return page, err
}

// Panels returns the live panels of the resource at uri.
func (pr *Provider) Panels(ctx context.Context, uri document.URI) ([]panel.Info, error) {
	var infos []panel.Info
	err := pr.loop.Call(ctx, func() error {
		for p := range pr.registry.Lookup(uri.String()) {
			infos = append(infos, p.Info())
		}
		return nil
	})
	return infos, err
}

// ListPanels returns every live panel, ordered by resource.
func (pr *Provider) ListPanels(ctx context.Context) ([]panel.Info, error) {
	var infos []panel.Info
	err := pr.loop.Call(ctx, func() error {
		for _, e := range pr.registry.All() {
			infos = append(infos, e.Handle.Info())
		}
		return nil
	})
	return infos, err
}

// Close disposes every live panel and cancels pending reads and dialogs.
func (pr *Provider) Close(ctx context.Context) error {
	defer pr.cancel()
	return pr.loop.Call(ctx, func() error {
		entries := pr.registry.All()
		for _, e := range entries {
			e.Handle.Dispose()
		}
		if len(entries) > 0 {
			pr.logger.Debugf("Disposed %d panels", len(entries))
		}
		return nil
	})
}
