package provider

import (
	"github.com/niivue/niiview/internal/document"
	"github.com/niivue/niiview/internal/panel"
	"github.com/niivue/niiview/internal/protocol"
	"github.com/niivue/niiview/internal/ui/dialog"
)

// addCommonListeners adds the handlers every panel shares.
func (pr *Provider) addCommonListeners(p *panel.Panel) error {
	if err := p.On(protocol.TypeAddOverlay, func(msg protocol.Message) error {
		go pr.addOverlay(p, msg)
		return nil
	}); err != nil {
		return err
	}
	return p.On(protocol.TypeAddImages, func(protocol.Message) error {
		go pr.addImages(p)
		return nil
	})
}

// addOverlay asks for one file and replies to req with its content.
func (pr *Provider) addOverlay(p *panel.Panel, req protocol.Message) {
	uris, ok := pr.pick(p, dialog.Options{
		Label:   OverlayDialogLabel,
		Filters: dialog.DefaultFilters(),
	})
	if !ok {
		return
	}

	uri := uris[0]
	data, err := document.Read(pr.ctx, pr.fs, uri)
	p.Queue(func() error {
		if err != nil {
			return err
		}
		return pr.post(p, protocol.OverlayReply(req, uri.String(), data))
	})
}

// addImages asks for any number of files and replaces the images of p with
// them.
func (pr *Provider) addImages(p *panel.Panel) {
	uris, ok := pr.pick(p, dialog.Options{
		Label:    ImagesDialogLabel,
		Multiple: true,
		Filters:  dialog.DefaultFilters(),
	})
	if !ok {
		return
	}

	n := len(uris)
	if !p.Queue(func() error {
		return pr.post(p, protocol.InitCanvas(n))
	}) {
		return
	}
	pr.streamImages(p, uris)
}

// pick shows a dialog for p. It returns false when the user cancelled or the
// dialog failed, in which case the error was already reported.
func (pr *Provider) pick(p *panel.Panel, opts dialog.Options) ([]document.URI, bool) {
	logger := pr.logger.WithField("panel", p.ID())
	if pr.picker == nil {
		logger.Warnf("No file dialog available for %q", opts.Label)
		return nil, false
	}

	uris, err := pr.picker.Pick(pr.ctx, opts)
	if err != nil {
		p.Queue(func() error { return err })
		return nil, false
	}
	if len(uris) == 0 {
		logger.Debugf("%q cancelled", opts.Label)
		return nil, false
	}
	return uris, true
}
