package provider

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/niivue/niiview/internal/document"
	"github.com/niivue/niiview/internal/eventloop"
	"github.com/niivue/niiview/internal/panel"
	"github.com/niivue/niiview/internal/panel/paneltest"
	"github.com/niivue/niiview/internal/protocol"
	"github.com/niivue/niiview/internal/testutils"
	"github.com/niivue/niiview/internal/ui/dialog"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakePicker struct {
	mu      sync.Mutex
	results [][]document.URI
	err     error
	calls   chan dialog.Options
}

func newFakePicker(results ...[]document.URI) *fakePicker {
	return &fakePicker{results: results, calls: make(chan dialog.Options, 8)}
}

func (f *fakePicker) Pick(_ context.Context, opts dialog.Options) ([]document.URI, error) {
	f.calls <- opts
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) == 0 {
		return nil, nil
	}
	res := f.results[0]
	f.results = f.results[1:]
	return res, nil
}

func (f *fakePicker) waitCall(t *testing.T) dialog.Options {
	t.Helper()
	select {
	case opts := <-f.calls:
		return opts
	case <-time.After(2 * time.Second):
		t.Fatal("the dialog wasn't shown")
		return dialog.Options{}
	}
}

type fakeNotifier struct {
	mu   sync.Mutex
	errs []error
}

func (n *fakeNotifier) Notify(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errs = append(n.errs, err)
}

func (n *fakeNotifier) Errors() []error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]error(nil), n.errs...)
}

var testFiles = map[string][]byte{ //nolint:gochecknoglobals
	"/data/a.nii":    []byte("AAAA"),
	"/data/b.nii.gz": []byte("BB"),
	"/data/c.dcm":    []byte("CCC"),
	"/data/x.nii":    []byte("XXXXX"),
}

func uri(path string) document.URI {
	return document.MustParseURI("/", path)
}

type testEnv struct {
	provider *Provider
	picker   *fakePicker
	notifier *fakeNotifier
}

func newTestEnv(t *testing.T, picks ...[]document.URI) *testEnv {
	t.Helper()
	logger, _ := testutils.NewLogger(t)
	env := &testEnv{
		picker:   newFakePicker(picks...),
		notifier: &fakeNotifier{},
	}

	var pr *Provider
	loop := eventloop.New(func(err error) { pr.ReportError(err) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = loop.Run(ctx)
		close(done)
	}()

	var err error
	pr, err = New(ctx, Options{
		Fs:       testutils.MakeMemMapFs(t, testFiles),
		Loop:     loop,
		Picker:   env.picker,
		Notifier: env.notifier,
		Logger:   logger,
	})
	require.NoError(t, err)
	env.provider = pr

	t.Cleanup(func() {
		require.NoError(t, pr.Close(context.Background()))
		cancel()
		<-done
	})
	return env
}

func (env *testEnv) attach(t *testing.T, p *panel.Panel) *paneltest.Surface {
	t.Helper()
	surface := paneltest.NewSurface()
	require.NoError(t, env.provider.Attach(context.Background(), p.ID(), surface))
	return surface
}

func TestCreateCompareViewPushesInOrder(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	p, err := env.provider.CreateCompareView(ctx, []document.URI{
		uri("/data/a.nii"), uri("/data/b.nii.gz"), uri("/data/c.dcm"),
	})
	require.NoError(t, err)
	assert.Equal(t, panel.KindCompare, p.Kind())
	assert.Equal(t, ComparePanelTitle, p.Title())
	assert.Equal(t, uri("/data/a.nii").String(), p.Resource())

	surface := env.attach(t, p)
	surface.Send(protocol.Ready())
	msgs := surface.WaitFor(t, 4)

	require.Len(t, msgs, 4)
	assert.Equal(t, protocol.InitCanvas(3), msgs[0])
	assert.Equal(t, protocol.AddImage(uri("/data/a.nii").String(), []byte("AAAA")), msgs[1])
	assert.Equal(t, protocol.AddImage(uri("/data/b.nii.gz").String(), []byte("BB")), msgs[2])
	assert.Equal(t, protocol.AddImage(uri("/data/c.dcm").String(), []byte("CCC")), msgs[3])
	assert.Empty(t, env.notifier.Errors())
}

func TestCreateCompareViewSurfaceStopsReading(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	names := []string{"/data/a.nii", "/data/b.nii.gz", "/data/c.dcm", "/data/x.nii"}
	uris := make([]document.URI, 0, 40)
	for i := range 40 {
		uris = append(uris, uri(names[i%len(names)]))
	}
	p, err := env.provider.CreateCompareView(ctx, uris)
	require.NoError(t, err)
	other, err := env.provider.CreateOrShow(ctx, uri("/data/x.nii"))
	require.NoError(t, err)

	surface := paneltest.NewSurface()
	surface.StallWrites()
	require.NoError(t, env.provider.Attach(ctx, p.ID(), surface))
	surface.Send(protocol.Ready())
	require.Eventually(t, func() bool { return surface.Stalled() == 1 }, 2*time.Second, time.Millisecond)

	listCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	infos, err := env.provider.ListPanels(listCtx)
	require.NoError(t, err)
	assert.Len(t, infos, 2)

	surface.FailWrites(errors.New("broken pipe"))
	surface.ReleaseWrites()
	require.Eventually(t, p.Disposed, 2*time.Second, time.Millisecond)

	infos, err = env.provider.ListPanels(listCtx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, other.ID(), infos[0].ID)
	assert.Empty(t, surface.Received())
}

func TestCreateCompareViewUnreadableResource(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	p, err := env.provider.CreateCompareView(context.Background(), []document.URI{
		uri("/data/a.nii"), uri("/data/missing.nii"), uri("/data/c.dcm"),
	})
	require.NoError(t, err)

	surface := env.attach(t, p)
	surface.Send(protocol.Ready())
	msgs := surface.WaitFor(t, 3)

	assert.Equal(t, []string{protocol.TypeInitCanvas, protocol.TypeAddImage, protocol.TypeAddImage}, surface.Types())
	assert.Equal(t, uri("/data/a.nii").String(), msgs[1].Body.URI)
	assert.Equal(t, uri("/data/c.dcm").String(), msgs[2].Body.URI)

	require.Eventually(t, func() bool { return len(env.notifier.Errors()) == 1 }, time.Second, time.Millisecond)
	var ioErr *document.IOError
	require.ErrorAs(t, env.notifier.Errors()[0], &ioErr)
	assert.Equal(t, uri("/data/missing.nii"), ioErr.URI)
}

func TestCreateCompareViewNothingToCompare(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	_, err := env.provider.CreateCompareView(context.Background(), nil)
	require.Error(t, err)
}

func TestCreateOrShowReadyIsIdempotent(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	p, err := env.provider.CreateOrShow(context.Background(), uri("/data/a.nii"))
	require.NoError(t, err)
	assert.Equal(t, panel.KindWebview, p.Kind())
	assert.Equal(t, "web: a.nii", p.Title())

	surface := env.attach(t, p)
	surface.Send(protocol.Ready())
	surface.Send(protocol.Ready())
	msgs := surface.WaitFor(t, 1)

	assert.Equal(t, protocol.AddImage(uri("/data/a.nii").String(), []byte("AAAA")), msgs[0])
	require.Never(t, func() bool { return len(surface.Received()) > 1 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestCreateOrShowFallbackTitle(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	p, err := env.provider.CreateOrShow(context.Background(), uri("/"))
	require.NoError(t, err)
	assert.Equal(t, WebPanelTitle, p.Title())
}

func TestResolveEditor(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	doc, err := env.provider.OpenDocument(ctx, uri("/data/x.nii"))
	require.NoError(t, err)

	p, err := env.provider.ResolveEditor(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, panel.KindDefault, p.Kind())
	assert.Equal(t, "x.nii", p.Title())

	surface := env.attach(t, p)
	surface.Send(protocol.Ready())
	msgs := surface.WaitFor(t, 1)
	assert.Equal(t, protocol.AddImage(uri("/data/x.nii").String(), []byte("XXXXX")), msgs[0])
}

func TestOpenDocumentUnreadable(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	_, err := env.provider.OpenDocument(context.Background(), uri("/data/missing.nii"))
	var ioErr *document.IOError
	require.ErrorAs(t, err, &ioErr)
}

func TestAddOverlayRepliesOnce(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, []document.URI{uri("/data/x.nii")})

	p, err := env.provider.CreateOrShow(context.Background(), uri("/data/a.nii"))
	require.NoError(t, err)
	surface := env.attach(t, p)

	surface.Send(protocol.AddOverlay("", 2))
	opts := env.picker.waitCall(t)
	assert.Equal(t, OverlayDialogLabel, opts.Label)
	assert.False(t, opts.Multiple)
	assert.Equal(t, document.SupportedExtensions, opts.Filters["Images"])

	msgs := surface.WaitFor(t, 1)
	require.Never(t, func() bool { return len(surface.Received()) > 1 }, 50*time.Millisecond, 5*time.Millisecond)

	reply := msgs[0]
	assert.Equal(t, protocol.DefaultOverlayType, reply.Type)
	require.NotNil(t, reply.Body.Index)
	assert.Equal(t, 2, *reply.Body.Index)
	assert.Equal(t, uri("/data/x.nii").String(), reply.Body.URI)
	assert.Equal(t, []byte("XXXXX"), reply.Body.Data)
}

func TestAddOverlayReplyType(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, []document.URI{uri("/data/x.nii")})

	p, err := env.provider.CreateOrShow(context.Background(), uri("/data/a.nii"))
	require.NoError(t, err)
	surface := env.attach(t, p)

	surface.Send(protocol.AddOverlay("drawing", 0))
	msgs := surface.WaitFor(t, 1)
	assert.Equal(t, "drawing", msgs[0].Type)
	require.NotNil(t, msgs[0].Body.Index)
	assert.Equal(t, 0, *msgs[0].Body.Index)
}

func TestCancelledDialogsSendNothing(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil, []document.URI{})

	p, err := env.provider.CreateOrShow(context.Background(), uri("/data/a.nii"))
	require.NoError(t, err)
	surface := env.attach(t, p)

	surface.Send(protocol.AddOverlay("", 1))
	env.picker.waitCall(t)
	surface.Send(protocol.AddImages())
	env.picker.waitCall(t)

	require.Never(t, func() bool { return len(surface.Received()) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.Empty(t, env.notifier.Errors())
	assert.False(t, p.Disposed())
}

func TestAddImages(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, []document.URI{uri("/data/x.nii"), uri("/data/c.dcm")})

	p, err := env.provider.CreateOrShow(context.Background(), uri("/data/a.nii"))
	require.NoError(t, err)
	surface := env.attach(t, p)

	surface.Send(protocol.AddImages())
	opts := env.picker.waitCall(t)
	assert.Equal(t, ImagesDialogLabel, opts.Label)
	assert.True(t, opts.Multiple)

	msgs := surface.WaitFor(t, 3)
	assert.Equal(t, protocol.InitCanvas(2), msgs[0])
	assert.Equal(t, uri("/data/x.nii").String(), msgs[1].Body.URI)
	assert.Equal(t, uri("/data/c.dcm").String(), msgs[2].Body.URI)
}

func TestDialogErrorIsReported(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.picker.err = dialog.ErrNotInteractive

	p, err := env.provider.CreateOrShow(context.Background(), uri("/data/a.nii"))
	require.NoError(t, err)
	surface := env.attach(t, p)

	surface.Send(protocol.AddImages())
	require.Eventually(t, func() bool { return len(env.notifier.Errors()) == 1 }, time.Second, time.Millisecond)
	assert.ErrorIs(t, env.notifier.Errors()[0], dialog.ErrNotInteractive)
	assert.Empty(t, surface.Received())
}

func TestOpenThenDisposeRoundTrip(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	a := uri("/data/a.nii")

	first, err := env.provider.CreateOrShow(ctx, a)
	require.NoError(t, err)
	second, err := env.provider.CreateCompareView(ctx, []document.URI{a, uri("/data/c.dcm")})
	require.NoError(t, err)

	infos, err := env.provider.Panels(ctx, a)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, first.ID(), infos[0].ID)
	assert.Equal(t, second.ID(), infos[1].ID)

	surface := env.attach(t, first)
	require.NoError(t, surface.Close())
	select {
	case <-first.Done():
	case <-time.After(time.Second):
		t.Fatal("the panel wasn't disposed")
	}

	infos, err = env.provider.Panels(ctx, a)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, second.ID(), infos[0].ID)

	all, err := env.provider.ListPanels(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestAttachUnknownPanel(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	err := env.provider.Attach(context.Background(), "nope", paneltest.NewSurface())
	require.ErrorIs(t, err, ErrUnknownPanel)
	_, err = env.provider.Page(context.Background(), "nope")
	require.ErrorIs(t, err, ErrUnknownPanel)
}

func TestCloseDisposesEveryPanel(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	p, err := env.provider.CreateOrShow(ctx, uri("/data/a.nii"))
	require.NoError(t, err)
	surface := env.attach(t, p)
	page, err := env.provider.Page(ctx, p.ID())
	require.NoError(t, err)
	assert.NotEmpty(t, page)

	require.NoError(t, env.provider.Close(ctx))
	assert.True(t, p.Disposed())
	assert.True(t, surface.Closed())

	all, err := env.provider.ListPanels(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	require.ErrorIs(t, p.Post(protocol.Ready()), panel.ErrDisposed)
}
