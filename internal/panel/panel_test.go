package panel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/niivue/niiview/internal/eventloop"
	"github.com/niivue/niiview/internal/panel/paneltest"
	"github.com/niivue/niiview/internal/protocol"
	"github.com/niivue/niiview/internal/registry"
	"github.com/niivue/niiview/internal/testutils"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (o *recordingObserver) record(event string, info Info) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event+":"+info.ID)
}

func (o *recordingObserver) PanelCreated(info Info)  { o.record("created", info) }
func (o *recordingObserver) PanelAttached(info Info) { o.record("attached", info) }
func (o *recordingObserver) PanelDisposed(info Info) { o.record("disposed", info) }

func (o *recordingObserver) Events() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.events...)
}

type testEnv struct {
	loop     *eventloop.EventLoop
	registry *registry.Registry[*Panel]
	factory  *Factory
	observer *recordingObserver

	mu   sync.Mutex
	errs []error
}

func (env *testEnv) onError(err error) {
	env.mu.Lock()
	defer env.mu.Unlock()
	env.errs = append(env.errs, err)
}

func (env *testEnv) Errors() []error {
	env.mu.Lock()
	defer env.mu.Unlock()
	return append([]error(nil), env.errs...)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		registry: registry.New[*Panel](),
		observer: &recordingObserver{},
	}
	env.loop = eventloop.New(env.onError)
	logger, _ := testutils.NewLogger(t)

	var err error
	env.factory, err = NewFactory(FactoryOptions{
		Loop:     env.loop,
		Registry: env.registry,
		Observer: env.observer,
		Logger:   logger,
		OnError:  env.onError,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = env.loop.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	t.Cleanup(func() {
		_ = env.loop.Call(context.Background(), func() error {
			for _, e := range env.registry.All() {
				e.Handle.Dispose()
			}
			return nil
		})
	})
	return env
}

func (env *testEnv) do(t *testing.T, fn func() error) {
	t.Helper()
	require.NoError(t, env.loop.Call(context.Background(), fn))
}

func (env *testEnv) create(t *testing.T, resource string) *Panel {
	t.Helper()
	var p *Panel
	env.do(t, func() error {
		var err error
		p, err = env.factory.CreatePanel(context.Background(), KindWebview, "web: a.nii", resource)
		return err
	})
	return p
}

func TestPanelReadyFiresOnce(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	p := env.create(t, "file:///a.nii")
	surface := paneltest.NewSurface()

	readys := make(chan struct{}, 2)
	env.do(t, func() error {
		require.NoError(t, p.OnReady(func() error {
			return p.Post(protocol.InitCanvas(1))
		}))
		require.NoError(t, p.On(protocol.TypeReady, func(protocol.Message) error {
			readys <- struct{}{}
			return nil
		}))
		return p.Attach(surface)
	})

	surface.Send(protocol.Ready())
	surface.Send(protocol.Ready())
	<-readys
	<-readys
	surface.WaitFor(t, 1)

	assert.Equal(t, []string{protocol.TypeInitCanvas}, surface.Types())
}

func TestPanelPostBeforeAttachAndAfterDispose(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	p := env.create(t, "file:///a.nii")

	require.ErrorIs(t, p.Post(protocol.InitCanvas(1)), ErrNotAttached)

	env.do(t, func() error {
		p.Dispose()
		return nil
	})
	require.ErrorIs(t, p.Post(protocol.InitCanvas(1)), ErrDisposed)
	require.False(t, p.Queue(func() error { return nil }))

	env.do(t, func() error {
		require.ErrorIs(t, p.Attach(paneltest.NewSurface()), ErrDisposed)
		return nil
	})
}

func TestPanelAttachTwice(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	p := env.create(t, "file:///a.nii")

	env.do(t, func() error {
		require.NoError(t, p.Attach(paneltest.NewSurface()))
		require.ErrorIs(t, p.Attach(paneltest.NewSurface()), ErrAlreadyAttached)
		return nil
	})
	assert.True(t, p.Info().Attached)
}

func TestPanelSurfaceCloseDisposes(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	p := env.create(t, "file:///a.nii")
	surface := paneltest.NewSurface()

	var disposals int
	env.do(t, func() error {
		p.OnDidDispose(func() { disposals++ })
		return p.Attach(surface)
	})

	require.NoError(t, surface.Close())
	require.Eventually(t, p.Disposed, time.Second, time.Millisecond)

	env.do(t, func() error {
		p.Dispose()
		assert.Equal(t, 1, disposals)
		assert.Zero(t, env.registry.Len())
		return nil
	})

	assert.Equal(t, []string{"created:" + p.ID(), "attached:" + p.ID(), "disposed:" + p.ID()},
		env.observer.Events())
}

func TestPanelDisposeClosesSurface(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	p := env.create(t, "file:///a.nii")
	surface := paneltest.NewSurface()

	env.do(t, func() error {
		require.NoError(t, p.Attach(surface))
		p.Dispose()
		return nil
	})
	assert.True(t, surface.Closed())

	var late bool
	env.do(t, func() error {
		p.OnDidDispose(func() { late = true })
		return nil
	})
	assert.True(t, late)
}

func TestPanelWriteFailureDisposes(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	p := env.create(t, "file:///a.nii")
	surface := paneltest.NewSurface()
	surface.FailWrites(errors.New("broken pipe"))

	env.do(t, func() error {
		return p.Attach(surface)
	})
	require.NoError(t, p.Post(protocol.InitCanvas(1)))
	require.Eventually(t, p.Disposed, time.Second, time.Millisecond)
}

func TestPanelStalledSurfaceDoesNotBlockTheLoop(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	p := env.create(t, "file:///a.nii")
	surface := paneltest.NewSurface()
	surface.StallWrites()

	env.do(t, func() error {
		return p.Attach(surface)
	})
	env.do(t, func() error {
		for i := range 100 {
			if err := p.Post(protocol.InitCanvas(i)); err != nil {
				return err
			}
		}
		return nil
	})
	require.Eventually(t, func() bool { return surface.Stalled() == 1 }, time.Second, time.Millisecond)

	// the other panels are still served
	other := env.create(t, "file:///b.nii")
	assert.False(t, other.Disposed())

	surface.FailWrites(errors.New("broken pipe"))
	surface.ReleaseWrites()
	require.Eventually(t, p.Disposed, time.Second, time.Millisecond)
	require.ErrorIs(t, p.Post(protocol.InitCanvas(1)), ErrDisposed)
	assert.Empty(t, surface.Received())

	env.do(t, func() error {
		assert.Equal(t, 1, env.registry.Len())
		_, ok := env.registry.Get(other.ID())
		assert.True(t, ok)
		return nil
	})
}

func TestPanelPostAfterWriteFailure(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	p := env.create(t, "file:///a.nii")
	surface := paneltest.NewSurface()
	surface.FailWrites(errors.New("broken pipe"))
	surface.StallWrites()

	env.do(t, func() error {
		return p.Attach(surface)
	})
	require.NoError(t, p.Post(protocol.InitCanvas(1)))
	require.Eventually(t, func() bool { return surface.Stalled() == 1 }, time.Second, time.Millisecond)

	// the failure is noticed by the writer, before the disposal runs on the loop
	env.do(t, func() error {
		surface.ReleaseWrites()
		require.Eventually(t, func() bool {
			return errors.Is(p.Post(protocol.InitCanvas(2)), ErrDisposed)
		}, time.Second, time.Millisecond)
		assert.False(t, p.Disposed())
		return nil
	})
	require.Eventually(t, p.Disposed, time.Second, time.Millisecond)
}

func TestPanelIgnoresUnknownAndInvalidMessages(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	p := env.create(t, "file:///a.nii")
	surface := paneltest.NewSurface()

	overlays := make(chan protocol.Message, 1)
	env.do(t, func() error {
		require.NoError(t, p.On(protocol.TypeAddOverlay, func(msg protocol.Message) error {
			overlays <- msg
			return nil
		}))
		return p.Attach(surface)
	})

	idx := -1
	surface.Send(protocol.Message{Type: "zoom"})
	surface.Send(protocol.Message{Type: protocol.TypeAddOverlay, Body: protocol.Body{Index: &idx}})
	surface.Send(protocol.AddOverlay("", 2))

	select {
	case msg := <-overlays:
		require.NotNil(t, msg.Body.Index)
		assert.Equal(t, 2, *msg.Body.Index)
	case <-time.After(time.Second):
		t.Fatal("addOverlay wasn't dispatched")
	}
	assert.Empty(t, env.Errors())
	assert.False(t, p.Disposed())
}

func TestPanelHandlerErrorsAreReported(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	p := env.create(t, "file:///a.nii")
	surface := paneltest.NewSurface()

	var calls int
	env.do(t, func() error {
		require.NoError(t, p.On(protocol.TypeAddImages, func(protocol.Message) error {
			calls++
			return errors.New("boom")
		}))
		require.NoError(t, p.On(protocol.TypeAddImages, func(protocol.Message) error {
			calls++
			return nil
		}))
		return p.Attach(surface)
	})

	surface.Send(protocol.AddImages())
	require.Eventually(t, func() bool { return len(env.Errors()) == 1 }, time.Second, time.Millisecond)
	assert.ErrorContains(t, env.Errors()[0], "boom")

	env.do(t, func() error {
		assert.Equal(t, 2, calls)
		return nil
	})
}

func TestPanelOnUnknownType(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	p := env.create(t, "file:///a.nii")

	env.do(t, func() error {
		require.Error(t, p.On(protocol.TypeInitCanvas, func(protocol.Message) error { return nil }))
		require.Error(t, p.On("zoom", func(protocol.Message) error { return nil }))
		return nil
	})
}

func TestPanelQueueOrder(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	p := env.create(t, "file:///a.nii")

	var got []int
	var wg sync.WaitGroup
	wg.Add(10)
	for i := 0; i < 10; i++ {
		require.True(t, p.Queue(func() error {
			defer wg.Done()
			got = append(got, i)
			if i == 3 {
				return errors.New("task failed")
			}
			return nil
		}))
	}
	wg.Wait()

	env.do(t, func() error {
		assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
		return nil
	})
	require.Len(t, env.Errors(), 1)
}

func TestPanelPage(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	p := env.create(t, "file:///a.nii")

	page := string(p.Page())
	assert.Contains(t, page, "<title>web: a.nii</title>")
	assert.Contains(t, page, p.ID()+"/ws")
	assert.Contains(t, page, protocol.JSON.Subprotocol())
}
