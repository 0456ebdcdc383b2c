package registry

import (
	"fmt"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePanel struct {
	id        string
	listeners []func()
	disposed  bool
}

func newFakePanel(id string) *fakePanel {
	return &fakePanel{id: id}
}

func (p *fakePanel) ID() string { return p.id }

func (p *fakePanel) OnDidDispose(fn func()) {
	if p.disposed {
		fn()
		return
	}
	p.listeners = append(p.listeners, fn)
}

func (p *fakePanel) dispose() {
	if p.disposed {
		return
	}
	p.disposed = true
	for _, fn := range p.listeners {
		fn()
	}
}

func ids(seq func(func(*fakePanel) bool)) []string {
	var out []string
	for p := range seq {
		out = append(out, p.id)
	}
	return out
}

func TestRegisterLookup(t *testing.T) {
	t.Parallel()
	r := New[*fakePanel]()

	a1, a2, b := newFakePanel("a1"), newFakePanel("a2"), newFakePanel("b")
	require.True(t, r.Register("file:///a.nii", a1))
	require.True(t, r.Register("file:///a.nii", a2))
	require.True(t, r.Register("file:///b.nii", b))
	require.False(t, r.Register("file:///a.nii", a1), "duplicate pairs are rejected")

	assert.Equal(t, []string{"a1", "a2"}, ids(r.Lookup("file:///a.nii")))
	assert.Equal(t, []string{"b"}, ids(r.Lookup("file:///b.nii")))
	assert.Empty(t, ids(r.Lookup("file:///c.nii")))
	assert.Equal(t, 3, r.Len())

	got, ok := r.Get("a2")
	require.True(t, ok)
	assert.Same(t, a2, got)
	_, ok = r.Get("zzz")
	assert.False(t, ok)
}

func TestDisposeRemovesOnlyMatchingEntry(t *testing.T) {
	t.Parallel()
	r := New[*fakePanel]()

	a1, a2 := newFakePanel("a1"), newFakePanel("a2")
	r.Register("file:///a.nii", a1)
	r.Register("file:///a.nii", a2)

	seq := r.Lookup("file:///a.nii")
	a1.dispose()
	assert.Equal(t, []string{"a2"}, ids(seq), "lookups are recomputed from live state")
	assert.Equal(t, 1, r.Len())

	a2.dispose()
	assert.Empty(t, ids(seq))
	assert.Equal(t, 0, r.Len())
	_, ok := r.Get("a2")
	assert.False(t, ok)

	a2.dispose()
	assert.Equal(t, 0, r.Len())
}

func TestDisposeDuringLookup(t *testing.T) {
	t.Parallel()
	r := New[*fakePanel]()

	panels := []*fakePanel{newFakePanel("p0"), newFakePanel("p1"), newFakePanel("p2")}
	for _, p := range panels {
		r.Register("file:///a.nii", p)
	}

	var seen []string
	for p := range r.Lookup("file:///a.nii") {
		seen = append(seen, p.id)
		if p.id == "p0" {
			panels[1].dispose()
		}
	}
	assert.Equal(t, []string{"p0", "p2"}, seen)
}

func TestRegisterDisposedPanel(t *testing.T) {
	t.Parallel()
	r := New[*fakePanel]()

	p := newFakePanel("gone")
	p.dispose()
	r.Register("file:///a.nii", p)
	assert.Empty(t, ids(r.Lookup("file:///a.nii")))
	assert.Equal(t, 0, r.Len())
}

func TestLookupStopsEarly(t *testing.T) {
	t.Parallel()
	r := New[*fakePanel]()
	r.Register("file:///a.nii", newFakePanel("p0"))
	r.Register("file:///a.nii", newFakePanel("p1"))

	var seen []string
	for p := range r.Lookup("file:///a.nii") {
		seen = append(seen, p.id)
		break
	}
	assert.Equal(t, []string{"p0"}, seen)
}

func TestAll(t *testing.T) {
	t.Parallel()
	r := New[*fakePanel]()
	r.Register("file:///b.nii", newFakePanel("b"))
	r.Register("file:///a.nii", newFakePanel("a1"))
	r.Register("file:///a.nii", newFakePanel("a2"))

	var got []string
	for _, e := range r.All() {
		got = append(got, e.Resource+"#"+e.Handle.id)
	}
	assert.Equal(t, []string{"file:///a.nii#a1", "file:///a.nii#a2", "file:///b.nii#b"}, got)
}

func TestNoDisposedPanelIsEverReturned(t *testing.T) {
	t.Parallel()
	r := New[*fakePanel]()
	rnd := rand.New(rand.NewSource(42)) //nolint:gosec

	resources := []string{"file:///a.nii", "file:///b.nii", "file:///c.nii"}
	var live []*fakePanel
	for i := 0; i < 500; i++ {
		if len(live) == 0 || rnd.Intn(3) > 0 {
			p := newFakePanel(fmt.Sprintf("p%d", i))
			r.Register(resources[rnd.Intn(len(resources))], p)
			live = append(live, p)
		} else {
			idx := rnd.Intn(len(live))
			live[idx].dispose()
			live = slices.Delete(live, idx, idx+1)
		}

		total := 0
		for _, resource := range resources {
			for p := range r.Lookup(resource) {
				require.False(t, p.disposed, "lookup returned disposed panel %s", p.id)
				total++
			}
		}
		require.Equal(t, len(live), total)
		require.Equal(t, len(live), r.Len())
	}
}

func TestGetPanelUnderSeveralResources(t *testing.T) {
	t.Parallel()
	r := New[*fakePanel]()

	compare := newFakePanel("compare")
	r.Register("file:///a.nii", compare)
	r.Register("file:///b.nii", compare)
	for i := range 100 {
		r.Register(fmt.Sprintf("file:///%d.nii", i), newFakePanel(fmt.Sprintf("p%d", i)))
	}

	got, ok := r.Get("compare")
	require.True(t, ok)
	assert.Same(t, compare, got)
	got, ok = r.Get("p42")
	require.True(t, ok)
	assert.Equal(t, "p42", got.id)
	_, ok = r.Get("p100")
	assert.False(t, ok)

	compare.dispose()
	_, ok = r.Get("compare")
	assert.False(t, ok)
	assert.Empty(t, ids(r.Lookup("file:///b.nii")))
	assert.Equal(t, 100, r.Len())
}
