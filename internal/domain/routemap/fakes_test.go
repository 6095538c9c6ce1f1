package routemap_test

import (
	"fmt"
	"strings"

	"github.com/Kilat-Pet-Delivery/service-routemap/internal/domain/geo"
	"github.com/Kilat-Pet-Delivery/service-routemap/internal/domain/routemap"
)

type viewCall struct {
	center geo.Coordinate
	zoom   int
}

type markerCall struct {
	at   geo.Coordinate
	opts routemap.MarkerOptions
}

type fakeSurface struct {
	zoom     int
	nextID   routemap.ListenerID
	handlers map[routemap.ListenerID]func(geo.Coordinate)
	views    []viewCall
	markers  []markerCall
}

func newFakeSurface(zoom int) *fakeSurface {
	return &fakeSurface{zoom: zoom, handlers: map[routemap.ListenerID]func(geo.Coordinate){}}
}

func (s *fakeSurface) OnClick(fn func(geo.Coordinate)) routemap.ListenerID {
	s.nextID++
	s.handlers[s.nextID] = fn
	return s.nextID
}

func (s *fakeSurface) OffClick(id routemap.ListenerID) { delete(s.handlers, id) }

func (s *fakeSurface) SetView(c geo.Coordinate, zoom int) {
	s.views = append(s.views, viewCall{center: c, zoom: zoom})
}

func (s *fakeSurface) Zoom() int { return s.zoom }

func (s *fakeSurface) RenderMarker(c geo.Coordinate, opts routemap.MarkerOptions) {
	s.markers = append(s.markers, markerCall{at: c, opts: opts})
}

func (s *fakeSurface) click(c geo.Coordinate) {
	for _, h := range s.handlers {
		h(c)
	}
}

type fakeGeolocator struct {
	requests  int
	onSuccess func(geo.Coordinate)
	onError   func(error)
}

func (g *fakeGeolocator) CurrentPosition(onSuccess func(geo.Coordinate), onError func(error)) {
	g.requests++
	g.onSuccess = onSuccess
	g.onError = onError
}

func (g *fakeGeolocator) succeed(c geo.Coordinate) { g.onSuccess(c) }
func (g *fakeGeolocator) fail(err error) { g.onError(err) }

type fakeControl struct {
	id         int
	engine     *fakeEngine
	opts       routemap.ControlOptions
	attachedTo routemap.MapSurface
	removed    bool
	hidden     int
	onStart    func()
	onSelected func(routemap.Route)
	onError    func(error)
}

func (c *fakeControl) AddTo(s routemap.MapSurface) {
	c.attachedTo = s
	c.engine.record(fmt.Sprintf("add#%d", c.id))
}

func (c *fakeControl) Remove() {
	c.removed = true
	c.engine.record(fmt.Sprintf("remove#%d", c.id))
}

func (c *fakeControl) OnRoutingStart(fn func()) { c.onStart = fn }
func (c *fakeControl) OnRouteSelected(fn func(routemap.Route)) { c.onSelected = fn }
func (c *fakeControl) OnRoutingError(fn func(error)) { c.onError = fn }
func (c *fakeControl) HideAlternatives() { c.hidden++ }
func (c *fakeControl) live() bool { return c.attachedTo != nil && !c.removed }

func (c *fakeControl) selectRoute(distance, seconds float64) {
	c.onSelected(routemap.Route{Summary: routemap.Totals{TotalDistance: distance, TotalTime: seconds}})
}

// fakeEngine records every AddTo and Remove of its controls in order and
// tracks the largest number of overlays ever attached at the same time.
type fakeEngine struct {
	controls []*fakeControl
	ops      []string
	attached int
	maxLive  int
}

func (e *fakeEngine) Control(opts routemap.ControlOptions) routemap.RouteControl {
	c := &fakeControl{id: len(e.controls) + 1, engine: e, opts: opts}
	e.controls = append(e.controls, c)
	return c
}

func (e *fakeEngine) record(op string) {
	e.ops = append(e.ops, op)
	switch {
	case strings.HasPrefix(op, "add#"):
		e.attached++
	case strings.HasPrefix(op, "remove#"):
		e.attached--
	}
	if e.attached > e.maxLive {
		e.maxLive = e.attached
	}
}

func (e *fakeEngine) last() *fakeControl { return e.controls[len(e.controls)-1] }

func (e *fakeEngine) liveCount() int {
	n := 0
	for _, c := range e.controls {
		if c.live() {
			n++
		}
	}
	return n
}

type fakePresenter struct {
	summaries []string
	notices   []string
}

func (p *fakePresenter) ShowSummary(text string) { p.summaries = append(p.summaries, text) }
func (p *fakePresenter) ShowNotice(text string) { p.notices = append(p.notices, text) }

func (p *fakePresenter) current() string {
	if len(p.summaries) == 0 {
		return ""
	}
	return p.summaries[len(p.summaries)-1]
}

type recordingObserver struct {
	events []routemap.Event
}

func (o *recordingObserver) Observe(e routemap.Event) { o.events = append(o.events, e) }

func (o *recordingObserver) kinds() []routemap.EventKind {
	out := make([]routemap.EventKind, 0, len(o.events))
	for _, e := range o.events {
		out = append(out, e.Kind)
	}
	return out
}
