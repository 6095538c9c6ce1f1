package application

import (
	"github.com/Kilat-Pet-Delivery/service-routemap/internal/domain/geo"
	"github.com/Kilat-Pet-Delivery/service-routemap/internal/domain/routemap"
	"github.com/Kilat-Pet-Delivery/service-routemap/internal/surface"
)

// boundClient is a browser client whose callbacks run on the session loop.
// Drawing methods are promoted from the embedded client unchanged.
type boundClient struct {
	*surface.Client
	loop *eventLoop
}

func (b *boundClient) OnClick(fn func(geo.Coordinate)) routemap.ListenerID {
	return b.Client.OnClick(func(c geo.Coordinate) {
		b.loop.post(func() { fn(c) })
	})
}

func (b *boundClient) CurrentPosition(onSuccess func(geo.Coordinate), onError func(error)) {
	b.Client.CurrentPosition(
		func(c geo.Coordinate) { b.loop.post(func() { onSuccess(c) }) },
		func(err error) { b.loop.post(func() { onError(err) }) },
	)
}

func (b *boundClient) OnBuildRoute(fn func()) {
	b.Client.OnBuildRoute(func() { b.loop.post(fn) })
}

// boundEngine hands out controls whose listeners run on the session loop.
type boundEngine struct {
	routemap.RoutingEngine
	loop *eventLoop
}

func (b boundEngine) Control(opts routemap.ControlOptions) routemap.RouteControl {
	return boundControl{RouteControl: b.RoutingEngine.Control(opts), loop: b.loop}
}

type boundControl struct {
	routemap.RouteControl
	loop *eventLoop
}

func (b boundControl) OnRoutingStart(fn func()) {
	b.RouteControl.OnRoutingStart(func() { b.loop.post(fn) })
}

func (b boundControl) OnRouteSelected(fn func(routemap.Route)) {
	b.RouteControl.OnRouteSelected(func(r routemap.Route) { b.loop.post(func() { fn(r) }) })
}

func (b boundControl) OnRoutingError(fn func(error)) {
	b.RouteControl.OnRoutingError(func(err error) { b.loop.post(func() { fn(err) }) })
}
