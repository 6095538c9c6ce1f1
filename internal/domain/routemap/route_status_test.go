package routemap_test

import (
	"testing"

	"github.com/Kilat-Pet-Delivery/service-routemap/internal/domain/routemap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouteStatus_Transitions(t *testing.T) {
	tests := []struct {
		from routemap.RouteStatus
		to   routemap.RouteStatus
		ok   bool
	}{
		{routemap.RouteIdle, routemap.RouteRouting, true},
		{routemap.RouteIdle, routemap.RouteSelected, false},
		{routemap.RouteRouting, routemap.RouteSelected, true},
		{routemap.RouteRouting, routemap.RouteFailed, true},
		{routemap.RouteRouting, routemap.RouteIdle, true},
		{routemap.RouteSelected, routemap.RouteSelected, true},
		{routemap.RouteSelected, routemap.RouteRouting, false},
		{routemap.RouteFailed, routemap.RouteIdle, true},
		{routemap.RouteFailed, routemap.RouteSelected, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestRouteStatus_HasOverlay(t *testing.T) {
	assert.False(t, routemap.RouteIdle.HasOverlay())
	assert.True(t, routemap.RouteRouting.HasOverlay())
	assert.True(t, routemap.RouteFailed.HasOverlay())
}

func TestParseRouteStatus(t *testing.T) {
	s, err := routemap.ParseRouteStatus("selected")
	require.NoError(t, err)
	assert.Equal(t, routemap.RouteSelected, s)

	_, err = routemap.ParseRouteStatus("done")
	assert.Error(t, err)
}
