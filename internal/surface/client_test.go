package surface

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Kilat-Pet-Delivery/service-routemap/internal/domain/geo"
	"github.com/Kilat-Pet-Delivery/service-routemap/internal/domain/routemap"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHarness(t *testing.T) (*Client, *websocket.Conn) {
	t.Helper()
	clients := make(chan *Client, 1)
	upgrader := NewUpgrader(nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := Upgrade(upgrader, w, r, 13, nil)
		if err != nil {
			return
		}
		clients <- c
		c.Serve()
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	browser, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = browser.Close() })

	select {
	case c := <-clients:
		t.Cleanup(c.Close)
		return c, browser
	case <-time.After(2 * time.Second):
		t.Fatal("server did not accept the connection")
		return nil, nil
	}
}

func sendFrame(t *testing.T, conn *websocket.Conn, msgType string, data interface{}) {
	t.Helper()
	msg, err := NewMessage(msgType, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(msg))
}

func readFrame(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestClient_ClickInvokesHandlers(t *testing.T) {
	client, browser := newHarness(t)
	clicks := make(chan geo.Coordinate, 1)
	id := client.OnClick(func(c geo.Coordinate) { clicks <- c })
	assert.Equal(t, 1, client.ClickHandlers())

	sendFrame(t, browser, TypeClick, PointPayload{Lat: 55.75, Lon: 37.61})

	select {
	case c := <-clicks:
		assert.Equal(t, geo.Coordinate{Lat: 55.75, Lon: 37.61}, c)
	case <-time.After(2 * time.Second):
		t.Fatal("click not delivered")
	}

	client.OffClick(id)
	assert.Equal(t, 0, client.ClickHandlers())
}

func TestClient_OutboundMessages(t *testing.T) {
	client, browser := newHarness(t)

	client.SetView(geo.Coordinate{Lat: 1, Lon: 2}, 15)
	client.RenderMarker(geo.Coordinate{Lat: 3, Lon: 4}, routemap.MarkerOptions{Kind: routemap.MarkerDestination})
	client.DrawRoute("osrm-1", []geo.Coordinate{{Lat: 1, Lon: 2}, {Lat: 3, Lon: 4}}, true)
	client.ShowSummary("Длина маршрута: 850 м, Время в пути: 2 мин")

	msg := readFrame(t, browser)
	assert.Equal(t, TypeSetView, msg.Type)
	var view SetViewPayload
	require.NoError(t, json.Unmarshal(msg.Data, &view))
	assert.Equal(t, SetViewPayload{Lat: 1, Lon: 2, Zoom: 15}, view)
	assert.Equal(t, 15, client.Zoom())

	msg = readFrame(t, browser)
	assert.Equal(t, TypeMarker, msg.Type)
	var marker MarkerPayload
	require.NoError(t, json.Unmarshal(msg.Data, &marker))
	assert.Equal(t, "destination", marker.Kind)
	assert.False(t, marker.AutoPan)

	msg = readFrame(t, browser)
	assert.Equal(t, TypeRoute, msg.Type)
	var route RoutePayload
	require.NoError(t, json.Unmarshal(msg.Data, &route))
	assert.Equal(t, "osrm-1", route.OverlayID)
	assert.Equal(t, [][2]float64{{1, 2}, {3, 4}}, route.Path)
	assert.True(t, route.Draggable)

	msg = readFrame(t, browser)
	assert.Equal(t, TypeSummary, msg.Type)
	var text TextPayload
	require.NoError(t, json.Unmarshal(msg.Data, &text))
	assert.Equal(t, "Длина маршрута: 850 м, Время в пути: 2 мин", text.Text)
}

func TestClient_GeolocationSuccess(t *testing.T) {
	client, browser := newHarness(t)
	got := make(chan geo.Coordinate, 2)

	client.CurrentPosition(func(c geo.Coordinate) { got <- c }, func(error) {})
	client.CurrentPosition(func(c geo.Coordinate) { got <- c }, func(error) {})

	msg := readFrame(t, browser)
	assert.Equal(t, TypeLocate, msg.Type)

	sendFrame(t, browser, TypePosition, PointPayload{Lat: 10, Lon: 20})
	for i := 0; i < 2; i++ {
		select {
		case c := <-got:
			assert.Equal(t, geo.Coordinate{Lat: 10, Lon: 20}, c)
		case <-time.After(2 * time.Second):
			t.Fatal("position not delivered")
		}
	}
}

func TestClient_GeolocationDenied(t *testing.T) {
	client, browser := newHarness(t)
	errs := make(chan error, 1)

	client.CurrentPosition(func(geo.Coordinate) {}, func(err error) { errs <- err })
	readFrame(t, browser)
	sendFrame(t, browser, TypePositionError, PositionErrorPayload{Code: 1, Message: "User denied Geolocation"})

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, routemap.ErrPermissionDenied)
		assert.ErrorContains(t, err, "User denied Geolocation")
	case <-time.After(2 * time.Second):
		t.Fatal("error not delivered")
	}
}

func TestClient_CloseFailsPendingLocate(t *testing.T) {
	client, _ := newHarness(t)
	errs := make(chan error, 1)
	client.CurrentPosition(func(geo.Coordinate) {}, func(err error) { errs <- err })

	client.Close()

	select {
	case err := <-errs:
		assert.True(t, errors.Is(err, ErrClosed))
		assert.ErrorIs(t, err, routemap.ErrPositionUnavailable)
	case <-time.After(2 * time.Second):
		t.Fatal("pending locate not failed")
	}
	<-client.Done()
}

func TestClient_LocateRacingCloseIsAlwaysAnswered(t *testing.T) {
	client, _ := newHarness(t)

	const requests = 200
	answered := make(chan error, requests)
	var wg sync.WaitGroup
	wg.Add(requests)
	for i := 0; i < requests; i++ {
		go func() {
			defer wg.Done()
			client.CurrentPosition(func(geo.Coordinate) { answered <- nil }, func(err error) { answered <- err })
		}()
		if i == requests/2 {
			go client.Close()
		}
	}
	wg.Wait()
	<-client.Done()

	for i := 0; i < requests; i++ {
		select {
		case err := <-answered:
			assert.ErrorIs(t, err, ErrClosed)
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d locate requests were answered", i, requests)
		}
	}
}

func TestClient_BuildRouteAndZoom(t *testing.T) {
	client, browser := newHarness(t)
	built := make(chan struct{}, 1)
	client.OnBuildRoute(func() { built <- struct{}{} })

	sendFrame(t, browser, TypeReady, ZoomPayload{Zoom: 11})
	sendFrame(t, browser, TypeBuildRoute, nil)

	select {
	case <-built:
	case <-time.After(2 * time.Second):
		t.Fatal("build_route not delivered")
	}
	assert.Equal(t, 11, client.Zoom())
}

func TestClient_BrowserDisconnectClosesClient(t *testing.T) {
	client, browser := newHarness(t)

	require.NoError(t, browser.Close())

	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client not closed after disconnect")
	}
}

func TestNewUpgrader_CheckOrigin(t *testing.T) {
	up := NewUpgrader([]string{"https://maps.example.com"})

	ok := httptest.NewRequest(http.MethodGet, "/", nil)
	ok.Header.Set("Origin", "https://maps.example.com")
	assert.True(t, up.CheckOrigin(ok))

	bad := httptest.NewRequest(http.MethodGet, "/", nil)
	bad.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, up.CheckOrigin(bad))
}
