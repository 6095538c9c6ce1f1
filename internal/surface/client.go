// Package surface implements the map widget's browser capabilities (map,
// geolocation and summary display) over a websocket.
package surface

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Kilat-Pet-Delivery/service-routemap/internal/domain/geo"
	"github.com/Kilat-Pet-Delivery/service-routemap/internal/domain/routemap"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// ErrClosed is reported to pending geolocation requests when the socket closes.
var ErrClosed = errors.New("surface closed")

type locateRequest struct {
	onSuccess func(geo.Coordinate)
	onError   func(error)
}

// Client is one browser connection. It implements routemap.MapSurface,
// routemap.Geolocator, routemap.Presenter and engine.RouteCanvas. Inbound
// callbacks run on the read goroutine.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	logger *zap.Logger

	closeOnce sync.Once

	mu         sync.Mutex
	zoom       int
	nextID     routemap.ListenerID
	clicks     map[routemap.ListenerID]func(geo.Coordinate)
	locates    []locateRequest
	buildRoute func()
}

// NewUpgrader returns a gorilla upgrader accepting the listed origins, or any
// origin when the list is empty or contains "*".
func NewUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return allowAll || origin == "" || allowed[origin]
		},
	}
}

// Upgrade upgrades the HTTP connection and returns a Client with the initial
// zoom level.
func Upgrade(upgrader websocket.Upgrader, w http.ResponseWriter, r *http.Request, zoom int, logger *zap.Logger) (*Client, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("ws upgrade: %w", err)
	}
	return NewClient(conn, zoom, logger), nil
}

// NewClient wraps an established connection.
func NewClient(conn *websocket.Conn, zoom int, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		logger: logger,
		zoom:   zoom,
		clicks: make(map[routemap.ListenerID]func(geo.Coordinate)),
	}
}

// Serve runs the write pump in the background and the read pump until the
// connection ends, then closes the client.
func (c *Client) Serve() {
	go c.writePump()
	c.readPump()
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close closes the connection and fails pending geolocation requests.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		close(c.done)
		c.mu.Unlock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		_ = c.conn.Close()

		c.mu.Lock()
		pending := c.locates
		c.locates = nil
		c.mu.Unlock()
		for _, req := range pending {
			req.onError(fmt.Errorf("%w: %w", routemap.ErrPositionUnavailable, ErrClosed))
		}
	})
}

// OnBuildRoute registers the handler of the browser's "build route" button.
func (c *Client) OnBuildRoute(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buildRoute = fn
}

// --- routemap.MapSurface ---

func (c *Client) OnClick(fn func(geo.Coordinate)) routemap.ListenerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.clicks[c.nextID] = fn
	return c.nextID
}

func (c *Client) OffClick(id routemap.ListenerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.clicks, id)
}

// ClickHandlers returns the number of registered click handlers.
func (c *Client) ClickHandlers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clicks)
}

func (c *Client) SetView(center geo.Coordinate, zoom int) {
	c.mu.Lock()
	c.zoom = zoom
	c.mu.Unlock()
	c.push(TypeSetView, SetViewPayload{Lat: center.Lat, Lon: center.Lon, Zoom: zoom})
}

func (c *Client) Zoom() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.zoom
}

func (c *Client) RenderMarker(at geo.Coordinate, opts routemap.MarkerOptions) {
	c.push(TypeMarker, MarkerPayload{Kind: string(opts.Kind), Lat: at.Lat, Lon: at.Lon, AutoPan: opts.AutoPan})
}

// --- routemap.Geolocator ---

// CurrentPosition queues a geolocation request. Close drains the queue under
// the same lock after marking the client done, so every request is answered.
func (c *Client) CurrentPosition(onSuccess func(geo.Coordinate), onError func(error)) {
	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		onError(fmt.Errorf("%w: %w", routemap.ErrPositionUnavailable, ErrClosed))
		return
	default:
	}
	c.locates = append(c.locates, locateRequest{onSuccess: onSuccess, onError: onError})
	first := len(c.locates) == 1
	c.mu.Unlock()

	if first {
		c.push(TypeLocate, nil)
	}
}

// --- routemap.Presenter ---

func (c *Client) ShowSummary(text string) { c.push(TypeSummary, TextPayload{Text: text}) }

func (c *Client) ShowNotice(text string) { c.push(TypeNotice, TextPayload{Text: text}) }

// --- engine.RouteCanvas ---

func (c *Client) DrawRoute(id string, path []geo.Coordinate, draggable bool) {
	points := make([][2]float64, 0, len(path))
	for _, p := range path {
		points = append(points, [2]float64{p.Lat, p.Lon})
	}
	c.push(TypeRoute, RoutePayload{OverlayID: id, Path: points, Draggable: draggable})
}

func (c *Client) ClearRoute(id string) { c.push(TypeClearRoute, OverlayPayload{OverlayID: id}) }

func (c *Client) HideAlternatives(id string) {
	c.push(TypeHideAlternatives, OverlayPayload{OverlayID: id})
}

// push queues a message. A client that cannot keep up is disconnected.
func (c *Client) push(msgType string, data interface{}) {
	msg, err := NewMessage(msgType, data)
	if err != nil {
		c.logger.Error("failed to encode message", zap.String("type", msgType), zap.Error(err))
		return
	}
	b, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to encode message", zap.String("type", msgType), zap.Error(err))
		return
	}

	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.send <- b:
	case <-c.done:
	default:
		c.logger.Warn("send buffer full, closing connection", zap.String("type", msgType))
		go c.Close()
	}
}

func (c *Client) readPump() {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("ignoring malformed message", zap.Error(err))
			continue
		}
		if err := c.dispatch(msg); err != nil {
			c.logger.Warn("ignoring invalid message", zap.String("type", msg.Type), zap.Error(err))
		}
	}
}

func (c *Client) dispatch(msg Message) error {
	switch msg.Type {
	case TypeReady, TypeZoom:
		var p ZoomPayload
		if err := decode(msg.Data, &p); err != nil {
			return err
		}
		if p.Zoom > 0 {
			c.mu.Lock()
			c.zoom = p.Zoom
			c.mu.Unlock()
		}

	case TypeClick:
		var p PointPayload
		if err := decode(msg.Data, &p); err != nil {
			return err
		}
		c.mu.Lock()
		handlers := make([]func(geo.Coordinate), 0, len(c.clicks))
		for _, fn := range c.clicks {
			handlers = append(handlers, fn)
		}
		c.mu.Unlock()
		for _, fn := range handlers {
			fn(p.Coordinate())
		}

	case TypePosition:
		var p PointPayload
		if err := decode(msg.Data, &p); err != nil {
			return err
		}
		for _, req := range c.takeLocates() {
			req.onSuccess(p.Coordinate())
		}

	case TypePositionError:
		var p PositionErrorPayload
		if err := decode(msg.Data, &p); err != nil {
			return err
		}
		cause := routemap.ErrPositionUnavailable
		if p.Code == PositionErrorPermissionDenied {
			cause = routemap.ErrPermissionDenied
		}
		err := fmt.Errorf("%w: %s", cause, p.Message)
		for _, req := range c.takeLocates() {
			req.onError(err)
		}

	case TypeBuildRoute:
		c.mu.Lock()
		fn := c.buildRoute
		c.mu.Unlock()
		if fn != nil {
			fn()
		}

	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
	return nil
}

func (c *Client) takeLocates() []locateRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	pending := c.locates
	c.locates = nil
	return pending
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case b := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func decode(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return errors.New("missing data")
	}
	return json.Unmarshal(raw, v)
}
