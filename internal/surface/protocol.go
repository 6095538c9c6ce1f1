package surface

import (
	"encoding/json"

	"github.com/Kilat-Pet-Delivery/service-routemap/internal/domain/geo"
)

// Message types sent by the browser.
const (
	TypeReady         = "ready"
	TypeZoom          = "zoom"
	TypeClick         = "click"
	TypePosition      = "position"
	TypePositionError = "position_error"
	TypeBuildRoute    = "build_route"
)

// Message types sent to the browser.
const (
	TypeSetView          = "set_view"
	TypeMarker           = "marker"
	TypeLocate           = "locate"
	TypeRoute            = "route"
	TypeClearRoute       = "clear_route"
	TypeHideAlternatives = "hide_alternatives"
	TypeSummary          = "summary"
	TypeNotice           = "notice"
)

// PositionErrorPermissionDenied is the browser GeolocationPositionError code
// for a refused permission prompt.
const PositionErrorPermissionDenied = 1

// Message is one websocket text frame.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewMessage builds a Message with data encoded as JSON.
func NewMessage(msgType string, data interface{}) (Message, error) {
	if data == nil {
		return Message{Type: msgType}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: msgType, Data: raw}, nil
}

type ZoomPayload struct {
	Zoom int `json:"zoom"`
}

type PointPayload struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (p PointPayload) Coordinate() geo.Coordinate {
	return geo.Coordinate{Lat: p.Lat, Lon: p.Lon}
}

type PositionErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type SetViewPayload struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Zoom int     `json:"zoom"`
}

type MarkerPayload struct {
	Kind    string  `json:"kind"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	AutoPan bool    `json:"auto_pan"`
}

type RoutePayload struct {
	OverlayID string       `json:"overlay_id"`
	Path      [][2]float64 `json:"path"` // lat,lon
	Draggable bool         `json:"draggable"`
}

type OverlayPayload struct {
	OverlayID string `json:"overlay_id"`
}

type TextPayload struct {
	Text string `json:"text"`
}
