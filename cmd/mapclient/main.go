// Command mapclient drives a routemap session the way a browser would: it
// creates a session, connects as the map, answers the geolocation request,
// clicks a destination and prints every message until the route summary.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/Kilat-Pet-Delivery/service-routemap/internal/application"
	"github.com/Kilat-Pet-Delivery/service-routemap/internal/surface"
	"github.com/kr/pretty"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

var (
	addr    = flag.String("addr", "http://localhost:8080", "routemap service base URL")
	token   = flag.String("token", "", "bearer token, if the service requires one")
	locale  = flag.String("locale", "", "session locale (ru or en)")
	engine  = flag.String("engine", "", "routing engine")
	from    = flag.String("from", "55.7558,37.6173", "position reported to the service as lat,lon")
	to      = flag.String("to", "55.7520,37.6175", "destination clicked on the map as lat,lon")
	timeout = flag.Duration("timeout", 30*time.Second, "overall timeout")
)

func main() {
	flag.Parse()
	log.SetFlags(0)

	origin, err := parsePoint(*from)
	if err != nil {
		log.Fatalf("-from: %v", err)
	}
	destination, err := parsePoint(*to)
	if err != nil {
		log.Fatalf("-to: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	session, err := createSession(ctx)
	if err != nil {
		log.Fatalf("create session: %v", err)
	}
	fmt.Printf("session %s (engine %s, locale %s)\n", session.ID, session.Engine, session.Locale)

	conn, _, err := websocket.Dial(ctx, wsURL(session.ID.String()), nil)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if err := run(ctx, conn, origin, destination); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, conn *websocket.Conn, origin, destination surface.PointPayload) error {
	clicked := false
	for {
		var msg surface.Message
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		fmt.Printf("<- %s %# v\n", msg.Type, pretty.Formatter(decodeData(msg.Data)))

		switch msg.Type {
		case surface.TypeLocate:
			if err := send(ctx, conn, surface.TypePosition, origin); err != nil {
				return err
			}

		case surface.TypeSetView:
			if clicked {
				continue
			}
			clicked = true
			if err := send(ctx, conn, surface.TypeClick, destination); err != nil {
				return err
			}

		case surface.TypeNotice:
			var text surface.TextPayload
			if err := json.Unmarshal(msg.Data, &text); err == nil {
				return fmt.Errorf("notice: %s", text.Text)
			}

		case surface.TypeSummary:
			var text surface.TextPayload
			if err := json.Unmarshal(msg.Data, &text); err == nil && text.Text != "" {
				fmt.Println(text.Text)
				return nil
			}
		}
	}
}

func send(ctx context.Context, conn *websocket.Conn, msgType string, data interface{}) error {
	msg, err := surface.NewMessage(msgType, data)
	if err != nil {
		return err
	}
	fmt.Printf("-> %s %# v\n", msgType, pretty.Formatter(data))
	return wsjson.Write(ctx, conn, msg)
}

func createSession(ctx context.Context) (*application.SessionDTO, error) {
	body, err := json.Marshal(application.CreateSessionRequest{Locale: *locale, Engine: *engine})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(*addr, "/")+"/api/v1/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if *token != "" {
		req.Header.Set("Authorization", "Bearer "+*token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var envelope struct {
		Data  application.SessionDTO `json:"data"`
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("status %d: %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusCreated {
		if envelope.Error != nil {
			return nil, fmt.Errorf("%s: %s", envelope.Error.Code, envelope.Error.Message)
		}
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return &envelope.Data, nil
}

func wsURL(sessionID string) string {
	u, err := url.Parse(strings.TrimRight(*addr, "/"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -addr: %v\n", err)
		os.Exit(2)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += "/api/v1/sessions/" + sessionID + "/ws"
	q := url.Values{}
	if *token != "" {
		q.Set("access_token", *token)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func parsePoint(s string) (surface.PointPayload, error) {
	var p surface.PointPayload
	if _, err := fmt.Sscanf(s, "%f,%f", &p.Lat, &p.Lon); err != nil {
		return p, fmt.Errorf("want lat,lon: %w", err)
	}
	return p, nil
}

func decodeData(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}
