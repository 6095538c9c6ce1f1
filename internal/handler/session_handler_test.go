package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Kilat-Pet-Delivery/service-routemap/internal/application"
	"github.com/Kilat-Pet-Delivery/service-routemap/internal/domain/routemap"
	"github.com/Kilat-Pet-Delivery/service-routemap/internal/engine"
	"github.com/Kilat-Pet-Delivery/service-routemap/internal/platform/auth"
	"github.com/Kilat-Pet-Delivery/service-routemap/internal/platform/response"
	"github.com/Kilat-Pet-Delivery/service-routemap/internal/surface"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sessionBody struct {
	Success bool                   `json:"success"`
	Data    application.SessionDTO `json:"data"`
	Error   *response.ErrorBody    `json:"error"`
}

func setupRouter(t *testing.T, jwtManager *auth.JWTManager) (*gin.Engine, *application.SessionService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engines := map[string]routemap.RoutingEngine{
		"estimate": engine.New("estimate", engine.NewEstimate(10), time.Second, nil),
	}
	svc := application.NewSessionService(engines, "estimate", nil, application.Options{}, zap.NewNop())
	t.Cleanup(func() { svc.Shutdown(context.Background()) })

	r := gin.New()
	NewSessionHandler(svc, nil, zap.NewNop()).RegisterRoutes(r.Group(""), jwtManager)
	return r, svc
}

func doJSON(r http.Handler, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeSession(t *testing.T, w *httptest.ResponseRecorder) sessionBody {
	t.Helper()
	var body sessionBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func createSession(t *testing.T, r http.Handler, token string) uuid.UUID {
	t.Helper()
	w := doJSON(r, http.MethodPost, "/api/v1/sessions", nil, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeSession(t, w).Data.ID
}

func TestCreateAndGetSession(t *testing.T) {
	r, _ := setupRouter(t, nil)

	w := doJSON(r, http.MethodPost, "/api/v1/sessions", map[string]string{"locale": "en"}, "")
	require.Equal(t, http.StatusCreated, w.Code)
	created := decodeSession(t, w)
	assert.True(t, created.Success)
	assert.Equal(t, "en", created.Data.Locale)
	assert.Equal(t, "estimate", created.Data.Engine)

	w = doJSON(r, http.MethodGet, "/api/v1/sessions/"+created.Data.ID.String(), nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeSession(t, w)
	assert.Equal(t, created.Data.ID, got.Data.ID)
	assert.False(t, got.Data.SurfaceAttached)
}

func TestCreateSession_UnknownEngine(t *testing.T) {
	r, _ := setupRouter(t, nil)

	w := doJSON(r, http.MethodPost, "/api/v1/sessions", map[string]string{"engine": "teleport"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetSession_BadAndUnknownID(t *testing.T) {
	r, _ := setupRouter(t, nil)

	w := doJSON(r, http.MethodGet, "/api/v1/sessions/not-a-uuid", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodGet, "/api/v1/sessions/"+uuid.NewString(), nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSelectDestination(t *testing.T) {
	r, _ := setupRouter(t, nil)
	id := createSession(t, r, "")

	w := doJSON(r, http.MethodPost, "/api/v1/sessions/"+id.String()+"/destination", map[string]float64{"lat": 55.752, "lon": 37.6175}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeSession(t, w)
	require.NotNil(t, body.Data.Destination)
	assert.Equal(t, 55.752, body.Data.Destination.Lat)
	assert.Empty(t, body.Data.Summary)

	w = doJSON(r, http.MethodPost, "/api/v1/sessions/"+id.String()+"/destination", map[string]float64{"lat": 55.752}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetOrigin_Validation(t *testing.T) {
	r, _ := setupRouter(t, nil)
	id := createSession(t, r, "")

	w := doJSON(r, http.MethodPost, "/api/v1/sessions/"+id.String()+"/origin", map[string]float64{"lat": 123, "lon": 0}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/api/v1/sessions/"+id.String()+"/origin", map[string]float64{"lat": 55.7558, "lon": 37.6173}, "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeSession(t, w)
	require.NotNil(t, body.Data.UserLocation)
	assert.Equal(t, 37.6173, body.Data.UserLocation.Lon)
}

func TestBuildRoute_WithoutDestination(t *testing.T) {
	r, _ := setupRouter(t, nil)
	id := createSession(t, r, "")

	w := doJSON(r, http.MethodPost, "/api/v1/sessions/"+id.String()+"/route", nil, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decodeSession(t, w)
	require.NotNil(t, body.Error)
	assert.Equal(t, "DESTINATION_REQUIRED", body.Error.Code)
	assert.Equal(t, routemap.FormatFor(routemap.LocaleRU).DestinationRequired, body.Error.Message)
}

func TestRetryLocation_NoMapConnected(t *testing.T) {
	r, _ := setupRouter(t, nil)
	id := createSession(t, r, "")

	w := doJSON(r, http.MethodPost, "/api/v1/sessions/"+id.String()+"/locate", nil, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "GEOLOCATION_UNAVAILABLE", decodeSession(t, w).Error.Code)
}

func TestCloseSession(t *testing.T) {
	r, svc := setupRouter(t, nil)
	id := createSession(t, r, "")
	require.Equal(t, 1, svc.Count())

	w := doJSON(r, http.MethodDelete, "/api/v1/sessions/"+id.String(), nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, svc.Count())

	w = doJSON(r, http.MethodDelete, "/api/v1/sessions/"+id.String(), nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessions_RequireTokenWhenAuthEnabled(t *testing.T) {
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)
	r, _ := setupRouter(t, jwtManager)

	w := doJSON(r, http.MethodPost, "/api/v1/sessions", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	alice, err := jwtManager.GenerateAccessToken(uuid.New(), "owner")
	require.NoError(t, err)
	bob, err := jwtManager.GenerateAccessToken(uuid.New(), "owner")
	require.NoError(t, err)

	id := createSession(t, r, alice)

	w = doJSON(r, http.MethodGet, "/api/v1/sessions/"+id.String(), nil, alice)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/api/v1/sessions/"+id.String(), nil, bob)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestServeMap_UnknownSessionIsRejectedBeforeUpgrade(t *testing.T) {
	r, _ := setupRouter(t, nil)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/sessions/" + uuid.NewString() + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServeMap_AttachesSurface(t *testing.T) {
	r, svc := setupRouter(t, nil)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	id := createSession(t, r, "")

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/sessions/" + id.String() + "/ws?zoom=15&geolocation=false"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool {
		got, err := svc.GetSession(context.Background(), id, uuid.Nil)
		return err == nil && got.SurfaceAttached
	}, 3*time.Second, 20*time.Millisecond)

	// Without geolocation the session falls back to a manual origin.
	w := doJSON(r, http.MethodPost, "/api/v1/sessions/"+id.String()+"/origin", map[string]float64{"lat": 55.7558, "lon": 37.6173}, "")
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var msg surface.Message
		require.NoError(t, conn.ReadJSON(&msg))
		assert.NotEqual(t, surface.TypeLocate, msg.Type)
		if msg.Type == surface.TypeSetView {
			var view surface.SetViewPayload
			require.NoError(t, json.Unmarshal(msg.Data, &view))
			assert.Equal(t, 15, view.Zoom)
			break
		}
	}
}

func TestServeMap_InvalidZoom(t *testing.T) {
	r, _ := setupRouter(t, nil)
	id := createSession(t, r, "")

	w := doJSON(r, http.MethodGet, "/api/v1/sessions/"+id.String()+"/ws?zoom=abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
