package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Kilat-Pet-Delivery/service-routemap/internal/domain/geo"
	"github.com/Kilat-Pet-Delivery/service-routemap/internal/domain/routemap"
	"github.com/Kilat-Pet-Delivery/service-routemap/internal/platform/apperr"
	"github.com/Kilat-Pet-Delivery/service-routemap/internal/surface"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventSink receives every committed widget event. Publish must not block.
type EventSink interface {
	Publish(ctx context.Context, sessionID uuid.UUID, evt routemap.Event)
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Publish(context.Context, uuid.UUID, routemap.Event) {}

// CreateSessionRequest holds the optional settings of a new session.
type CreateSessionRequest struct {
	Locale string `json:"locale"`
	Engine string `json:"engine"`
}

// CoordinateRequest is a point posted by a client.
type CoordinateRequest struct {
	Lat *float64 `json:"lat" binding:"required"`
	Lon *float64 `json:"lon" binding:"required"`
}

// Coordinate returns the requested point.
func (r CoordinateRequest) Coordinate() geo.Coordinate {
	return geo.Coordinate{Lat: *r.Lat, Lon: *r.Lon}
}

// SessionDTO is the response representation of a session.
type SessionDTO struct {
	ID        uuid.UUID  `json:"id"`
	OwnerID   *uuid.UUID `json:"owner_id,omitempty"`
	Engine    string     `json:"engine"`
	Locale    string     `json:"locale"`
	CreatedAt time.Time  `json:"created_at"`
	routemap.State
}

// Options configures a SessionService.
type Options struct {
	DefaultLocale routemap.Locale
	DefaultZoom   int
	IdleTimeout   time.Duration
}

// Session is one mounted map widget.
type Session struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	Engine    string
	Locale    routemap.Locale
	CreatedAt time.Time

	widget *routemap.Widget
	loop   *eventLoop
	// bound is the client currently attached to the widget; loop-owned.
	bound *boundClient

	mu         sync.Mutex
	client     *surface.Client
	lastActive time.Time
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive, s.client == nil
}

type sessionObserver struct {
	sessionID uuid.UUID
	sink      EventSink
}

func (o sessionObserver) Observe(evt routemap.Event) {
	o.sink.Publish(context.Background(), o.sessionID, evt)
}

// SessionService is the application service orchestrating map sessions.
type SessionService struct {
	engines       map[string]routemap.RoutingEngine
	defaultEngine string
	sink          EventSink
	opts          Options
	logger        *zap.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	engines map[string]routemap.RoutingEngine,
	defaultEngine string,
	sink EventSink,
	opts Options,
	logger *zap.Logger,
) *SessionService {
	if sink == nil {
		sink = NopSink{}
	}
	if opts.DefaultLocale == "" {
		opts.DefaultLocale = routemap.LocaleRU
	}
	if opts.DefaultZoom <= 0 {
		opts.DefaultZoom = 13
	}
	return &SessionService{
		engines:       engines,
		defaultEngine: defaultEngine,
		sink:          sink,
		opts:          opts,
		logger:        logger,
		sessions:      make(map[uuid.UUID]*Session),
	}
}

// DefaultZoom returns the zoom level for newly connected maps.
func (s *SessionService) DefaultZoom() int { return s.opts.DefaultZoom }

// CreateSession mounts a new widget for ownerID (uuid.Nil when anonymous).
func (s *SessionService) CreateSession(ctx context.Context, ownerID uuid.UUID, req CreateSessionRequest) (*SessionDTO, error) {
	locale := s.opts.DefaultLocale
	if req.Locale != "" {
		l, err := routemap.ParseLocale(req.Locale)
		if err != nil {
			return nil, apperr.NewValidationError(err.Error())
		}
		locale = l
	}

	engineName := s.defaultEngine
	if req.Engine != "" {
		engineName = req.Engine
	}
	eng, ok := s.engines[engineName]
	if !ok {
		return nil, apperr.NewValidationError(fmt.Sprintf("unknown routing engine: %s", engineName))
	}

	id := uuid.New()
	log := s.logger.With(zap.String("session_id", id.String()))
	loop := newEventLoop(log)
	now := time.Now().UTC()

	sess := &Session{
		ID:         id,
		OwnerID:    ownerID,
		Engine:     engineName,
		Locale:     locale,
		CreatedAt:  now,
		loop:       loop,
		lastActive: now,
	}
	sess.widget = routemap.NewWidget(
		boundEngine{RoutingEngine: eng, loop: loop},
		routemap.FormatFor(locale),
		sessionObserver{sessionID: id, sink: s.sink},
		log,
	)

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	s.logger.Info("session created",
		zap.String("session_id", id.String()),
		zap.String("engine", engineName),
		zap.String("locale", string(locale)),
	)
	return s.snapshot(ctx, sess)
}

// GetSession returns the current state of a session.
func (s *SessionService) GetSession(ctx context.Context, id, ownerID uuid.UUID) (*SessionDTO, error) {
	sess, err := s.lookup(id, ownerID)
	if err != nil {
		return nil, err
	}
	return s.snapshot(ctx, sess)
}

// SelectDestination records a destination as if the map had been clicked.
func (s *SessionService) SelectDestination(ctx context.Context, id, ownerID uuid.UUID, c geo.Coordinate) (*SessionDTO, error) {
	sess, err := s.lookup(id, ownerID)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, sess, func() error {
		sess.widget.SelectDestination(c)
		return nil
	})
}

// AssignDestination selects a destination on behalf of another service.
func (s *SessionService) AssignDestination(ctx context.Context, id uuid.UUID, c geo.Coordinate) error {
	_, err := s.SelectDestination(ctx, id, uuid.Nil, c)
	return err
}

// SetOrigin sets the origin manually.
func (s *SessionService) SetOrigin(ctx context.Context, id, ownerID uuid.UUID, c geo.Coordinate) (*SessionDTO, error) {
	if err := c.Validate(); err != nil {
		return nil, apperr.NewValidationError(err.Error())
	}
	sess, err := s.lookup(id, ownerID)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, sess, func() error {
		return sess.widget.SetOrigin(c)
	})
}

// BuildRoute is the manual build trigger.
func (s *SessionService) BuildRoute(ctx context.Context, id, ownerID uuid.UUID) (*SessionDTO, error) {
	sess, err := s.lookup(id, ownerID)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, sess, func() error {
		return sess.widget.BuildRoute()
	})
}

// RetryLocation asks the connected browser for its position again.
func (s *SessionService) RetryLocation(ctx context.Context, id, ownerID uuid.UUID) (*SessionDTO, error) {
	sess, err := s.lookup(id, ownerID)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, sess, func() error {
		return sess.widget.RetryLocation()
	})
}

// CloseSession tears the widget down and forgets the session.
func (s *SessionService) CloseSession(ctx context.Context, id, ownerID uuid.UUID) error {
	sess, err := s.lookup(id, ownerID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()

	s.teardown(ctx, sess)
	s.logger.Info("session closed", zap.String("session_id", id.String()))
	return nil
}

// AttachClient makes a browser connection the session's map, geolocator and
// presenter. A previously attached connection is closed.
func (s *SessionService) AttachClient(ctx context.Context, id, ownerID uuid.UUID, client *surface.Client, geolocation bool) error {
	sess, err := s.lookup(id, ownerID)
	if err != nil {
		return err
	}

	bound := &boundClient{Client: client, loop: sess.loop}
	bound.OnBuildRoute(func() {
		if err := sess.widget.BuildRoute(); err != nil {
			s.logger.Debug("build route from map rejected",
				zap.String("session_id", id.String()),
				zap.Error(err),
			)
		}
	})

	var previous *surface.Client
	err = sess.loop.call(ctx, func() error {
		sess.widget.SetPresenter(bound)
		if geolocation {
			sess.widget.SetGeolocator(bound)
		} else {
			sess.widget.SetGeolocator(nil)
		}
		sess.widget.AttachSurface(bound)
		sess.widget.Activate()
		sess.bound = bound

		sess.mu.Lock()
		previous = sess.client
		sess.client = client
		sess.lastActive = time.Now()
		sess.mu.Unlock()
		return nil
	})
	if err != nil {
		return mapWidgetError(err, sess.Locale)
	}

	if previous != nil && previous != client {
		previous.Close()
	}

	s.logger.Info("map client attached",
		zap.String("session_id", id.String()),
		zap.Bool("geolocation", geolocation),
	)
	return nil
}

// DetachClient releases client if it is still the session's map. A client
// replaced by a newer connection leaves the widget untouched.
func (s *SessionService) DetachClient(id uuid.UUID, client *surface.Client) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return
	}

	sess.loop.post(func() {
		if sess.bound == nil || sess.bound.Client != client {
			return
		}
		sess.bound = nil
		sess.widget.DetachSurface()
		sess.widget.SetPresenter(nil)
		sess.widget.SetGeolocator(nil)

		sess.mu.Lock()
		if sess.client == client {
			sess.client = nil
			sess.lastActive = time.Now()
		}
		sess.mu.Unlock()
		s.logger.Info("map client detached", zap.String("session_id", id.String()))
	})
}

// Count returns the number of live sessions.
func (s *SessionService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// RunJanitor closes sessions without a connected map that have been idle for
// longer than the idle timeout. It blocks until ctx is cancelled.
func (s *SessionService) RunJanitor(ctx context.Context, interval time.Duration) {
	if s.opts.IdleTimeout <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.sweepIdle(ctx, now)
		}
	}
}

func (s *SessionService) sweepIdle(ctx context.Context, now time.Time) int {
	var idle []*Session
	s.mu.Lock()
	for id, sess := range s.sessions {
		last, detached := sess.idleSince()
		if detached && now.Sub(last) > s.opts.IdleTimeout {
			idle = append(idle, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range idle {
		s.teardown(ctx, sess)
		s.logger.Info("idle session expired", zap.String("session_id", sess.ID.String()))
	}
	return len(idle)
}

// Shutdown tears every session down.
func (s *SessionService) Shutdown(ctx context.Context) {
	s.mu.Lock()
	all := make([]*Session, 0, len(s.sessions))
	for id, sess := range s.sessions {
		all = append(all, sess)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	for _, sess := range all {
		s.teardown(ctx, sess)
	}
	s.logger.Info("all sessions closed", zap.Int("count", len(all)))
}

func (s *SessionService) teardown(ctx context.Context, sess *Session) {
	if err := sess.loop.call(ctx, func() error {
		sess.widget.Teardown()
		return nil
	}); err != nil {
		s.logger.Warn("session teardown incomplete",
			zap.String("session_id", sess.ID.String()),
			zap.Error(err),
		)
	}
	sess.loop.stop()

	sess.mu.Lock()
	client := sess.client
	sess.client = nil
	sess.mu.Unlock()
	if client != nil {
		client.Close()
	}
}

func (s *SessionService) lookup(id, ownerID uuid.UUID) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, apperr.NewNotFoundError("Session", id.String())
	}
	if ownerID != uuid.Nil && sess.OwnerID != uuid.Nil && sess.OwnerID != ownerID {
		return nil, apperr.NewForbiddenError("session does not belong to this user")
	}
	return sess, nil
}

func (s *SessionService) mutate(ctx context.Context, sess *Session, fn func() error) (*SessionDTO, error) {
	sess.touch()
	var state routemap.State
	err := sess.loop.call(ctx, func() error {
		if err := fn(); err != nil {
			return err
		}
		state = sess.widget.Snapshot()
		return nil
	})
	if err != nil {
		return nil, mapWidgetError(err, sess.Locale)
	}
	dto := toSessionDTO(sess, state)
	return &dto, nil
}

func (s *SessionService) snapshot(ctx context.Context, sess *Session) (*SessionDTO, error) {
	var state routemap.State
	err := sess.loop.call(ctx, func() error {
		state = sess.widget.Snapshot()
		return nil
	})
	if err != nil {
		return nil, mapWidgetError(err, sess.Locale)
	}
	dto := toSessionDTO(sess, state)
	return &dto, nil
}

func toSessionDTO(sess *Session, state routemap.State) SessionDTO {
	dto := SessionDTO{
		ID:        sess.ID,
		Engine:    sess.Engine,
		Locale:    string(sess.Locale),
		CreatedAt: sess.CreatedAt,
		State:     state,
	}
	if sess.OwnerID != uuid.Nil {
		owner := sess.OwnerID
		dto.OwnerID = &owner
	}
	return dto
}

func mapWidgetError(err error, locale routemap.Locale) error {
	switch {
	case errors.Is(err, routemap.ErrMissingDestination):
		return apperr.NewUnprocessableError("DESTINATION_REQUIRED", routemap.FormatFor(locale).DestinationRequired, err)
	case errors.Is(err, routemap.ErrOriginUnknown):
		return apperr.NewUnprocessableError("ORIGIN_UNKNOWN", "user location is not known yet", err)
	case errors.Is(err, routemap.ErrSurfaceDetached):
		return apperr.NewUnprocessableError("MAP_NOT_ATTACHED", "no map is connected to this session", err)
	case errors.Is(err, routemap.ErrGeolocationUnavailable):
		return apperr.NewUnprocessableError("GEOLOCATION_UNAVAILABLE", "geolocation is not available", err)
	case errors.Is(err, routemap.ErrTornDown), errors.Is(err, ErrLoopStopped):
		return apperr.NewInvalidStateError("session is closed")
	default:
		return err
	}
}
