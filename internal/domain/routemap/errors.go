package routemap

import "errors"

var (
	// ErrGeolocationUnavailable means no geolocation capability is present.
	ErrGeolocationUnavailable = errors.New("geolocation unavailable")
	// ErrPermissionDenied means the user refused to share their position.
	ErrPermissionDenied = errors.New("geolocation permission denied")
	// ErrPositionUnavailable means the capability exists but produced no fix.
	ErrPositionUnavailable = errors.New("position unavailable")

	// ErrMissingDestination is returned by a manual build without a destination.
	ErrMissingDestination = errors.New("destination required")
	// ErrOriginUnknown is returned by a manual build before the origin is known.
	ErrOriginUnknown = errors.New("origin unknown")
	// ErrSurfaceDetached is returned by a manual build with no map attached.
	ErrSurfaceDetached = errors.New("map surface not attached")

	// ErrRouteNotFound means the engine could not compute a path.
	ErrRouteNotFound = errors.New("route not found")

	// ErrTornDown is returned by operations on a torn-down widget.
	ErrTornDown = errors.New("widget torn down")
)
