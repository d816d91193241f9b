// Package httpserver hosts a station's HTTP routes.
//
// BaseServer mounts the routes of any RouteRegistrar (the station's packet
// link and its ring API) on one chi router, adds the health endpoints
// /livez, /readyz, /drain and /undrain, and runs a separate prometheus
// metrics server. Requests to the health endpoints are logged through
// go-utils' slog middleware.
//
// Readiness combines the drain flag with an optional Ready callback, so a
// load balancer stops routing to a station once it has left the ring.
package httpserver
