package routegroups

import "net/http"

// Guards wraps route handlers with authentication and authorization.
type Guards struct {
	Authorized func(http.HandlerFunc) http.HandlerFunc
}
