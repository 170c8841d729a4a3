// Package navigation models the one-way channel from the session controller
// to the presentation layer: opaque route intents. Consumers are expected to
// no-op on a redundant intent to the current route; the controller does not
// suppress duplicates.
package navigation

import (
	"log/slog"
	"sync"
)

// Route is an opaque navigation target.
type Route string

const (
	RouteSignIn       Route = "sign-in"
	RouteRealtorHome  Route = "realtor-home"
	RouteCustomerHome Route = "customer-home"
)

// Navigator receives navigation intents.
type Navigator interface {
	Navigate(route Route)
}

// Recorder captures intents for inspection. It doubles as the test navigator
// and backs the /auth/session endpoint's last-intent field.
type Recorder struct {
	mu     sync.Mutex
	routes []Route
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Navigate(route Route) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route)
}

// Routes returns a copy of all intents in emission order.
func (r *Recorder) Routes() []Route {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Route, len(r.routes))
	copy(out, r.routes)
	return out
}

// Last returns the most recent intent, or "" when none has been emitted.
func (r *Recorder) Last() Route {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.routes) == 0 {
		return ""
	}
	return r.routes[len(r.routes)-1]
}

// Reset discards recorded intents.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = nil
}

// Logging logs every intent; the dev server's navigator.
type Logging struct {
	Logger *slog.Logger
}

func (l Logging) Navigate(route Route) {
	l.Logger.Info("navigation intent", "route", string(route))
}

// Multi fans an intent out to several navigators in order.
type Multi []Navigator

func (m Multi) Navigate(route Route) {
	for _, n := range m {
		n.Navigate(route)
	}
}
