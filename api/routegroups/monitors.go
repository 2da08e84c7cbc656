package routegroups

import (
	"monitor-hub/api/handlers"

	"github.com/go-chi/chi/v5"
)

func RegisterMonitors(apiRouter chi.Router, g Guards, monitors *handlers.MonitorsHandler) {
	apiRouter.MethodFunc("POST", "/sweep", g.Authorized(monitors.Sweep))
	apiRouter.Route("/monitors", func(monitorsRouter chi.Router) {
		monitorsRouter.MethodFunc("GET", "/", g.Authorized(monitors.List))
		monitorsRouter.MethodFunc("POST", "/", g.Authorized(monitors.Create))
		monitorsRouter.MethodFunc("GET", "/chart-data", g.Authorized(monitors.ChartData))
		monitorsRouter.MethodFunc("GET", "/recent-activity", g.Authorized(monitors.RecentActivity))
		monitorsRouter.MethodFunc("GET", "/{id:[0-9]+}", g.Authorized(monitors.Get))
		monitorsRouter.MethodFunc("PUT", "/{id:[0-9]+}", g.Authorized(monitors.Update))
		monitorsRouter.MethodFunc("DELETE", "/{id:[0-9]+}", g.Authorized(monitors.Delete))
		monitorsRouter.MethodFunc("POST", "/{id:[0-9]+}/check", g.Authorized(monitors.CheckNow))
		monitorsRouter.MethodFunc("GET", "/{id:[0-9]+}/checks", g.Authorized(monitors.Checks))
	})
}
