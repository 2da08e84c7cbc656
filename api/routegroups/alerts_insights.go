package routegroups

import (
	"monitor-hub/api/handlers"

	"github.com/go-chi/chi/v5"
)

func RegisterAlerts(apiRouter chi.Router, g Guards, alerts *handlers.AlertsHandler) {
	apiRouter.MethodFunc("GET", "/alert-rules", g.Authorized(alerts.ListRules))
	apiRouter.MethodFunc("POST", "/alert-rules", g.Authorized(alerts.CreateRule))
	apiRouter.MethodFunc("POST", "/alerts/trigger", g.Authorized(alerts.Trigger))
	apiRouter.MethodFunc("GET", "/notifications", g.Authorized(alerts.ListNotifications))
}

func RegisterInsights(apiRouter chi.Router, g Guards, incidents *handlers.IncidentsHandler, stats *handlers.StatsHandler) {
	apiRouter.MethodFunc("GET", "/incidents", g.Authorized(incidents.List))
	apiRouter.MethodFunc("GET", "/stats", g.Authorized(stats.Stats))
	apiRouter.MethodFunc("GET", "/metrics", g.Authorized(stats.Metrics))
}
