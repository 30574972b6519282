package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/assessli/carebot/backend/internal/handler/chat"
	"github.com/assessli/carebot/backend/internal/handler/profile"
	"github.com/assessli/carebot/backend/internal/handler/realtime"
	"github.com/assessli/carebot/backend/internal/handler/stream"
	middlewarePkg "github.com/assessli/carebot/backend/internal/middleware"
	profileModel "github.com/assessli/carebot/backend/internal/model/profile"
	"github.com/assessli/carebot/backend/pkg/utils"
)

// Dependencies 路由所需的核心服务
type Dependencies struct {
	Pipeline chat.Pipeline
	History  chat.History
	Profiles profileModel.Store
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middlewarePkg.RequestContext)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		profile.New(deps.Profiles).RegisterRoutes(api)
		chat.New(deps.Pipeline, deps.History).RegisterRoutes(api)
		stream.New(deps.Pipeline).RegisterRoutes(api)
		realtime.NewWebSocketHandler(deps.Pipeline).RegisterRoutes(api)
	})

	return r
}
