package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/objectionlab/voicecall/backend/internal/handler/call"
	"github.com/objectionlab/voicecall/backend/internal/handler/persona"
	"github.com/objectionlab/voicecall/backend/internal/handler/speech"
	"github.com/objectionlab/voicecall/backend/internal/logging"
	middlewarePkg "github.com/objectionlab/voicecall/backend/internal/middleware"
	personaModel "github.com/objectionlab/voicecall/backend/internal/model/persona"
	callService "github.com/objectionlab/voicecall/backend/internal/service/call"
	speechService "github.com/objectionlab/voicecall/backend/internal/service/speech"
	"github.com/objectionlab/voicecall/backend/pkg/utils"
)

const livenessMessage = "Objection Lab Tyler Bot is LIVE"

// Dependencies 路由需要的全部服务
type Dependencies struct {
	Personas       personaModel.Store
	Calls          *callService.Service
	Pipeline       *callService.Pipeline
	Speech         *speechService.Service
	DefaultPersona string
	MaxAudioBytes  int64
	CORSOrigins    string
	Logger         zerolog.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.CORSOrigins))

	callHandler := call.New(deps.Calls, deps.Pipeline, call.Options{
		DefaultPersona: deps.DefaultPersona,
		MaxAudioBytes:  deps.MaxAudioBytes,
	}, logging.Component(deps.Logger, "call-handler"))

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(livenessMessage))
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"activeCalls": deps.Calls.ActiveCount(),
		})
	})

	// 原版单接口客户端
	callHandler.RegisterLegacyRoutes(r)

	r.Route("/api", func(api chi.Router) {
		persona.New(deps.Personas).RegisterRoutes(api)
		callHandler.RegisterRoutes(api)

		if deps.Speech != nil {
			speech.New(deps.Speech, deps.Personas, deps.MaxAudioBytes,
				logging.Component(deps.Logger, "speech-handler")).RegisterRoutes(api)
		}
	})

	return r
}
