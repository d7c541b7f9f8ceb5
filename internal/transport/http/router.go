package http

import (
	"net/http"
	"time"

	httpmw "github.com/cwrk-planet/realtime-service/internal/transport/http/middleware"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterDeps struct {
	Handler        *Handler
	Auth           httpmw.Authenticator
	WS             http.HandlerFunc
	AllowedOrigins []string
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middlewareChi.RequestID)
	r.Use(middlewareChi.RealIP)
	r.Use(httpmw.WithRequestLoggerCtx)
	r.Use(httpmw.RequestLogger)
	r.Use(middlewareChi.Recoverer)
	r.Use(httpmw.Metrics)

	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", InternalTokenHeader},
		MaxAge:         300,
	}))

	// WS endpoint: токен в access_token или Authorization
	r.Get("/ws", d.WS)

	// REST требует Bearer access_token
	r.Group(func(pr chi.Router) {
		pr.Use(httpmw.Auth(d.Auth))
		pr.Use(middlewareChi.Timeout(30 * time.Second))

		pr.Get("/channels/{id}/messages", d.Handler.ChannelHistory)
		pr.Get("/conversations/{id}/messages", d.Handler.ConversationHistory)
		pr.Post("/messages", d.Handler.CreateMessage)
		pr.Patch("/messages/{id}", d.Handler.EditMessage)
		pr.Delete("/messages/{id}", d.Handler.DeleteMessage)
		pr.Get("/presence", d.Handler.Presence)
	})

	r.Post("/internal/events", d.Handler.InternalEvent)

	r.Handle("/metrics", promhttp.Handler())

	// health
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}
