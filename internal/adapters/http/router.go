package http

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceAgent/internal/config"
	transport "github.com/dkeye/VoiceAgent/internal/transport/http"
)

const clientTokenCookie = "ct"

// ClientTokenMiddleware tags every browser with a stable id for log correlation.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(clientTokenCookie)
		if token == "" {
			token = uuid.NewString()
			c.SetCookie(clientTokenCookie, token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// Deps are the collaborators of the token service.
type Deps struct {
	Issuer   transport.TokenIssuer
	Limiter  transport.Limiter
	Registry *prometheus.Registry
}

func SetupRouter(cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.HandleMethodNotAllowed = true
	r.NoMethod(transport.MethodNotAllowed)

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24, HttpOnly: true})
	r.Use(sessions.Sessions("VoiceSessions", store))
	r.Use(ClientTokenMiddleware())

	reg := deps.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	h := &transport.TokenHandler{
		Issuer:  deps.Issuer,
		Limiter: deps.Limiter,
		Metrics: transport.NewMetrics(reg),
	}

	r.GET("/healthz", transport.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
	}

	api := r.Group("/api")
	api.POST("/token", h.Issue)
	api.POST("/get-participant-token", h.Issue)
	api.GET("/session", h.Session)

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")
	return r
}
