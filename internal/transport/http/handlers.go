package http

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceAgent/internal/domain"
)

const (
	sessionIdentityKey = "identity"
	sessionRoomKey     = "room"
)

// TokenIssuer signs session credentials.
type TokenIssuer interface {
	Configured() bool
	Issue(identity domain.Identity, room domain.RoomName) (string, error)
}

// Limiter bounds how often one identity may ask for a credential.
type Limiter interface {
	Allow(id domain.Identity) bool
}

type TokenRequest struct {
	Identity string `json:"identity"`
	Room     string `json:"room"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type SessionResponse struct {
	Identity string `json:"identity,omitempty"`
	Room     string `json:"room,omitempty"`
}

// Metrics counts token requests by outcome.
type Metrics struct {
	Requests *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voice",
			Subsystem: "token",
			Name:      "requests_total",
			Help:      "Token requests by outcome.",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.Requests)
	}
	return m
}

func (m *Metrics) observe(outcome string) {
	if m != nil {
		m.Requests.WithLabelValues(outcome).Inc()
	}
}

type TokenHandler struct {
	Issuer  TokenIssuer
	Limiter Limiter
	Metrics *Metrics
}

// Issue handles POST /api/token.
func (h *TokenHandler) Issue(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Metrics.observe("bad_request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Missing identity or room"})
		return
	}
	identity, idErr := domain.NewIdentity(req.Identity)
	room, roomErr := domain.NewRoomName(req.Room)
	if idErr != nil || roomErr != nil {
		h.Metrics.observe("bad_request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Missing identity or room"})
		return
	}

	if h.Issuer == nil || !h.Issuer.Configured() {
		h.Metrics.observe("misconfigured")
		log.Error().Str("module", "transport.http").Msg("signing credentials missing")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "configuration missing"})
		return
	}

	if h.Limiter != nil && !h.Limiter.Allow(identity) {
		h.Metrics.observe("rate_limited")
		log.Warn().Str("module", "transport.http").Str("identity", string(identity)).Msg("token rate limited")
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "Too many requests"})
		return
	}

	token, err := h.Issuer.Issue(identity, room)
	if err != nil {
		h.Metrics.observe("error")
		log.Error().Err(err).Str("module", "transport.http").Msg("token generation error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to generate token"})
		return
	}

	sess := sessions.Default(c)
	sess.Set(sessionIdentityKey, string(identity))
	sess.Set(sessionRoomKey, string(room))
	if err := sess.Save(); err != nil {
		log.Warn().Err(err).Str("module", "transport.http").Msg("session save")
	}

	h.Metrics.observe("issued")
	log.Info().Str("module", "transport.http").Str("identity", string(identity)).Str("room", string(room)).Msg("token issued")
	c.JSON(http.StatusOK, TokenResponse{Token: token})
}

// Session handles GET /api/session: the last identity and room this browser asked for.
func (h *TokenHandler) Session(c *gin.Context) {
	sess := sessions.Default(c)
	var out SessionResponse
	if v, ok := sess.Get(sessionIdentityKey).(string); ok {
		out.Identity = v
	}
	if v, ok := sess.Get(sessionRoomKey).(string); ok {
		out.Room = v
	}
	c.JSON(http.StatusOK, out)
}

func MethodNotAllowed(c *gin.Context) {
	c.JSON(http.StatusMethodNotAllowed, ErrorResponse{Error: "Method not allowed"})
}

func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
