// Package httpapi serves the card application over HTTP: minting, the
// gallery, metadata publication and resolution.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"xdao.co/nftcard/cardsvc"
	"xdao.co/nftcard/metrics"
	"xdao.co/nftcard/model"
	"xdao.co/nftcard/publisher"
	"xdao.co/nftcard/resolver"
	"xdao.co/nftcard/wallet"
)

const DefaultMaxUploadBytes = 5 << 20

type Deps struct {
	Cards     *cardsvc.Service
	Publisher *publisher.Publisher
	Resolver  *resolver.Resolver
	// Account signs mints. Without it the API is read-only.
	Account *wallet.Account

	// Gatherer backs /metrics; nil disables the route.
	Gatherer prometheus.Gatherer
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger

	MaxUploadBytes int64
	Health         model.Health
}

type handler struct {
	Deps
	log zerolog.Logger
}

// NewRouter wires middleware and routes onto a new gin engine.
func NewRouter(d Deps) *gin.Engine {
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = DefaultMaxUploadBytes
	}
	h := &handler{Deps: d, log: d.Logger.With().Str("component", "httpapi").Logger()}

	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog(h.log), observe(d.Metrics))

	r.GET("/healthz", h.health)
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")
	api.POST("/cards", h.mint)
	api.GET("/cards", h.requireLedger, h.ownedCards)
	api.GET("/cards/all", h.requireLedger, h.allCards)
	api.GET("/cards/:id", h.requireLedger, h.cardByID)
	api.POST("/metadata", h.publish)
	api.GET("/resolve", h.resolve)
	api.GET("/avatars/default", h.defaultAvatar)
	api.GET("/avatars/fallback", h.fallbackAvatar)
	return r
}

func (h *handler) health(c *gin.Context) {
	out := h.Health
	out.Status = "ok"
	c.JSON(http.StatusOK, out)
}

func (h *handler) requireLedger(c *gin.Context) {
	if h.Cards == nil {
		h.fail(c, model.NewError(model.ErrLedgerCallFailed, "no ledger configured"))
	}
}

// fail renders err as a coded error response.
func (h *handler) fail(c *gin.Context, err error) {
	ce := model.FromError(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(ce.HTTPStatus(), model.ErrorResponse{Error: ce, RequestID: getRequestID(c)})
}
