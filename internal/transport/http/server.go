package http

import (
	"context"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiredispatch/internal/auth"
	"github.com/vovakirdan/wiredispatch/internal/config"
	"github.com/vovakirdan/wiredispatch/internal/core"
	"github.com/vovakirdan/wiredispatch/internal/metrics"
)

// Dispatcher is the part of core.Hub the transport drives.
type Dispatcher interface {
	AddClient(id core.ClientID, conn core.Conn) (*core.Client, error)
	RemoveClient(id core.ClientID)
	HandleFrame(id core.ClientID, data []byte) error
	CreateChannel(name string) (*core.ChannelBuilder, error)
	CloseChannel(name string) bool
	AddListener(name string, id core.ClientID) error
	RemoveListener(name string, id core.ClientID) bool
	Channel(name string) (core.ChannelInfo, bool)
	Channels() []string
	Clients() []core.ClientInfo
	To(name string, payload core.Payload)
}

// Server is the HTTP server plus the WebSocket connections it has upgraded.
type Server struct {
	*stdhttp.Server
	ws *WSHandler
}

// Shutdown stops the HTTP server, then closes live WebSocket connections and
// waits until they are unregistered from the hub.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.Server.Shutdown(ctx)
	if wsErr := s.ws.Close(ctx); err == nil {
		err = wsErr
	}
	return err
}

// NewServer builds the HTTP server: health check, WebSocket endpoint,
// Prometheus metrics (when gatherer is non-nil) and the admin API.
func NewServer(hub Dispatcher, cfg *config.Config, gatherer prometheus.Gatherer, m *metrics.Metrics, logger *zerolog.Logger) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	ws := NewWSHandler(hub, WSOptions{
		MaxMessageBytes:    cfg.MaxMessageBytes,
		SendBuffer:         cfg.SendBuffer,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		OriginPatterns:     cfg.OriginPatterns,
	}, m, logger)
	router.GET("/ws", gin.WrapH(ws))
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api")
	jwtConfig := AdminJWTConfig(cfg)
	if jwtConfig.Enabled() {
		api.Use(AdminAuthMiddleware(jwtConfig, logger))
	} else {
		logger.Warn().Msg("admin secret not set, admin api is unauthenticated")
	}

	channels := NewChannelHandlers(hub, logger)
	api.GET("/channels", channels.ListChannels)
	api.POST("/channels", channels.CreateChannel)
	api.GET("/channels/:name", channels.GetChannel)
	api.DELETE("/channels/:name", channels.CloseChannel)
	api.POST("/channels/:name/messages", channels.Publish)
	api.PUT("/channels/:name/subscribers/:id", channels.Subscribe)
	api.DELETE("/channels/:name/subscribers/:id", channels.Unsubscribe)
	api.GET("/clients", channels.ListClients)

	return &Server{
		Server: &stdhttp.Server{
			Addr:              cfg.Addr,
			Handler:           router,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		},
		ws: ws,
	}
}

// AdminJWTConfig derives the admin token settings from cfg.
func AdminJWTConfig(cfg *config.Config) *auth.JWTConfig {
	return &auth.JWTConfig{
		Secret:   []byte(cfg.Admin.Secret),
		Issuer:   cfg.Admin.Issuer,
		Audience: cfg.Admin.Audience,
		TTL:      cfg.Admin.TokenTTL,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
