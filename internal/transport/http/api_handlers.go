package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiredispatch/internal/core"
	"github.com/vovakirdan/wiredispatch/internal/proto"
)

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ChannelHandlers provides HTTP handlers for channel administration and
// server-originated publishing.
type ChannelHandlers struct {
	hub Dispatcher
	log *zerolog.Logger
}

// NewChannelHandlers creates a new channel handlers instance.
func NewChannelHandlers(hub Dispatcher, logger *zerolog.Logger) *ChannelHandlers {
	return &ChannelHandlers{
		hub: hub,
		log: logger,
	}
}

// CreateChannelRequest represents the create channel request body.
type CreateChannelRequest struct {
	Name string `json:"name" binding:"required,min=1,max=128"`
}

// PublishRequest represents a message published through the API. From is
// set when relaying a message on behalf of a client.
type PublishRequest struct {
	Message any    `json:"message" binding:"required"`
	From    string `json:"from,omitempty"`
}

// PublishResponse acknowledges a queued message.
type PublishResponse struct {
	Channel string `json:"channel"`
	Queued  bool   `json:"queued"`
}

// ListChannels handles listing channel names.
// GET /api/channels
func (h *ChannelHandlers) ListChannels(c *gin.Context) {
	c.JSON(http.StatusOK, h.hub.Channels())
}

// CreateChannel handles channel creation.
// POST /api/channels
func (h *ChannelHandlers) CreateChannel(c *gin.Context) {
	var req CreateChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create channel request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if proto.IsReserved(req.Name) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "channel name is reserved"})
		return
	}

	if _, err := h.hub.CreateChannel(req.Name); err != nil {
		if errors.Is(err, core.ErrChannelExists) {
			c.JSON(http.StatusConflict, ErrorResponse{Error: "channel already exists"})
			return
		}
		h.log.Error().Err(err).Str("channel", req.Name).Msg("failed to create channel")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	info, _ := h.hub.Channel(req.Name)
	h.log.Info().Str("channel", req.Name).Msg("channel created")
	c.JSON(http.StatusCreated, channelToResponse(info))
}

// GetChannel handles fetching one channel.
// GET /api/channels/:name
func (h *ChannelHandlers) GetChannel(c *gin.Context) {
	info, ok := h.hub.Channel(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "channel not found"})
		return
	}
	c.JSON(http.StatusOK, channelToResponse(info))
}

// CloseChannel handles closing a channel.
// DELETE /api/channels/:name
func (h *ChannelHandlers) CloseChannel(c *gin.Context) {
	name := c.Param("name")
	if !h.hub.CloseChannel(name) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "channel not found"})
		return
	}
	h.log.Info().Str("channel", name).Msg("channel closed")
	c.Status(http.StatusNoContent)
}

// Publish queues a message for the channel's subscribers and handlers.
// POST /api/channels/:name/messages
func (h *ChannelHandlers) Publish(c *gin.Context) {
	name := c.Param("name")

	var req PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid publish request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if _, ok := h.hub.Channel(name); !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "channel not found"})
		return
	}

	var payload core.Payload = core.Raw{Value: req.Message}
	if req.From != "" {
		payload = core.Forwarded{Value: req.Message, From: core.ClientID(req.From)}
	}
	h.hub.To(name, payload)

	h.log.Debug().Str("channel", name).Str("from", req.From).Msg("message queued")
	c.JSON(http.StatusAccepted, PublishResponse{Channel: name, Queued: true})
}

// Subscribe attaches a connected client to a channel, creating the channel
// if needed.
// PUT /api/channels/:name/subscribers/:id
func (h *ChannelHandlers) Subscribe(c *gin.Context) {
	name, id := c.Param("name"), core.ClientID(c.Param("id"))
	if proto.IsReserved(name) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "channel name is reserved"})
		return
	}

	if err := h.hub.AddListener(name, id); err != nil {
		if errors.Is(err, core.ErrClientNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "client not found"})
			return
		}
		h.log.Error().Err(err).Str("channel", name).Str("client_id", string(id)).Msg("failed to subscribe client")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	info, _ := h.hub.Channel(name)
	h.log.Info().Str("channel", name).Str("client_id", string(id)).Msg("client subscribed")
	c.JSON(http.StatusOK, channelToResponse(info))
}

// Unsubscribe detaches a client from a channel.
// DELETE /api/channels/:name/subscribers/:id
func (h *ChannelHandlers) Unsubscribe(c *gin.Context) {
	name, id := c.Param("name"), core.ClientID(c.Param("id"))
	if !h.hub.RemoveListener(name, id) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "subscription not found"})
		return
	}
	h.log.Info().Str("channel", name).Str("client_id", string(id)).Msg("client unsubscribed")
	c.Status(http.StatusNoContent)
}

// ListClients handles listing connected clients.
// GET /api/clients
func (h *ChannelHandlers) ListClients(c *gin.Context) {
	clients := h.hub.Clients()
	response := make([]ClientResponse, 0, len(clients))
	for _, info := range clients {
		response = append(response, clientToResponse(info))
	}
	c.JSON(http.StatusOK, response)
}
