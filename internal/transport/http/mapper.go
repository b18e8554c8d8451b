package http

import "github.com/vovakirdan/wiredispatch/internal/core"

// ChannelResponse represents a channel in API responses.
type ChannelResponse struct {
	Name        string   `json:"name"`
	Subscribers []string `json:"subscribers"`
	Callbacks   int      `json:"callbacks"`
}

// ClientResponse represents a connected client in API responses.
type ClientResponse struct {
	ID            string   `json:"id"`
	Subscriptions []string `json:"subscriptions"`
}

func channelToResponse(info core.ChannelInfo) ChannelResponse {
	subscribers := make([]string, 0, len(info.Subscribers))
	for _, id := range info.Subscribers {
		subscribers = append(subscribers, string(id))
	}
	return ChannelResponse{
		Name:        info.Name,
		Subscribers: subscribers,
		Callbacks:   info.Callbacks,
	}
}

func clientToResponse(info core.ClientInfo) ClientResponse {
	subscriptions := info.Subscriptions
	if subscriptions == nil {
		subscriptions = []string{}
	}
	return ClientResponse{
		ID:            string(info.ID),
		Subscriptions: subscriptions,
	}
}
