package subastas_client

import (
	"github.com/subastafrutas/console/go/clients"
)

// SubastasClient talks to the auction REST API.
type SubastasClient struct {
	*clients.BaseClient
}

// NewSubastasClient creates a client for baseURL authenticating with token.
func NewSubastasClient(baseURL, token string) *SubastasClient {
	client := &SubastasClient{
		BaseClient: clients.NewBaseClient(baseURL),
	}

	client.SetHeader(JsonHeader, JsonContentType)
	client.SetToken(token)

	return client
}
