package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"

	"github.com/phinze/plugwatch/pkg/protocol"
)

// Client sends single requests to a running daemon.
type Client struct {
	Network string
	Address string
}

// NewClient returns a client for a daemon listening on network and address.
func NewClient(network, address string) *Client {
	return &Client{Network: network, Address: address}
}

// GuessNetwork picks a network for an address given without one. A path,
// including a Windows drive path like C:\Users\me\plugwatch.sock, is a unix
// socket. Otherwise host:port is tcp.
func GuessNetwork(address string) string {
	if strings.ContainsAny(address, `/\`) {
		return "unix"
	}
	if strings.Contains(address, ":") {
		return "tcp"
	}
	return "unix"
}

// Send writes req as one JSON line and reads one response. Cancelling ctx
// aborts a request that is still waiting, such as a wait.
func (c *Client) Send(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, c.Network, c.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	reqData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	reqData = append(reqData, '\n')

	if _, err := conn.Write(reqData); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	var resp protocol.Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return &resp, nil
}
