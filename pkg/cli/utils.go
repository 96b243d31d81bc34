package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/mitchellh/go-homedir"
	"github.com/phinze/plugwatch/pkg/config"
	"github.com/phinze/plugwatch/pkg/daemon"
	"github.com/phinze/plugwatch/pkg/protocol"
)

// loadConfig loads and validates the config named by --config, or the
// default one.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// getSocketPath returns the daemon's network and address. The config file's
// network is used as is; only an explicit --socket is guessed at.
func getSocketPath() (network, address string, err error) {
	if socketPath != "" {
		expanded, err := homedir.Expand(socketPath)
		if err != nil {
			return "", "", fmt.Errorf("failed to expand socket path: %w", err)
		}
		return daemon.GuessNetwork(expanded), expanded, nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return "", "", err
	}
	return cfg.Network, cfg.Address, nil
}

// sendRequest sends one command to the daemon and decodes its reply into out.
func sendRequest(ctx context.Context, stderr io.Writer, cmd protocol.CommandType, payload, out interface{}) error {
	network, address, err := getSocketPath()
	if err != nil {
		return err
	}

	req, err := protocol.NewRequest(uuid.New().String(), cmd, payload)
	if err != nil {
		return err
	}

	if verbose {
		reqData, _ := json.Marshal(req)
		fmt.Fprintf(stderr, "Sending request: %s\n", string(reqData))
	}

	resp, err := daemon.NewClient(network, address).Send(ctx, req)
	if err != nil {
		return err
	}

	if verbose {
		respData, _ := json.Marshal(resp)
		fmt.Fprintf(stderr, "Received response: %s\n", string(respData))
	}

	return resp.Decode(out)
}
