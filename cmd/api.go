package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/desertthunder/abx/internal/shared"
	"github.com/urfave/cli/v3"
)

// APIGet proxies a GET through the shim and prints the response.
func (r *Runner) APIGet(ctx context.Context, cmd *cli.Command) error {
	path, params, err := proxyArgs(cmd)
	if err != nil {
		return err
	}

	r.logger.Info("GET request", "path", path)

	data, err := r.shim.Get(ctx, path, params)
	if err != nil {
		return err
	}
	return r.writeJSON(data, cmd.Bool("pretty"))
}

// APIPut proxies a PUT through the shim and prints the response.
func (r *Runner) APIPut(ctx context.Context, cmd *cli.Command) error {
	path, params, err := proxyArgs(cmd)
	if err != nil {
		return err
	}

	r.logger.Info("PUT request", "path", path)

	data, err := r.shim.Put(ctx, path, params)
	if err != nil {
		return err
	}
	return r.writeJSON(data, cmd.Bool("pretty"))
}

// APIPost proxies a POST through the shim. The shim reports success only.
func (r *Runner) APIPost(ctx context.Context, cmd *cli.Command) error {
	path, params, err := proxyArgs(cmd)
	if err != nil {
		return err
	}

	r.logger.Info("POST request", "path", path)

	if err := r.shim.Post(ctx, path, params); err != nil {
		return err
	}
	return r.writePlain("✓ POST %s succeeded\n", path)
}

// proxyArgs reads the path argument and the --params JSON object.
func proxyArgs(cmd *cli.Command) (string, map[string]any, error) {
	path := strings.TrimSpace(cmd.StringArg("path"))
	if path == "" {
		return "", nil, fmt.Errorf("%w: path", shared.ErrMissingArgument)
	}

	raw := cmd.String("params")
	if raw == "" {
		return path, nil, nil
	}

	var params map[string]any
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return "", nil, fmt.Errorf("%w: params must be a JSON object: %v", shared.ErrInvalidRequest, err)
	}
	return path, params, nil
}
