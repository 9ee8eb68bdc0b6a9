package main

import (
	"context"
	"strings"
	"sync"
	"time"

	"lectern/internal/api"
	"lectern/internal/config"
	"lectern/internal/logging"
	"lectern/internal/queue"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) client() (*api.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return api.NewClient(cfg.Paths.APIBind, cfg.Paths.APIToken), nil
}

// withQueue runs fn with a daemon client when one is reachable, otherwise
// with direct access to the queue document. Exactly one of the two arguments
// is non-nil.
func (c *commandContext) withQueue(ctx context.Context, fn func(client *api.Client, store *queue.Store) error) error {
	client, err := c.client()
	if err != nil {
		return err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	reachable := client.Ping(pingCtx)
	cancel()
	if reachable {
		return fn(client, nil)
	}

	cfg, _ := c.ensureConfig()
	store, err := queue.Open(cfg, logging.NewNop())
	if err != nil {
		return err
	}
	return fn(nil, store)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
