package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/maruel/subcommands"
	"github.com/michaellenahan/amazon-product-widget/config"
	"github.com/michaellenahan/amazon-product-widget/events"
	"github.com/michaellenahan/amazon-product-widget/fetcher"
	"github.com/michaellenahan/amazon-product-widget/logger"
	"github.com/michaellenahan/amazon-product-widget/refresh"
	"github.com/michaellenahan/amazon-product-widget/store"
	"go.uber.org/zap"
)

const defaultConfigPath = "widgetcache.yaml"

// commonFlags are shared by every subcommand
type commonFlags struct {
	subcommands.CommandRunBase
	configPath string
}

func (c *commonFlags) registerFlags() {
	c.Flags.StringVar(&c.configPath, "config", defaultConfigPath, "path to the YAML configuration")
}

// components are the wired parts of the cache; unused parts stay nil
type components struct {
	cfg         *config.Config
	log         *zap.Logger
	store       store.Store
	sink        events.Sink
	coordinator *refresh.Coordinator
}

// open loads the configuration and builds the store, plus the refresh path when withRefresh is set
func open(path string, withRefresh bool) (*components, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, err
	}

	c := &components{cfg: cfg, log: log}
	c.store, err = store.New(log, cfg.Store, cfg.Staleness.Policy())
	if err != nil {
		c.close()
		return nil, err
	}
	if !withRefresh {
		return c, nil
	}

	client, err := fetcher.NewHTTPClient(log.Named("upstream"), cfg.Fetcher, &http.Client{})
	if err != nil {
		c.close()
		return nil, err
	}
	f, err := fetcher.New(log.Named("fetcher"), client, cfg.Fetcher)
	if err != nil {
		c.close()
		return nil, err
	}
	c.sink, err = events.New(log.Named("events"), cfg.Events)
	if err != nil {
		c.close()
		return nil, err
	}
	c.coordinator, err = refresh.New(log.Named("refresh"), c.store, f, cfg.Staleness.Policy(), c.sink, cfg.Refresh)
	if err != nil {
		c.close()
		return nil, err
	}
	return c, nil
}

func (c *components) close() {
	var errs []error
	if c.sink != nil {
		errs = append(errs, c.sink.Close())
	}
	if c.store != nil {
		errs = append(errs, c.store.Close())
	}
	if err := errors.Join(errs...); err != nil {
		c.log.Error("failed to close components", zap.Error(err))
	}
	_ = c.log.Sync()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// fail prints err for the user and returns the exit code
func fail(a subcommands.Application, err error) int {
	fmt.Fprintf(a.GetErr(), "%s: %s\n", a.GetName(), err)
	return 1
}
