package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/maruel/subcommands"
	"github.com/michaellenahan/amazon-product-widget/collection"
	"github.com/michaellenahan/amazon-product-widget/cron"
	"github.com/michaellenahan/amazon-product-widget/guard"
	"go.uber.org/zap"
)

func cmdServe() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "serve [-config path]",
		ShortDesc: "runs scheduled refresh cycles until interrupted",
		LongDesc: "Loads the collection catalog and refreshes every collection on the configured " +
			"cron spec. Stops on SIGINT or SIGTERM after in-flight batches are written.",
		CommandRun: func() subcommands.CommandRun {
			r := &serveRun{}
			r.registerFlags()
			return r
		},
	}
}

type serveRun struct {
	commonFlags
}

func (r *serveRun) Run(a subcommands.Application, args []string, _ subcommands.Env) int {
	if len(args) != 0 {
		return fail(a, errUnexpectedArgs(args))
	}

	c, err := open(r.configPath, true)
	if err != nil {
		return fail(a, err)
	}
	defer c.close()

	if c.cfg.Collections.Path == "" {
		return fail(a, errMissingCollections)
	}
	catalog, err := collection.New(c.log.Named("collection"), c.cfg.Collections, collection.FileSource(c.cfg.Collections.Path))
	if err != nil {
		return fail(a, err)
	}
	if err := catalog.Start(); err != nil {
		return fail(a, err)
	}
	defer catalog.Stop()

	sched, err := cron.New(c.log.Named("cron"), c.cfg.Cron)
	if err != nil {
		return fail(a, err)
	}
	g := guard.New(c.log.Named("guard"), c.coordinator)
	if err := sched.AddRefresh("refresh", c.cfg.Cron.Spec, catalog, g); err != nil {
		return fail(a, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched.Start()
	c.log.Info("widget cache serving",
		zap.String("spec", c.cfg.Cron.Spec),
		zap.Int("collections", len(catalog.Get())),
	)

	<-ctx.Done()
	c.log.Info("shutting down")
	sched.Close()
	return 0
}
