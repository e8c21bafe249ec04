package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/maruel/subcommands"
	"github.com/michaellenahan/amazon-product-widget/guard"
)

func cmdRefresh() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "refresh [-config path] -collection id [-force] key...",
		ShortDesc: "refreshes one collection and prints the outcome",
		LongDesc: "Runs one trigger with a fresh run state. Only outdated keys are fetched " +
			"unless -force is given. The outcome is printed as JSON; a continuation request " +
			"means stale data remains and the command may be run again.",
		CommandRun: func() subcommands.CommandRun {
			r := &refreshRun{}
			r.registerFlags()
			r.Flags.StringVar(&r.collectionID, "collection", "", "collection id reported on the refresh event")
			r.Flags.BoolVar(&r.force, "force", false, "refresh every key regardless of freshness")
			return r
		},
	}
}

type refreshRun struct {
	commonFlags
	collectionID string
	force        bool
}

func (r *refreshRun) Run(a subcommands.Application, args []string, _ subcommands.Env) int {
	if r.collectionID == "" {
		return fail(a, errMissingCollectionID)
	}

	c, err := open(r.configPath, true)
	if err != nil {
		return fail(a, err)
	}
	defer c.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	g := guard.New(c.log.Named("guard"), c.coordinator, guard.WithForceAll(r.force))
	out, err := g.Trigger(ctx, guard.NewRunState(), r.collectionID, args)
	if out != nil {
		if perr := printJSON(a.GetOut(), out); perr != nil {
			return fail(a, perr)
		}
	}
	if err != nil {
		return fail(a, err)
	}
	return 0
}
