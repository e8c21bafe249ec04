package main

import (
	"context"
	"time"

	"github.com/maruel/subcommands"
	"github.com/michaellenahan/amazon-product-widget/product"
)

func cmdShow() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "show [-config path] [-outdated] [key...]",
		ShortDesc: "prints stored entries as JSON",
		LongDesc:  "Prints the stored entry of every key; with -outdated prints the keys the staleness policy would refresh now.",
		CommandRun: func() subcommands.CommandRun {
			r := &showRun{}
			r.registerFlags()
			r.Flags.BoolVar(&r.outdated, "outdated", false, "list outdated keys instead of entries")
			return r
		},
	}
}

type showRun struct {
	commonFlags
	outdated bool
}

func (r *showRun) Run(a subcommands.Application, args []string, _ subcommands.Env) int {
	if !r.outdated && len(args) == 0 {
		return fail(a, errMissingKeys)
	}

	c, err := open(r.configPath, false)
	if err != nil {
		return fail(a, err)
	}
	defer c.close()

	ctx := context.Background()
	if r.outdated {
		keys, err := c.store.OutdatedKeys(ctx, time.Now())
		if err != nil {
			return fail(a, err)
		}
		if err := printJSON(a.GetOut(), keys); err != nil {
			return fail(a, err)
		}
		return 0
	}

	entries := make(map[string]*product.Entry, len(args))
	for _, key := range args {
		e, err := c.store.Get(ctx, key)
		if err != nil {
			return fail(a, err)
		}
		entries[key] = e
	}
	if err := printJSON(a.GetOut(), entries); err != nil {
		return fail(a, err)
	}
	return 0
}
