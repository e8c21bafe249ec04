// Command widgetcache keeps the product widget cache fresh.
//
// Subcommands:
//
//	serve    run the scheduled refresh until interrupted
//	refresh  trigger one collection refresh and print the outcome
//	show     print stored entries
package main

import (
	"os"

	"github.com/maruel/subcommands"
)

func application() *subcommands.DefaultApplication {
	return &subcommands.DefaultApplication{
		Name:  "widgetcache",
		Title: "Product widget refresh cache",
		Commands: []*subcommands.Command{
			subcommands.CmdHelp,
			cmdServe(),
			cmdRefresh(),
			cmdShow(),
		},
	}
}

func main() {
	os.Exit(subcommands.Run(application(), os.Args[1:]))
}
