package main

import (
	"os"

	"github.com/activecm/logvigil/commands"
	"github.com/activecm/logvigil/config"

	"github.com/urfave/cli"
)

// Entry point of logvigil
func main() {
	app := cli.NewApp()
	app.Name = "logvigil"
	app.Usage = "Watch access logs and respond to intrusions as they happen."
	app.Version = config.Version

	// Define commands used with this application
	app.Commands = commands.Commands()

	// Bare invocations run the daemon
	app.Flags = commands.RunFlags()
	app.Action = commands.RunAction

	app.Run(os.Args)
}
