package commands

import (
	"fmt"

	"github.com/activecm/logvigil/config"

	"github.com/urfave/cli"
)

func init() {
	checkCommand := cli.Command{
		Name:  "check-config",
		Usage: "parse the rule files and report OK per file",
		Flags: []cli.Flag{
			configFlag,
			defineFlag,
			definesFileFlag,
		},
		Action: doCheckConfig,
	}

	bootstrapCommands(checkCommand)
}

// doCheckConfig parses every rule file independently so the report names
// the file that fails, then loads them together to catch cross-file
// problems such as a bad combined skip alternation.
func doCheckConfig(c *cli.Context) error {
	defines, err := collectDefines(c)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	files := configFiles(c)
	for _, file := range files {
		if _, _, err := config.LoadConfig([]string{file}, nil); err != nil {
			return cli.NewExitError(fmt.Sprintf("%s: %v", file, err), 2)
		}
		fmt.Printf("%s: OK\n", file)
	}

	if _, _, err := config.LoadConfig(files, defines); err != nil {
		return cli.NewExitError(err.Error(), 2)
	}
	return nil
}
