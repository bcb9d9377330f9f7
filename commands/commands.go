package commands

import (
	"fmt"
	"io/ioutil"
	"strings"

	"github.com/urfave/cli"
	yaml "gopkg.in/yaml.v2"
)

//DefaultConfigFile is consulted when no --config-file flags are given
const DefaultConfigFile = "/etc/logvigil/logvigil.conf"

var allCommands []cli.Command

// bootstrapCommands registers a command to be returned by Commands()
func bootstrapCommands(commands ...cli.Command) {
	for _, command := range commands {
		allCommands = append(allCommands, command)
	}
}

// Commands provides all of the defined commands to the front end
func Commands() []cli.Command {
	return allCommands
}

// Flags shared across commands
var (
	configFlag = cli.StringSliceFlag{
		Name:  "config-file, c",
		Usage: "load rules from `FILE`; repeatable",
	}
	defineFlag = cli.StringSliceFlag{
		Name:  "define, D",
		Usage: "override one config setting as `KEY=VAL`; repeatable",
	}
	definesFileFlag = cli.StringFlag{
		Name:  "defines-file, Y",
		Usage: "load a yaml map of KEY: VAL overrides from `FILE`",
	}
	dryRunFlag = cli.BoolFlag{
		Name:  "dry-run, n",
		Usage: "echo exec actions instead of running them; prints go to stderr",
	}
	syslogFlag = cli.BoolFlag{
		Name:  "syslog, s",
		Usage: "log through syslog",
	}
	noSyslogFlag = cli.BoolFlag{
		Name:  "nosyslog, S",
		Usage: "do not log through syslog",
	}
	verboseFlag = cli.BoolFlag{
		Name:  "verbose, v",
		Usage: "log whitelist and violation messages",
	}
	noVerboseFlag = cli.BoolFlag{
		Name:  "noverbose, V",
		Usage: "suppress whitelist and violation messages",
	}
	debugFlag = cli.BoolFlag{
		Name:  "debug, d",
		Usage: "verbose plus variable dumps on action failures",
	}
	intervalFlag = cli.IntFlag{
		Name:  "interval, i",
		Usage: "override the count window `SECONDS`",
	}
	windowFlag = cli.IntFlag{
		Name:  "window, k",
		Usage: "override the out-of-order grace buffer `SECONDS`",
	}
	thresholdFlag = cli.IntFlag{
		Name:  "threshold, l",
		Usage: "override the hit `THRESHOLD`",
	}
	noFlushFlag = cli.BoolFlag{
		Name:  "no-flush, F",
		Usage: "do not drain expiries on exit",
	}
	daemonFlag = cli.BoolFlag{
		Name:  "daemon, b",
		Usage: "detach and run in the background",
	}
	checkConfigFlag = cli.BoolFlag{
		Name:  "check-config, t",
		Usage: "parse the rule files, report OK per file, and exit",
	}
)

// configFiles resolves the rule files for a command invocation.
func configFiles(c *cli.Context) []string {
	files := c.StringSlice("config-file")
	if len(files) == 0 {
		files = []string{DefaultConfigFile}
	}
	return files
}

// collectDefines folds the --define flags, the --defines-file map, and the
// toggle flags into one override map applied after the rule files.
func collectDefines(c *cli.Context) (map[string]string, error) {
	defines := make(map[string]string)

	if path := c.String("defines-file"); path != "" {
		contents, err := ioutil.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var fromFile map[string]string
		if err := yaml.Unmarshal(contents, &fromFile); err != nil {
			return nil, fmt.Errorf("bad defines file %s: %v", path, err)
		}
		for key, value := range fromFile {
			defines[key] = value
		}
	}

	for _, definition := range c.StringSlice("define") {
		idx := strings.Index(definition, "=")
		if idx <= 0 {
			return nil, fmt.Errorf("bad define %q, expected KEY=VAL", definition)
		}
		defines[definition[:idx]] = definition[idx+1:]
	}

	if c.Bool("dry-run") {
		defines["dryrun"] = "yes"
	}
	if c.Bool("syslog") {
		defines["syslog"] = "yes"
	}
	if c.Bool("nosyslog") {
		defines["syslog"] = "no"
	}
	if c.Bool("verbose") {
		defines["verbose"] = "yes"
	}
	if c.Bool("noverbose") {
		defines["verbose"] = "no"
	}
	if c.Bool("debug") {
		defines["debug"] = "yes"
	}
	if c.Bool("daemon") {
		defines["daemon"] = "yes"
	}
	if c.Bool("no-flush") {
		defines["flush"] = "no"
	}
	if c.Int("interval") > 0 {
		defines["interval"] = fmt.Sprintf("%d", c.Int("interval"))
	}
	if c.Int("window") > 0 {
		defines["window"] = fmt.Sprintf("%d", c.Int("window"))
	}
	if c.Int("threshold") > 0 {
		defines["threshold"] = fmt.Sprintf("%d", c.Int("threshold"))
	}
	return defines, nil
}
