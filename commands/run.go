package commands

import (
	"fmt"
	"io/ioutil"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/activecm/logvigil/parser"
	"github.com/activecm/logvigil/pkg/engine"
	"github.com/activecm/logvigil/resources"

	"github.com/pbnjay/memory"
	"github.com/urfave/cli"
)

// daemonEnv marks the re-executed child of a --daemon launch.
const daemonEnv = "LOGVIGIL_DAEMONIZED"

// lowMemoryFloor is the total-memory size below which the daemon warns at
// startup; the hit counters and queue are unbounded by entry count.
const lowMemoryFloor = 512 * 1024 * 1024

func init() {
	runCommand := cli.Command{
		Name:      "run",
		Usage:     "follow access logs and respond to violations",
		ArgsUsage: "[LOGFILE...]",
		Flags:     RunFlags(),
		Action:    doRun,
	}

	bootstrapCommands(runCommand)
}

// RunFlags lists the daemon's flags; the front end reuses them as the
// app-level flags so a bare `logvigil` invocation runs the daemon.
func RunFlags() []cli.Flag {
	return []cli.Flag{
		configFlag,
		defineFlag,
		definesFileFlag,
		dryRunFlag,
		syslogFlag,
		noSyslogFlag,
		verboseFlag,
		noVerboseFlag,
		debugFlag,
		intervalFlag,
		windowFlag,
		thresholdFlag,
		noFlushFlag,
		daemonFlag,
		checkConfigFlag,
	}
}

// RunAction is the app-level default action.
func RunAction(c *cli.Context) error {
	return doRun(c)
}

// doRun is the daemon entry point.
func doRun(c *cli.Context) error {
	if c.Bool("check-config") {
		return doCheckConfig(c)
	}
	defines, err := collectDefines(c)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	res := resources.InitResources(configFiles(c), defines)

	if res.Config.S.Daemon && os.Getenv(daemonEnv) == "" {
		return daemonize(res.Config.S.Pidfile)
	}

	if memory.TotalMemory() < lowMemoryFloor {
		res.Log.Warn("less than 512MB of memory detected; large rulesets may thrash")
	}

	logfiles := c.Args()
	if len(logfiles) == 0 {
		logfiles = res.Config.S.Logfiles
	}

	src, err := openSource(res, logfiles)
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}

	eng := engine.NewEngine(res.Config, res.Rules, res.Log, defines)
	watchSignals(eng)

	status := eng.Run(src)
	if status != 0 {
		return cli.NewExitError("", status)
	}
	return nil
}

// openSource picks the line source: tailed log files when any are named,
// standard input otherwise.
func openSource(res *resources.Resources, logfiles []string) (parser.Source, error) {
	if len(logfiles) == 0 {
		return parser.NewStdinSource(), nil
	}
	if res.Config.S.TailCommand != "" {
		return parser.NewExecTail(res.Config.S.TailCommand, logfiles)
	}
	return parser.NewFileTail(logfiles)
}

// watchSignals forwards process signals to the engine: SIGHUP reloads,
// SIGINT and SIGTERM shut down. The watcher only posts to engine channels,
// so no line in flight is ever half-processed.
func watchSignals(eng *engine.Engine) {
	signals := make(chan os.Signal, 4)
	signal.Notify(signals, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for sig := range signals {
			switch sig {
			case syscall.SIGHUP:
				eng.RequestReload()
			default:
				eng.RequestShutdown(0)
			}
		}
	}()
}

// daemonize re-executes the process detached from the terminal in a new
// session, writes the pidfile, and exits the parent.
func daemonize(pidfile string) error {
	executable, err := os.Executable()
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}

	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}
	defer devnull.Close()

	child := exec.Command(executable, os.Args[1:]...)
	child.Env = append(os.Environ(), daemonEnv+"=1")
	child.Stdin = devnull
	child.Stdout = devnull
	child.Stderr = devnull
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := child.Start(); err != nil {
		return cli.NewExitError(err.Error(), 2)
	}
	if pidfile != "" {
		contents := []byte(strconv.Itoa(child.Process.Pid) + "\n")
		if err := ioutil.WriteFile(pidfile, contents, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: cannot write pidfile %s: %v\n", pidfile, err)
		}
	}
	return nil
}
