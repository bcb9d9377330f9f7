package action

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

//Type enumerates the defined action kinds
type Type int

const (
	//Print concatenates its expanded arguments and emits them at info priority
	Print Type = iota
	//Exec template-expands its arguments and spawns the command
	Exec
	//Exit optionally logs a message then runs the graceful shutdown path
	Exit
	//Null does nothing
	Null
)

type (
	//Action is one named action definition from the ruleset
	Action struct {
		Name string
		Type Type
		Args []string          // trailing args, templated on invocation
		Vars map[string]string // per-rule variables from the block preamble
	}

	//Dispatcher interprets actions over an argument map
	Dispatcher struct {
		Log    *log.Logger
		Out    io.Writer // print destination; stderr under dry-run
		DryRun bool      // prepend echo to exec commands
		Debug  bool      // log variable bindings on exec failure
		OnExit func(status int) // graceful shutdown hook for exit actions
	}
)

// ParseType maps a config token to an action type.
func ParseType(token string) (Type, bool) {
	switch token {
	case "print":
		return Print, true
	case "exec":
		return Exec, true
	case "exit":
		return Exit, true
	case "null":
		return Null, true
	}
	return Null, false
}

// NewDispatcher builds a dispatcher writing prints to stdout, or stderr
// when dryRun is set.
func NewDispatcher(logger *log.Logger, dryRun bool, debug bool) *Dispatcher {
	var out io.Writer = os.Stdout
	if dryRun {
		out = os.Stderr
	}
	return &Dispatcher{
		Log:    logger,
		Out:    out,
		DryRun: dryRun,
		Debug:  debug,
	}
}

// Dispatch runs one action over the merged argument map. Subprocess
// failures are logged, never propagated.
func (d *Dispatcher) Dispatch(a *Action, vars map[string]string) {
	switch a.Type {
	case Null:
	case Print:
		message := strings.Join(ExpandAll(a.Args, vars), " ")
		fmt.Fprintln(d.Out, message)
		d.Log.Info(message)
	case Exec:
		d.execute(a, vars)
	case Exit:
		status := 0
		if len(a.Args) > 0 {
			parsed, err := strconv.Atoi(Expand(a.Args[0], vars))
			if err == nil {
				status = parsed
			}
		}
		if len(a.Args) > 1 {
			d.Log.Info(strings.Join(ExpandAll(a.Args[1:], vars), " "))
		}
		if d.OnExit != nil {
			d.OnExit(status)
		}
	}
}

func (d *Dispatcher) execute(a *Action, vars map[string]string) {
	argv := ExpandAll(a.Args, vars)
	if len(argv) == 0 {
		d.Log.WithField("action", a.Name).Error("exec action has no command")
		return
	}
	if d.DryRun {
		argv = append([]string{"echo"}, argv...)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = d.Out
	cmd.Stderr = os.Stderr
	err := cmd.Run()
	if err != nil {
		entry := d.Log.WithFields(log.Fields{
			"action":  a.Name,
			"command": strings.Join(argv, " "),
		})
		if d.Debug {
			entry = entry.WithField("bindings", vars)
		}
		entry.Error(err)
	}
}
