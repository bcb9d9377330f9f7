package engine

import (
	"os"
	"strconv"
	"strings"

	"github.com/activecm/logvigil/parser"
	"github.com/activecm/logvigil/pkg/action"

	log "github.com/sirupsen/logrus"
)

// handleControl routes an in-band control line to a built-in action or a
// user-defined one. Unknown names are ignored.
func (e *Engine) handleControl(ctl *parser.Control) {
	switch ctl.Name {
	case "HUP":
		e.reload()
	case "FLUSH":
		fired := e.queue.Flush(ctl.Args, e.fireExpire)
		e.log.WithFields(log.Fields{
			"filter": ctl.Args,
			"fired":  fired,
		}).Info("flushed violations")
	case "EXIT":
		status := 0
		if fields := strings.Fields(ctl.Rest); len(fields) > 0 {
			if parsed, err := strconv.Atoi(fields[0]); err == nil {
				status = parsed
			}
		}
		e.exitStatus = status
		e.running = false
	case "DUMP":
		e.dump(ctl.Args["file"])
	case "VIOL":
		e.controlViolation(ctl.Args)
	default:
		if act, ok := e.userAction(ctl.Name); ok {
			e.disp.Dispatch(act, action.Merge(e.conf.Vars, act.Vars, ctl.Args))
		}
	}
}

// dump writes the queue to stdout, or as JSON lines to the given path.
func (e *Engine) dump(path string) {
	if path == "" {
		e.queue.Dump(e.disp.Out)
		return
	}
	file, err := os.Create(path)
	if err != nil {
		e.log.WithField("file", path).Error(err)
		return
	}
	defer file.Close()
	if err := e.queue.DumpJSON(file); err != nil {
		e.log.WithField("file", path).Error(err)
	}
}

// controlViolation injects a synthetic control-class violation with the
// given bindings.
func (e *Engine) controlViolation(args map[string]string) {
	client := args["client"]
	if client == "" {
		client = "-"
	}
	vars := action.Merge(e.conf.Vars, args)
	vars["client"] = client
	e.violate(client, vars, e.conf.S.ControlMessage)
}

// userAction resolves a control name against the action table, trying the
// exact spelling first, then lowercase.
func (e *Engine) userAction(name string) (*action.Action, bool) {
	if act, ok := e.rules.Actions[name]; ok {
		return act, true
	}
	act, ok := e.rules.Actions[strings.ToLower(name)]
	return act, ok
}
