package engine

import (
	"strconv"
	"time"

	"github.com/activecm/logvigil/config"
	"github.com/activecm/logvigil/parser"
	"github.com/activecm/logvigil/pkg/action"
	"github.com/activecm/logvigil/pkg/hitcount"
	"github.com/activecm/logvigil/pkg/violation"
	"github.com/activecm/logvigil/pkg/whitelist"

	log "github.com/sirupsen/logrus"
)

type (
	//Engine owns every piece of mutable correlation state: the compiled
	//ruleset, hit counters, whitelist cache, and the violation queue. All
	//of it is manipulated from a single goroutine inside Run; signals only
	//post to channels the loop selects on, and control lines are handled
	//inline by the loop like any other input line.
	Engine struct {
		conf  *config.Config
		rules *config.Ruleset
		log   *log.Logger
		disp  *action.Dispatcher

		whitelists    *whitelist.Matcher
		global        *hitcount.Counter
		triggerCounts map[int]*hitcount.Counter // per-trigger counters by position
		queue         *violation.Queue

		prevDate map[string]string // last seen date per input file
		prevTZ   map[string]string // last seen timezone per input file
		curFile  string
		skipNext bool // consume one line after a ==> path <== marker

		sourceName string
		running    bool
		exitStatus int
		cleanups   []func()

		reloadCh chan struct{}
		stopCh   chan int

		// Now supplies the wall clock; replay and tests substitute their own.
		Now func() int64

		defines map[string]string // command line -D overrides, reapplied on reload

		stats Stats
	}

	//Stats counts the engine's lifetime work for replay summaries
	Stats struct {
		Records    int64 // records that reached the evaluation pipeline
		Violations int64 // first-observation violations fired
		Expiries   int64 // expiry actions fired
	}
)

// NewEngine builds an engine from an immutable Config and Ruleset.
func NewEngine(conf *config.Config, rules *config.Ruleset, logger *log.Logger, defines map[string]string) *Engine {
	e := &Engine{
		conf:     conf,
		log:      logger,
		queue:    violation.NewQueue(),
		prevDate: make(map[string]string),
		prevTZ:   make(map[string]string),
		reloadCh: make(chan struct{}, 1),
		stopCh:   make(chan int, 1),
		Now:      func() int64 { return time.Now().Unix() },
		defines:  defines,
	}
	e.install(conf, rules)
	return e
}

// install swaps in a configuration and its compiled rule tables, resetting
// every derived counter and cache.
func (e *Engine) install(conf *config.Config, rules *config.Ruleset) {
	e.conf = conf
	e.rules = rules
	e.whitelists = whitelist.NewMatcher(rules.Whitelists)
	e.global = hitcount.NewCounter(conf.S.Threshold, conf.S.Interval, conf.S.Window)
	e.triggerCounts = make(map[int]*hitcount.Counter)
	e.disp = action.NewDispatcher(e.log, conf.S.DryRun, conf.S.Debug)
	e.disp.OnExit = func(status int) {
		e.exitStatus = status
		e.running = false
	}
}

// Config exposes the active configuration.
func (e *Engine) Config() *config.Config { return e.conf }

// Queue exposes the violation queue; commands use it for dumps.
func (e *Engine) Queue() *violation.Queue { return e.queue }

// Stats reports the engine's lifetime counters.
func (e *Engine) Stats() Stats { return e.stats }

// AddCleanup registers a hook run during Quit, last registered first.
func (e *Engine) AddCleanup(hook func()) {
	e.cleanups = append(e.cleanups, hook)
}

// RequestReload asks the loop to rebuild the ruleset; safe from any
// goroutine, including signal watchers.
func (e *Engine) RequestReload() {
	select {
	case e.reloadCh <- struct{}{}:
	default:
	}
}

// RequestShutdown asks the loop to exit with the given status; safe from
// any goroutine.
func (e *Engine) RequestShutdown(status int) {
	select {
	case e.stopCh <- status:
	default:
	}
}

// Run drives the main loop over a line source until EOF or shutdown, then
// runs the quit path and returns the exit status.
func (e *Engine) Run(src parser.Source) int {
	e.sourceName = src.Name()
	e.running = true
	lines := src.Lines()

	for e.running {
		now := e.Now()
		e.Tick(now)
		wakeup := e.queue.NextWakeup(now)

		select {
		case <-e.reloadCh:
			e.reload()
		case status := <-e.stopCh:
			e.exitStatus = status
			e.running = false
		case line, ok := <-lines:
			if !ok {
				e.running = false
				break
			}
			e.HandleLine(line)
		case <-time.After(time.Duration(wakeup) * time.Second):
		}
	}

	src.Stop()
	e.Quit()
	return e.exitStatus
}

// Tick fires every expiry due at or before now.
func (e *Engine) Tick(now int64) {
	e.queue.Tick(now, e.fireExpire)
}

// HandleLine routes one input line: control line, file marker, or record.
func (e *Engine) HandleLine(line string) {
	if e.skipNext {
		e.skipNext = false
		return
	}
	if path, ok := parser.ParseFileMark(line); ok {
		e.curFile = path
		e.skipNext = true
		return
	}
	if ctl, ok := parser.ParseControl(line); ok {
		if e.controlEnabled() {
			e.handleControl(ctl)
		}
		return
	}

	rec, ok := parser.ParseRecord(e.curFile, line)
	if !ok {
		// log streams are untrusted and noisy; junk is dropped silently
		return
	}
	e.handleRecord(rec)
}

// handleRecord runs the evaluation pipeline:
// skip -> whitelist -> trigger -> threshold.
func (e *Engine) handleRecord(rec *parser.Record) {
	if e.rules.Skips != nil && e.rules.Skips.MatchString(rec.URL) {
		return
	}
	e.stats.Records++

	e.observeRollover(rec)

	wl := e.whitelists.Lookup(rec.Client)
	if wl.Silent {
		return
	}
	fields := rec.Fields()
	if wl.Hit {
		vars := action.Merge(e.conf.Vars, wl.Vars, fields)
		vars["class"] = wl.Class()
		e.log.Info(action.Expand(e.conf.S.WhitelistMessage, vars))
		return
	}

	for i, trig := range e.rules.Triggers {
		if !trig.Matches(fields) {
			continue
		}
		if trig.Threshold > 0 {
			counter := e.triggerCounter(i, trig.Threshold)
			count, crossed := counter.Add(rec.Sec, e.hitKey(fields))
			if crossed {
				e.thresholdViolation(rec, fields, trig.Vars, count)
			}
		} else {
			e.triggerViolation(rec, fields, trig.Vars, trig.Label())
		}
		if !e.conf.S.Multitrigger {
			break
		}
	}

	count, crossed := e.global.Add(rec.Sec, e.hitKey(fields))
	if crossed {
		e.thresholdViolation(rec, fields, nil, count)
	}
}

// observeRollover flushes the hit counters and whitelist cache when the
// date or timezone changes within one input file.
func (e *Engine) observeRollover(rec *parser.Record) {
	prevDate, seen := e.prevDate[rec.File]
	prevTZ := e.prevTZ[rec.File]
	if seen && (prevDate != rec.Date || prevTZ != rec.TZ) {
		e.log.WithFields(log.Fields{
			"file": rec.File,
			"date": rec.Date,
			"tz":   rec.TZ,
		}).Debug("date rollover, clearing counters")
		e.clearCounters()
	}
	e.prevDate[rec.File] = rec.Date
	e.prevTZ[rec.File] = rec.TZ
}

func (e *Engine) clearCounters() {
	e.global.Flush()
	for _, counter := range e.triggerCounts {
		counter.Flush()
	}
	e.whitelists.ClearCache()
}

func (e *Engine) triggerCounter(index int, threshold int) *hitcount.Counter {
	counter, ok := e.triggerCounts[index]
	if !ok {
		counter = hitcount.NewCounter(threshold, e.conf.S.Interval, e.conf.S.Window)
		e.triggerCounts[index] = counter
	}
	return counter
}

func (e *Engine) hitKey(fields map[string]string) string {
	key := fields[e.conf.S.Hit]
	if key == "" {
		key = fields["client"]
	}
	return key
}

// thresholdViolation fires for a sliding-window crossing.
func (e *Engine) thresholdViolation(rec *parser.Record, fields map[string]string, ruleVars map[string]string, count int) {
	vars := action.Merge(e.conf.Vars, ruleVars, fields)
	vars["count"] = strconv.Itoa(count)
	vars["interval"] = e.conf.S.IntervalValue()
	e.violate(rec.Client, vars, e.conf.S.ThresholdMessage)
}

// triggerViolation fires for an immediate trigger hit.
func (e *Engine) triggerViolation(rec *parser.Record, fields map[string]string, ruleVars map[string]string, label string) {
	vars := action.Merge(e.conf.Vars, ruleVars, fields)
	vars["trigger"] = label
	e.violate(rec.Client, vars, e.conf.S.TriggerMessage)
}

// violate enqueues a violation for client and, on first observation of its
// vkey, fires the violation action and logs the rendered message. Refreshes
// only push the expiry forward.
func (e *Engine) violate(client string, vars map[string]string, messageTemplate string) {
	actionName := vars["action"]
	if actionName == "" {
		actionName = e.conf.S.Action
	}
	expireAction := vars["expire"]
	if expireAction == "" {
		expireAction = e.conf.S.Expire
	}
	duration := e.conf.S.Duration
	if raw, ok := vars["duration"]; ok && raw != "" {
		if parsed, rest := config.Dur2Sec(raw); rest == "" {
			duration = parsed
		}
	}

	vkey := violation.VKey(client, actionName)
	expireAt := e.Now() + int64(duration)
	entry, first := e.queue.Enqueue(vkey, expireAt, expireAction, vars)
	if !first {
		return
	}
	e.stats.Violations++

	e.log.Info(action.Expand(messageTemplate, vars))
	if act, ok := e.rules.Actions[actionName]; ok {
		e.disp.Dispatch(act, action.Merge(act.Vars, vars))
	} else {
		e.log.WithFields(log.Fields{
			"action": actionName,
			"vkey":   entry.VKey,
		}).Error("violation names an undefined action")
	}
}

// fireExpire dispatches the paired expiry action of a popped entry.
func (e *Engine) fireExpire(entry *violation.Entry) {
	e.stats.Expiries++
	if act, ok := e.rules.Actions[entry.ExpireAction]; ok {
		e.disp.Dispatch(act, action.Merge(act.Vars, entry.Args))
		return
	}
	if entry.ExpireAction == "null" || entry.ExpireAction == "" {
		return
	}
	e.log.WithFields(log.Fields{
		"action": entry.ExpireAction,
		"vkey":   entry.VKey,
	}).Error("expiry names an undefined action")
}

// reload rebuilds the entire configuration and ruleset from the original
// files and defines, swapping the new tables in only when the parse
// succeeds. A live daemon never runs a half-parsed ruleset.
func (e *Engine) reload() {
	conf, rules, err := config.LoadConfig(e.conf.Files, e.defines)
	if err != nil {
		e.log.WithField("files", e.conf.Files).Error("reload failed, keeping previous ruleset: ", err)
		return
	}
	e.install(conf, rules)
	e.clearCounters()
	e.log.WithField("files", conf.Files).Info("ruleset reloaded")
}

// Quit drains the queue when flushing is enabled, firing every expiry
// action, then runs the registered cleanup hooks in reverse order.
func (e *Engine) Quit() {
	if e.conf.S.Flush {
		e.queue.Flush(nil, e.fireExpire)
	}
	for i := len(e.cleanups) - 1; i >= 0; i-- {
		e.cleanups[i]()
	}
}

// controlEnabled gates in-band *CMD lines. Control lines are an exploit
// channel when the log source is attacker-influenced, so by default they are
// accepted only from stdin or when no source is running (replay and direct
// HandleLine calls); `set control on` opts tailed files in.
func (e *Engine) controlEnabled() bool {
	switch e.conf.S.Control {
	case "on", "yes", "true", "1":
		return true
	case "off", "no", "false", "0":
		return false
	}
	return e.sourceName == "stdin" || e.sourceName == ""
}
