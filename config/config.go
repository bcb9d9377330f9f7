package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/activecm/logvigil/pkg/action"
	"github.com/activecm/logvigil/pkg/trigger"
	"github.com/activecm/logvigil/pkg/whitelist"

	"github.com/creasty/defaults"
)

//Version is filled at compile time with the git version of logvigil
var Version = "undefined"

//ExactVersion is filled at compile time with the exact git version of logvigil
var ExactVersion = "undefined"

type (
	//Config holds the configuration for the running system
	Config struct {
		S     Settings
		Vars  map[string]string // every set key, lists space-joined, for templating
		Files []string          // rule files in load order
	}

	//Settings holds the coerced values of the documented set keys
	Settings struct {
		Action       string `default:"block"`   // violation action name
		Expire       string `default:"unblock"` // paired expiry action name
		Duration     int    `default:"3600"`    // violation lifetime in seconds
		Threshold    int    `default:"10"`      // in-window hits before a violation
		Interval     int    `default:"0"`       // count window seconds; 0 means threshold
		Window       int    `default:"30"`      // out-of-order grace buffer seconds
		Hit          string `default:"client"`  // record field keying the global counter
		Multitrigger bool   // keep evaluating triggers after the first hit
		Control      string `default:"auto"` // accept *CMD lines: auto, on, off
		Flush        bool   `default:"true"` // drain expiries on exit
		Syslog       bool
		Verbose      bool
		Debug        bool
		Daemon       bool
		DryRun       bool
		Logfiles     []string
		TailCommand  string `default:"tail -n 0 -F"`
		LogfileDir   string
		Pidfile      string

		ThresholdMessage string `default:"%(date) %(time) VIOLATION %(client) %(port) -- %(count) requests in %(interval) seconds for %(url)"`
		TriggerMessage   string `default:"%(date) %(time) VIOLATION %(client) %(port) -- %(url) matches %(trigger)"`
		ControlMessage   string `default:"%(date) %(time) VIOLATION %(client) %(port)"`
		WhitelistMessage string `default:"%(date) %(time) WHITELIST %(client) %(class)"`
	}

	//Ruleset holds the compiled rule tables, rebuilt wholesale on reload
	Ruleset struct {
		Skips      *regexp.Regexp // nil when no skip blocks are defined
		Whitelists []*whitelist.List
		Triggers   []*trigger.Trigger
		Actions    map[string]*action.Action
	}
)

// LoadConfig parses every rule file plus the command-line defines into a
// fresh Config and Ruleset. It never mutates shared state, so reload can
// build a complete replacement and swap it in only on success.
func LoadConfig(files []string, defines map[string]string) (*Config, *Ruleset, error) {
	conf := &Config{
		Vars:  make(map[string]string),
		Files: files,
	}
	if err := defaults.Set(&conf.S); err != nil {
		return nil, nil, err
	}

	rules := &Ruleset{
		Actions: make(map[string]*action.Action),
	}
	parser := newParser(conf, rules)

	for _, file := range files {
		tokens, err := Tokenize(file)
		if err != nil {
			return nil, nil, err
		}
		if err := parser.parse(tokens); err != nil {
			return nil, nil, err
		}
	}

	for key, value := range defines {
		conf.assign(key, []string{value})
	}

	if err := conf.coerce(); err != nil {
		return nil, nil, err
	}
	if err := parser.finish(); err != nil {
		return nil, nil, err
	}
	return conf, rules, nil
}

// assign records one set key. Lists are space-joined into Vars so that
// %(key) expansion over list settings works uniformly.
func (c *Config) assign(key string, values []string) {
	c.Vars[key] = strings.Join(values, " ")
	switch key {
	case "logfile", "logfiles":
		c.S.Logfiles = append(c.S.Logfiles[:0], values...)
	}
}

// coerce re-derives the typed settings from the raw key map. Booleans
// accept yes/true/on/1; durations go through Dur2Sec.
func (c *Config) coerce() error {
	for key, value := range c.Vars {
		switch key {
		case "action":
			c.S.Action = value
		case "expire":
			c.S.Expire = value
		case "duration":
			c.S.Duration = coerceDuration(value)
		case "threshold":
			c.S.Threshold = coerceInt(value, c.S.Threshold)
		case "interval":
			c.S.Interval = coerceDuration(value)
		case "window":
			c.S.Window = coerceDuration(value)
		case "hit":
			c.S.Hit = value
		case "multitrigger":
			c.S.Multitrigger = ParseBool(value)
		case "control":
			c.S.Control = value
		case "flush":
			c.S.Flush = ParseBool(value)
		case "syslog":
			c.S.Syslog = ParseBool(value)
		case "verbose":
			c.S.Verbose = ParseBool(value)
		case "debug":
			c.S.Debug = ParseBool(value)
		case "daemon":
			c.S.Daemon = ParseBool(value)
		case "dryrun", "dry-run":
			c.S.DryRun = ParseBool(value)
		case "tail-command":
			c.S.TailCommand = value
		case "logfile-dir":
			c.S.LogfileDir = value
		case "pidfile":
			c.S.Pidfile = value
		case "threshold.message":
			c.S.ThresholdMessage = value
		case "trigger.message":
			c.S.TriggerMessage = value
		case "control.message":
			c.S.ControlMessage = value
		case "whitelist.message":
			c.S.WhitelistMessage = value
		}
	}
	return nil
}

// CountWindow is the length in seconds of the counting portion of the
// sliding window: the interval setting when given, the threshold otherwise.
func (s *Settings) CountWindow() int {
	if s.Interval > 0 {
		return s.Interval
	}
	return s.Threshold
}

// IntervalValue renders %(interval) for the threshold message.
func (s *Settings) IntervalValue() string {
	return strconv.Itoa(s.CountWindow())
}

func coerceInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func coerceDuration(value string) int {
	secs, rest := Dur2Sec(value)
	if rest != "" {
		fmt.Fprintf(os.Stderr, "Warning: ignoring trailing %q in duration %q\n", rest, value)
	}
	return secs
}
