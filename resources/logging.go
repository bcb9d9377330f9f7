package resources

import (
	"log/syslog"
	"os"
	"path"
	"time"

	"github.com/activecm/logvigil/config"
	"github.com/activecm/logvigil/util"

	"github.com/rifflock/lfshook"
	log "github.com/sirupsen/logrus"
	logrusSyslog "github.com/sirupsen/logrus/hooks/syslog"
)

// initLogger creates the logger for logging to stderr, wiring the syslog
// and file hooks the settings ask for.
func initLogger(settings *config.Settings) (*log.Logger, error) {
	var logs = log.New()

	logs.Formatter = new(log.TextFormatter)
	logs.Out = os.Stderr

	switch {
	case settings.Debug:
		logs.Level = log.DebugLevel
	case settings.Verbose:
		logs.Level = log.InfoLevel
	default:
		logs.Level = log.WarnLevel
	}

	if settings.Syslog {
		hook, err := logrusSyslog.NewSyslogHook("", "", syslog.LOG_INFO|syslog.LOG_DAEMON, "logvigil")
		if err != nil {
			return nil, err
		}
		logs.Hooks.Add(hook)
	}

	if settings.LogfileDir != "" {
		if err := addFileLogger(logs, settings.LogfileDir); err != nil {
			return nil, err
		}
	}
	return logs, nil
}

func addFileLogger(logger *log.Logger, logPath string) error {
	time := time.Now().Format(util.TimeFormat)
	logPath = path.Join(logPath, time)
	_, err := os.Stat(logPath)
	if err != nil && os.IsNotExist(err) {
		err = os.MkdirAll(logPath, 0755)
		if err != nil {
			return err
		}
	}

	logger.Hooks.Add(lfshook.NewHook(lfshook.PathMap{
		log.DebugLevel: path.Join(logPath, "debug.log"),
		log.InfoLevel:  path.Join(logPath, "info.log"),
		log.WarnLevel:  path.Join(logPath, "warn.log"),
		log.ErrorLevel: path.Join(logPath, "error.log"),
		log.FatalLevel: path.Join(logPath, "fatal.log"),
		log.PanicLevel: path.Join(logPath, "panic.log"),
	}, nil))
	return nil
}
