package resources

import (
	"fmt"
	"os"

	"github.com/activecm/logvigil/config"

	log "github.com/sirupsen/logrus"
)

type (
	// Resources provides a data structure for passing system resources
	Resources struct {
		Config *config.Config
		Rules  *config.Ruleset
		Log    *log.Logger
	}
)

// InitResources loads the rule files, applies the command-line defines, and
// fires up the logging system, returning a *Resources object with all of
// the necessary configuration information. Configuration errors at load
// time are fatal.
func InitResources(files []string, defines map[string]string) *Resources {
	conf, rules, err := config.LoadConfig(files, defines)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %s\n", err.Error())
		os.Exit(2)
	}

	logger, err := initLogger(&conf.S)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %s\n", err.Error())
		os.Exit(2)
	}

	return &Resources{
		Config: conf,
		Rules:  rules,
		Log:    logger,
	}
}
