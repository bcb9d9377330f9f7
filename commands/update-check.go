package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/activecm/logvigil/config"

	"github.com/blang/semver"
	"github.com/google/go-github/github"
	"github.com/urfave/cli"
)

// informFmtStr informs the user of a new version.
var informFmtStr = "\nThere's a new %s version of logvigil %s available at:\nhttps://github.com/activecm/logvigil/releases\n"

var versions = []string{"Major", "Minor", "Patch"}

func init() {
	updateCommand := cli.Command{
		Name:   "update-check",
		Usage:  "check GitHub for a newer release",
		Action: doUpdateCheck,
	}

	bootstrapCommands(updateCommand)
}

func doUpdateCheck(c *cli.Context) error {
	configVersion, err := semver.ParseTolerant(config.Version)
	if err != nil {
		return cli.NewExitError("this build carries no comparable version", 1)
	}

	newVersion, err := getRemoteVersion()
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	if newVersion.GT(configVersion) {
		fmt.Print(informUser(configVersion, newVersion))
	} else {
		fmt.Printf("logvigil %s is up to date\n", config.Version)
	}
	return nil
}

// getRemoteVersion asks GitHub for the tag of the latest release.
func getRemoteVersion() (semver.Version, error) {
	client := github.NewClient(nil)
	release, _, err := client.Repositories.GetLatestRelease(context.Background(), "activecm", "logvigil")
	if err != nil {
		return semver.Version{}, err
	}
	return semver.ParseTolerant(release.GetTagName())
}

// informUser returns a string indicating the new version available.
func informUser(local semver.Version, remote semver.Version) string {
	delta := "Patch"
	switch {
	case remote.Major > local.Major:
		delta = versions[0]
	case remote.Minor > local.Minor:
		delta = versions[1]
	}
	return fmt.Sprintf(informFmtStr, strings.ToLower(delta), remote)
}
