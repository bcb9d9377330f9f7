package commands

import (
	"bufio"
	"fmt"
	"os"

	"github.com/activecm/logvigil/parser"
	"github.com/activecm/logvigil/pkg/engine"
	"github.com/activecm/logvigil/resources"
	"github.com/activecm/logvigil/util"

	"github.com/pbnjay/memory"
	"github.com/urfave/cli"
	"github.com/vbauerster/mpb"
	"github.com/vbauerster/mpb/decor"
)

func init() {
	replayCommand := cli.Command{
		Name:      "replay",
		Usage:     "run a saved access log through the ruleset in simulated time",
		ArgsUsage: "LOGFILE",
		Flags: []cli.Flag{
			configFlag,
			defineFlag,
			definesFileFlag,
			dryRunFlag,
			verboseFlag,
			debugFlag,
			intervalFlag,
			windowFlag,
			thresholdFlag,
			noFlushFlag,
		},
		Action: doReplay,
	}

	bootstrapCommands(replayCommand)
}

// doReplay feeds a historical log file to a fresh engine. The clock is
// driven by the record timestamps instead of the wall clock, so expiries
// fire exactly where they would have during live operation.
func doReplay(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.NewExitError("replay needs exactly one log file", 1)
	}
	logPath := c.Args().First()
	if !util.Exists(logPath) {
		return cli.NewExitError(fmt.Sprintf("no such log file %s", logPath), 1)
	}

	defines, err := collectDefines(c)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	// a replay has no live firewall to clean up behind
	if _, given := defines["dryrun"]; !given {
		defines["dryrun"] = "yes"
	}
	res := resources.InitResources(configFiles(c), defines)

	file, err := os.Open(logPath)
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}

	progress := mpb.New(mpb.WithWidth(20))
	bar := progress.AddBar(info.Size(),
		mpb.PrependDecorators(
			decor.Name(logPath+"\t", decor.WC{W: len(logPath) + 1, C: decor.DidentRight}),
		),
		mpb.AppendDecorators(decor.Percentage()),
	)

	// the record clock is seconds of day; carry it across midnights so the
	// queue only moves forward
	var simNow int64
	var day int64

	eng := engine.NewEngine(res.Config, res.Rules, res.Log, defines)
	eng.Now = func() int64 { return simNow }

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), scanBufferSize())
	for scanner.Scan() {
		line := scanner.Text()
		if rec, ok := parser.ParseRecord(logPath, line); ok {
			recTime := day*86400 + int64(rec.Sec)
			if recTime < simNow-43200 {
				// the log rolled past midnight
				day++
				recTime += 86400
			}
			if recTime > simNow {
				simNow = recTime
			}
			eng.Tick(simNow)
		}
		eng.HandleLine(line)
		bar.IncrBy(len(line) + 1)
	}
	progress.Wait()
	if err := scanner.Err(); err != nil {
		return cli.NewExitError(err.Error(), 2)
	}

	if !c.Bool("no-flush") {
		simNow += int64(res.Config.S.Duration)
		eng.Tick(simNow)
	}

	stats := eng.Stats()
	fmt.Printf("%d records, %d violations, %d expiries, %d still queued\n",
		stats.Records, stats.Violations, stats.Expiries, eng.Queue().Len())
	return nil
}

// scanBufferSize caps the line buffer at a small share of system memory so
// replaying a pathological log cannot thrash the host.
func scanBufferSize() int {
	limit := memory.TotalMemory() / 256
	if limit > 16*1024*1024 {
		return 16 * 1024 * 1024
	}
	if limit < 64*1024 {
		return 64 * 1024
	}
	return int(limit)
}
