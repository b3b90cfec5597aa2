// Command corecalib drives the calibration core's pipeline stages
// against a spec §6 workspace directory, one subcommand per stage plus
// a `pipeline` command that runs all of them back-to-back.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/mocap-toolkit/corecalib/logging"
)

func main() {
	app := &cli.App{
		Name:  "corecalib",
		Usage: "multi-camera calibration and triangulation core",
		Commands: []*cli.Command{
			calibrateIntrinsicsCommand(),
			bootstrapStereoCommand(),
			initArrayCommand(),
			triangulateCommand(),
			adjustCommand(),
			pipelineCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loggerFor(name string) logging.Logger {
	return logging.NewLogger("corecalib." + name)
}

func progressPrinter(log logging.Logger) func(float64, string) {
	return func(percent float64, message string) {
		log.Infof("%.0f%% %s", percent, message)
	}
}
