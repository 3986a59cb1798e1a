// Command ticksleep boots the timer sleep queue on the host and runs one
// alarm workload against it.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/fx"

	"ticksleep/alarm"
	"ticksleep/app"
	"ticksleep/config"
)

var (
	configFile = flag.String("config", "", "YAML file layered over the built-in defaults")
	workload   = flag.String("workload", "", "Workload to run: "+strings.Join(alarm.Names(), ", "))
	source     = flag.String("source", "", "Tick source: ticker or serial")
	device     = flag.String("device", "", "Serial device for the serial tick source")
	verbose    = flag.Bool("verbose", false, "Enable debug logging")
)

func opts() fx.Option {
	return fx.Options(
		app.Module,
	)
}

func main() {
	flag.Parse()

	// Flags feed the ${VAR} references in the default configuration.
	overrides := map[string]string{
		config.EnvFile:          *configFile,
		"TICKSLEEP_WORKLOAD":    *workload,
		"TICKSLEEP_TICK_SOURCE": *source,
		"TICKSLEEP_TICK_DEVICE": *device,
	}
	if *verbose {
		overrides["TICKSLEEP_LOG_LEVEL"] = "debug"
	}
	for k, v := range overrides {
		if v == "" {
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	fx.New(opts()).Run()
}
