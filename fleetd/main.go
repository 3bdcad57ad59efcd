// Copyright 2026 The Govisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command fleetd starts a fleet of processes from a plan manifest,
// supervises them, and serves a health endpoint while they all run.
//
// It exits 0 when told to stop by SIGINT or SIGTERM, and 1 when anything
// goes wrong, whether during startup or afterwards.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gdamore/fleetvisor"
	"github.com/gdamore/fleetvisor/rest"
)

var rootCmd = &cobra.Command{
	Use:   "fleetd",
	Short: "Start and supervise a fleet of processes",
	Long: `fleetd starts a primary process and its workers from a plan manifest,
waits for them to become ready, and then serves a health endpoint for as
long as every one of them stays up.  If any process exits, or fleetd is
interrupted, the whole fleet is shut down.

Example:
  fleetd --plan fleet.yaml
  FLEETD_LISTEN=0.0.0.0:8080 fleetd --plan fleet.yaml --follow
`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runFleet,
}

var exitCode int

func init() {
	cobra.OnInitialize(initConfig)

	f := rootCmd.Flags()
	f.String("config", "", "config file (default: none)")
	f.StringP("plan", "p", "fleet.yaml", "plan manifest")
	f.StringP("listen", "l", "", "health endpoint address (overrides the plan)")
	f.Bool("parallel", false, "start workers in parallel (overrides the plan)")
	f.Duration("settle", fleetvisor.DefaultSettle, "time to let the fleet settle after launch")
	f.Duration("watch-period", fleetvisor.DefaultWatchPeriod, "how often to check for exited processes")
	f.Duration("stop-time", fleetvisor.DefaultStopTime, "grace period before killing a process")
	f.Int("max-attempts", fleetvisor.DefaultMaxAttempts, "readiness probe attempts")
	f.Duration("interval", fleetvisor.DefaultInterval, "wait between readiness probes")
	f.Duration("attempt-timeout", fleetvisor.DefaultTimeout, "timeout of each readiness probe")
	f.String("auth", "", "protect the status API, as user:bcrypt-hash")
	f.Bool("follow", false, "copy process output to stderr as it happens")
	f.String("log-level", "info", "log level (debug, info, warn, error)")
	f.String("log-format", "text", "log format (text, json)")

	for _, n := range []string{
		"config", "plan", "listen", "parallel", "settle",
		"watch-period", "stop-time", "max-attempts", "interval",
		"attempt-timeout", "auth", "follow", "log-level", "log-format",
	} {
		viper.BindPFlag(n, f.Lookup(n))
	}
}

func initConfig() {
	viper.SetEnvPrefix("FLEETD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if cfg := viper.GetString("config"); cfg != "" {
		viper.SetConfigFile(cfg)
		if e := viper.ReadInConfig(); e != nil {
			fmt.Fprintf(os.Stderr, "Failed to read config %s: %v\n", cfg, e)
			os.Exit(1)
		}
	}
}

func setupLogging() (*logrus.Entry, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	lvl, e := logrus.ParseLevel(viper.GetString("log-level"))
	if e != nil {
		return nil, e
	}
	logger.SetLevel(lvl)
	switch viper.GetString("log-format") {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("unknown log format %q", viper.GetString("log-format"))
	}
	return logrus.NewEntry(logger), nil
}

func loadPlan() (fleetvisor.LaunchPlan, error) {
	plan, e := fleetvisor.LoadPlanFile(viper.GetString("plan"))
	if e != nil {
		return plan, e
	}
	if addr := viper.GetString("listen"); addr != "" {
		plan.ListenAddress = addr
	}
	if viper.GetBool("parallel") {
		plan.ParallelWorkerStart = true
	}
	return plan, plan.Validate()
}

func parseAuth(s string) (string, []byte, error) {
	user, hash, ok := strings.Cut(s, ":")
	if !ok || user == "" || hash == "" {
		return "", nil, fmt.Errorf("auth must be user:bcrypt-hash")
	}
	return user, []byte(hash), nil
}

func runFleet(cmd *cobra.Command, args []string) error {
	log, e := setupLogging()
	if e != nil {
		return e
	}
	plan, e := loadPlan()
	if e != nil {
		return fmt.Errorf("failed to load plan: %w", e)
	}

	metrics := fleetvisor.NewMetrics("fleetd")
	stopTime := viper.GetDuration("stop-time")

	checker := fleetvisor.NewReadinessChecker()
	checker.MaxAttempts = viper.GetInt("max-attempts")
	checker.Interval = viper.GetDuration("interval")
	checker.Timeout = viper.GetDuration("attempt-timeout")
	checker.StopTime = stopTime
	checker.Logger = log
	checker.Metrics = metrics

	opts := []fleetvisor.Option{
		fleetvisor.WithLogger(log),
		fleetvisor.WithMetrics(metrics),
		fleetvisor.WithChecker(checker),
		fleetvisor.WithSettle(viper.GetDuration("settle")),
		fleetvisor.WithWatchPeriod(viper.GetDuration("watch-period")),
		fleetvisor.WithStopTime(stopTime),
	}
	if viper.GetBool("follow") {
		// Output is already shown live, so don't dump it again.
		opts = append(opts,
			fleetvisor.WithSpawner(&fleetvisor.ExecSpawner{Tee: os.Stderr}),
			fleetvisor.WithOutput(nil))
	}

	sup, e := fleetvisor.New(plan, opts...)
	if e != nil {
		return e
	}

	h := rest.NewHandler(sup)
	if a := viper.GetString("auth"); a != "" {
		user, hash, e := parseAuth(a)
		if e != nil {
			return e
		}
		h.SetAuth(user, hash)
	}
	srv := rest.NewServer(plan.ListenAddress, h)
	srv.Logger = log

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	o := sup.Run(ctx, srv.Serve)
	exitCode = o.ExitCode()
	if o.Cause == fleetvisor.CauseInterrupt {
		log.Info("Interrupted, fleet stopped")
	} else {
		log.WithError(o.Err).Error("Fleet failed")
	}
	return nil
}

func main() {
	if e := rootCmd.Execute(); e != nil {
		fmt.Fprintf(os.Stderr, "fleetd: %v\n", e)
		os.Exit(1)
	}
	os.Exit(exitCode)
}
