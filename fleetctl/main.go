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

// Command fleetctl talks to a running fleetd.  It uses subcommands.
//
// The flags are
//
//	-a <address>	- fleetd health address, default is
//			  http://127.0.0.1:8080
//	-u <user:pass>	- user name & password for basic auth
//
// Subcommands are
//
//	status              - show status of every role
//	info <role>         - show more detailed role info
//	log <role>          - obtain the captured output of the role
//	health              - check the health endpoint, exit 1 if unhealthy
//	top                 - live view of the fleet
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gdamore/fleetvisor/fleetctl/util"
	"github.com/gdamore/fleetvisor/rest"
)

var (
	addr    = "http://127.0.0.1:8080"
	auth    = ""
	timeout = 5 * time.Second
	follow  = false
)

var rootCmd = &cobra.Command{
	Use:           "fleetctl",
	Short:         "Inspect a fleet run by fleetd",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func newClient() (*rest.Client, error) {
	client := rest.NewClient(nil, addr)
	if auth != "" {
		user, pass, ok := strings.Cut(auth, ":")
		if !ok {
			return nil, fmt.Errorf("bad user:pass supplied")
		}
		client.SetAuth(user, pass)
	}
	return client, nil
}

func withTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

func showStatus(r *rest.RoleInfo) {
	d := util.Uptime(r, time.Now())
	fmt.Printf("%-16s %10s %10s %6d  %s\n", r.Name,
		util.Status(r), util.FormatDuration(d), r.Pid,
		strings.Join(r.Command, " "))
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show status of every role",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, e := newClient()
		if e != nil {
			return e
		}
		ctx, cancel := withTimeout()
		defer cancel()
		info, e := client.Status(ctx)
		if e != nil {
			return e
		}
		fmt.Printf("Fleet %s: %s\n", info.RunID, info.Phase)
		util.SortRoles(info.Roles)
		for i := range info.Roles {
			showStatus(&info.Roles[i])
		}
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info <role>",
	Short: "Show detailed role info",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, e := newClient()
		if e != nil {
			return e
		}
		ctx, cancel := withTimeout()
		defer cancel()
		r, e := client.Role(ctx, args[0])
		if e != nil {
			return e
		}
		mode := "polled"
		if r.Daemon {
			mode = "daemon"
		}
		fmt.Printf("Name:      %s\n", r.Name)
		fmt.Printf("Command:   %s\n", strings.Join(r.Command, " "))
		fmt.Printf("Mode:      %s\n", mode)
		fmt.Printf("Readiness: %s\n", r.ReadinessURL)
		fmt.Printf("Status:    %s\n", util.Status(r))
		fmt.Printf("Pid:       %d\n", r.Pid)
		fmt.Printf("Uptime:    %s\n", util.FormatDuration(util.Uptime(r, time.Now())))
		if r.Exited {
			fmt.Printf("Exit code: %d\n", r.ExitCode)
		}
		return nil
	},
}

var logCmd = &cobra.Command{
	Use:   "log <role>",
	Short: "Show captured output of a role",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, e := newClient()
		if e != nil {
			return e
		}
		var since int64
		for {
			wait := time.Duration(0)
			if follow {
				wait = time.Minute
			}
			ctx, cancel := context.WithTimeout(context.Background(), wait+timeout)
			li, e := client.Log(ctx, args[0], since, wait)
			cancel()
			if e != nil {
				return e
			}
			for _, r := range li.Records {
				fmt.Println(r.Text)
			}
			since = li.Last
			if !follow {
				return nil
			}
		}
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the health endpoint",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, e := newClient()
		if e != nil {
			return e
		}
		ctx, cancel := withTimeout()
		defer cancel()
		ok, e := client.Healthy(ctx)
		if e != nil {
			return e
		}
		if !ok {
			fmt.Println("unhealthy")
			os.Exit(1)
		}
		fmt.Println("OK")
		return nil
	},
}

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Live view of the fleet",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, e := newClient()
		if e != nil {
			return e
		}
		return doTop(client, addr)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&addr, "addr", "a", addr, "fleetd address")
	pf.StringVarP(&auth, "user", "u", auth, "user:pass authentication")
	pf.DurationVar(&timeout, "timeout", timeout, "request timeout")
	logCmd.Flags().BoolVarP(&follow, "follow", "f", follow, "keep printing new output")

	rootCmd.AddCommand(statusCmd, infoCmd, logCmd, healthCmd, topCmd)
}

func main() {
	if e := rootCmd.Execute(); e != nil {
		fmt.Fprintf(os.Stderr, "Failed: %v\n", e)
		os.Exit(1)
	}
}
