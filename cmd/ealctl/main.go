// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command ealctl demonstrates bootstrapping a CORE instance as either the
// first process to reach a shared-config file (PRIMARY) or a later one
// that joins it (SECONDARY), per the recognized option set in spec §6.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"code.hybscloud.com/eal"
	"code.hybscloud.com/eal/config"
	"github.com/spf13/cobra"
)

func main() {
	var o *config.Options

	root := &cobra.Command{
		Use:   "ealctl",
		Short: "Bootstrap a shared-memory runtime instance",
		Long: `ealctl probes the host's CPU topology, arbitrates PRIMARY/SECONDARY
against a shared control file, and reserves memory segments and sets up
the memzone directory for the winning PRIMARY.

Run it twice against the same --file-prefix/--huge-dir: the first
invocation becomes PRIMARY, the second attaches as SECONDARY.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Parse(o, cmd.Flags()); err != nil {
				return err
			}
			return run(o)
		},
	}
	o = config.Register(root.Flags())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(o *config.Options) error {
	inst, err := eal.InitWithOptions(o)
	if err != nil {
		return err
	}
	defer eal.Cleanup(inst)

	inst.Log.Infow("ealctl: ready", "role", inst.Role().String())
	defer inst.Log.Sync()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	inst.Log.Infow("ealctl: shutting down")
	return nil
}
