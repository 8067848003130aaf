// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config defines the CORE's recognized command-line options (spec
// §6) and their validation rules, built on github.com/spf13/pflag — the
// same flag library the example pack's consumption CLI wires through
// cobra. The CORE only defines the option *set* and validates it; a
// collaborator (cmd/ealctl here) owns argument parsing and usage text.
package config

import (
	"fmt"
	"strconv"
	"strings"

	ealerrors "code.hybscloud.com/eal/errors"
	"code.hybscloud.com/eal/log"
	"github.com/spf13/pflag"
)

// ProcType mirrors --proc-type (spec §6).
type ProcType int

const (
	ProcTypeAuto ProcType = iota
	ProcTypePrimary
	ProcTypeSecondary
)

func (p ProcType) String() string {
	switch p {
	case ProcTypePrimary:
		return "primary"
	case ProcTypeSecondary:
		return "secondary"
	default:
		return "auto"
	}
}

func parseProcType(s string) (ProcType, error) {
	switch s {
	case "", "auto":
		return ProcTypeAuto, nil
	case "primary":
		return ProcTypePrimary, nil
	case "secondary":
		return ProcTypeSecondary, nil
	default:
		return 0, fmt.Errorf("invalid --proc-type %q (want primary|secondary|auto)", s)
	}
}

// DefaultNoHugeMB is --no-huge's implicit anonymous-memory size (spec
// §6: "default 64 MiB").
const DefaultNoHugeMB = 64

// maxSocketMemStrLen bounds the raw --socket-mem flag value, mirroring
// eal.c's SOCKET_MEM_STRLEN (RTE_MAX_NUMA_NODES * 10); RTE_MAX_NUMA_NODES
// is 8 in the original, matching topology's own default NUMA-node cap.
const maxSocketMemStrLen = 8 * 10

// Options holds every CLI option the CORE recognizes (spec §6 table).
type Options struct {
	MemoryMB     int      // -m
	Channels     int      // -n
	Ranks        int      // -r
	MasterLCore  int      // --master-lcore; -1 means unset
	ProcType     ProcType // --proc-type
	NoHuge       bool     // --no-huge
	HugeDir      string   // --huge-dir
	HugeUnlink   bool     // --huge-unlink
	FilePrefix   string   // --file-prefix
	SocketMemMB  []int    // --socket-mem
	BaseVirtAddr uintptr  // --base-virtaddr
	LogLevel     log.Level
	Syslog       bool
	Verbose      bool
}

// Register binds fs's flags to defaults, returning the Options the
// flag set will populate once fs.Parse is called. Separated from Parse so
// a collaborator CLI (cobra or plain pflag) can register these flags
// alongside its own.
func Register(fs *pflag.FlagSet) *Options {
	o := &Options{MasterLCore: -1, FilePrefix: "eal"}

	fs.IntVarP(&o.MemoryMB, "m", "m", 0, "total memory to allocate across sockets (MB)")
	fs.IntVarP(&o.Channels, "n", "n", 1, "force memory channel count (>= 1)")
	fs.IntVarP(&o.Ranks, "r", "r", 1, "force memory rank count (1..16)")
	fs.IntVar(&o.MasterLCore, "master-lcore", -1, "override the default master lcore")
	fs.String("proc-type", "auto", "role selection: primary|secondary|auto")
	fs.BoolVar(&o.NoHuge, "no-huge", false, "use ordinary anonymous memory instead of huge pages")
	fs.StringVar(&o.HugeDir, "huge-dir", "", "huge-page filesystem directory")
	fs.BoolVar(&o.HugeUnlink, "huge-unlink", false, "unlink huge-page files after mapping")
	fs.StringVar(&o.FilePrefix, "file-prefix", "eal", "shared-config file prefix")
	fs.String("socket-mem", "", "per-socket memory (MB), comma-separated; mutually exclusive with -m")
	fs.String("base-virtaddr", "", "hint address for the shared control region")
	fs.String("log-level", "info", "debug|info|warn|error")
	fs.BoolVar(&o.Syslog, "syslog", false, "accepted and recorded; log output does not go to syslog")
	fs.BoolVarP(&o.Verbose, "v", "v", false, "verbose logging (equivalent to --log-level=debug)")

	return o
}

// Parse finishes populating o from fs after fs.Parse has run against argv,
// resolving the string-typed flags Register could not bind directly, then
// validates mutual-exclusion and range rules (spec §6 "Unknown or
// ill-formed options ... exit code 1").
func Parse(o *Options, fs *pflag.FlagSet) error {
	if v, err := fs.GetString("proc-type"); err == nil {
		pt, perr := parseProcType(v)
		if perr != nil {
			return ealerrors.New("config.Parse", ealerrors.KindInvalidArgument, perr)
		}
		o.ProcType = pt
	}
	if v, err := fs.GetString("socket-mem"); err == nil && v != "" {
		if len(v) >= maxSocketMemStrLen {
			return ealerrors.New("config.Parse", ealerrors.KindInvalidArgument,
				fmt.Errorf("--socket-mem is too long (max %d chars)", maxSocketMemStrLen-1))
		}
		sm, serr := parseIntList(v)
		if serr != nil {
			return ealerrors.New("config.Parse", ealerrors.KindInvalidArgument, serr)
		}
		o.SocketMemMB = sm
	}
	if v, err := fs.GetString("base-virtaddr"); err == nil && v != "" {
		addr, perr := strconv.ParseUint(strings.TrimPrefix(v, "0x"), 16, 64)
		if perr != nil {
			return ealerrors.New("config.Parse", ealerrors.KindInvalidArgument,
				fmt.Errorf("invalid --base-virtaddr %q: %w", v, perr))
		}
		o.BaseVirtAddr = uintptr(addr)
	}
	if v, err := fs.GetString("log-level"); err == nil {
		o.LogLevel = log.ParseLevel(v)
	}
	if o.Verbose {
		o.LogLevel = log.LevelDebug
	}

	return o.Validate()
}

// Validate enforces the mutual-exclusion and range rules spec §6 attaches
// to these options. The --socket-mem length cap is checked in [Parse],
// not here.
func (o *Options) Validate() error {
	if o.MemoryMB > 0 && len(o.SocketMemMB) > 0 {
		return ealerrors.New("config.Validate", ealerrors.KindInvalidArgument,
			fmt.Errorf("-m and --socket-mem are mutually exclusive"))
	}
	if o.NoHuge && len(o.SocketMemMB) > 0 {
		return ealerrors.New("config.Validate", ealerrors.KindInvalidArgument,
			fmt.Errorf("--no-huge and --socket-mem are mutually exclusive"))
	}
	if o.NoHuge && o.HugeUnlink {
		return ealerrors.New("config.Validate", ealerrors.KindInvalidArgument,
			fmt.Errorf("--no-huge and --huge-unlink are mutually exclusive"))
	}
	if o.Channels < 1 {
		return ealerrors.New("config.Validate", ealerrors.KindInvalidArgument,
			fmt.Errorf("-n must be >= 1"))
	}
	if o.Ranks < 1 || o.Ranks > 16 {
		return ealerrors.New("config.Validate", ealerrors.KindInvalidArgument,
			fmt.Errorf("-r must be in [1,16]"))
	}
	return nil
}

// ValidateMasterLCore checks --master-lcore against the enabled set once
// topology is known (spec §6: "Master lcore not in the set of enabled
// runtime cores → 1"). This is deferred from [Parse]/[Validate] because
// topology probing runs after option parsing in the CORE's init sequence
// (spec §9 design note on the lcore-role lookup ordering).
func (o *Options) ValidateMasterLCore(enabledIDs map[int]bool) error {
	if o.MasterLCore < 0 {
		return nil
	}
	if !enabledIDs[o.MasterLCore] {
		return ealerrors.New("config.ValidateMasterLCore", ealerrors.KindInvalidArgument,
			fmt.Errorf("--master-lcore %d is not an enabled runtime core", o.MasterLCore))
	}
	return nil
}

func parseIntList(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid --socket-mem entry %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}
