// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package eal is the CORE's process-lifetime contract: probe topology,
// arbitrate PRIMARY/SECONDARY, create or attach the shared control region,
// reserve memory segments, and stand up the memzone directory new rings and
// mempools reserve from (spec §2 data flow "A → C → B → D → E/F").
package eal

import (
	"fmt"
	"os"

	"code.hybscloud.com/eal/config"
	ealerrors "code.hybscloud.com/eal/errors"
	"code.hybscloud.com/eal/log"
	"code.hybscloud.com/eal/memseg"
	"code.hybscloud.com/eal/memzone"
	"code.hybscloud.com/eal/percpu"
	"code.hybscloud.com/eal/sharedmem"
	"code.hybscloud.com/eal/topology"
	"github.com/spf13/pflag"
)

// Instance is a bootstrapped CORE runtime: one per process.
type Instance struct {
	Options  *config.Options
	Topology *topology.Table
	Region   *sharedmem.Region
	Segments *memseg.Table
	Zones    *memzone.Directory
	Log      log.Logger
}

// Role reports whether this instance is PRIMARY or SECONDARY.
func (inst *Instance) Role() sharedmem.Role { return inst.Region.Role() }

// SetAffinity updates the calling (already [percpu.Register]-ed) thread's
// CPU-set and mirrors the change into the shared control region's
// CPU-config sub-region, so every process attached to this instance sees
// the new affinity (spec §4.G).
func (inst *Instance) SetAffinity(cpuset map[int]bool) error {
	return percpu.SetAffinity(cpuset, inst.Topology, percpu.RegionMirror(inst.Region, inst.Topology))
}

// parseArgs registers and parses the CORE's recognized flags (spec §6)
// against argv, independent of os.Args so tests and [Init]/[Attach] share
// one path.
func parseArgs(argv []string) (*config.Options, error) {
	fs := pflag.NewFlagSet("eal", pflag.ContinueOnError)
	o := config.Register(fs)
	if err := fs.Parse(argv); err != nil {
		return nil, ealerrors.New("eal.parseArgs", ealerrors.KindInvalidArgument, err)
	}
	if err := config.Parse(o, fs); err != nil {
		return nil, err
	}
	return o, nil
}

// Init bootstraps a CORE instance from argv (excluding argv[0]), probing
// topology, arbitrating the process role (forced by --proc-type unless
// "auto"), creating or attaching the shared control region, and — only for
// the winning PRIMARY — reserving memory segments and standing up the
// memzone directory (spec §2, §4.B-D). A SECONDARY instance's Segments and
// Zones are nil: the CORE's memzone directory lives in per-process memory,
// not inside the mmap'd control region (see DESIGN.md, Open Question
// decision 4), so a SECONDARY cannot yet reconstruct one from the PRIMARY's
// published segment table. This is a deliberate scope cut for this module,
// not a spec requirement to route around — callers that are always
// PRIMARY in practice are unaffected.
func Init(argv []string) (*Instance, error) {
	o, err := parseArgs(argv)
	if err != nil {
		return nil, err
	}
	return InitWithOptions(o)
}

// InitWithOptions is [Init]'s bootstrap sequence over an already-parsed and
// validated [config.Options], for a collaborator CLI (cmd/ealctl) that
// wants its own flag-set/usage-text ownership via cobra while still
// reusing the CORE's recognized option set from [config.Register].
func InitWithOptions(o *config.Options) (*Instance, error) {
	logger := log.New(o.LogLevel)

	tbl, err := topology.Probe(topology.Options{})
	if err != nil {
		return nil, err
	}
	enabled := map[int]bool{}
	for _, lc := range tbl.Enabled() {
		enabled[lc.ID] = true
	}
	if err := o.ValidateMasterLCore(enabled); err != nil {
		return nil, err
	}

	master := o.MasterLCore
	if master < 0 {
		id, ok := percpu.DefaultMaster(tbl)
		if !ok {
			return nil, ealerrors.New("eal.Init", ealerrors.KindUnsupported,
				fmt.Errorf("no enabled lcores to select a master from"))
		}
		master = id
	}
	percpu.SetMaster(master)

	forceSecondary := o.ProcType == config.ProcTypeSecondary
	region, err := sharedmem.Open(controlFilePath(o), o.BaseVirtAddr, forceSecondary)
	if err != nil {
		return nil, err
	}

	inst := &Instance{Options: o, Topology: tbl, Region: region, Log: logger}
	if region.Role() != sharedmem.RolePrimary {
		logger.Infow("eal: attached as secondary", "file_prefix", o.FilePrefix)
		return inst, nil
	}

	backend := newSegmentBackend(o)
	inst.Segments = memseg.New(backend)
	if err := reserveConfiguredSegments(inst.Segments, o); err != nil {
		region.Close()
		return nil, err
	}
	if err := inst.Segments.Publish(region); err != nil {
		region.Close()
		return nil, err
	}
	if err := percpu.PublishLCoreTable(region, tbl); err != nil {
		region.Close()
		return nil, err
	}
	inst.Zones = memzone.New(inst.Segments, 0)

	logger.Infow("eal: initialized as primary",
		"file_prefix", o.FilePrefix, "master_lcore", master, "enabled_lcores", len(enabled))
	return inst, nil
}

// Attach is [Init] with --proc-type forced to "secondary", for a
// collaborator that knows at compile time it only ever joins an existing
// instance.
func Attach(argv []string) (*Instance, error) {
	return Init(append(append([]string{}, argv...), "--proc-type=secondary"))
}

// Cleanup unmaps the shared control region and releases the advisory lock
// (PRIMARY) or simply closes the mapping (SECONDARY). Safe to call once;
// the [Instance] is not usable afterward.
func Cleanup(inst *Instance) error {
	if inst == nil || inst.Region == nil {
		return nil
	}
	return inst.Region.Close()
}

func controlFilePath(o *config.Options) string {
	dir := o.HugeDir
	if dir == "" {
		dir = os.TempDir()
	}
	return sharedmem.Path(dir, o.FilePrefix)
}

func newSegmentBackend(o *config.Options) memseg.Backend {
	sizes := []memseg.PageSize{memseg.Page2M, memseg.Page1G}
	if o.NoHuge {
		sizes = []memseg.PageSize{memseg.Page4K}
	}
	return &memseg.AnonBackend{Sizes: sizes}
}

// reserveConfiguredSegments reserves one segment per requested socket from
// -m/--socket-mem (spec §6), in MB. -m with no --socket-mem reserves a
// single AnySocket-equivalent segment (socket 0) of that size; --no-huge
// without -m reserves [config.DefaultNoHugeMB] that way.
func reserveConfiguredSegments(t *memseg.Table, o *config.Options) error {
	const mb = 1 << 20
	flags := memseg.SizeHintOnly
	if o.NoHuge {
		flags |= memseg.NoHuge
	}

	if len(o.SocketMemMB) > 0 {
		for node, mbSize := range o.SocketMemMB {
			if mbSize <= 0 {
				continue
			}
			if _, err := memseg.Reserve(t, node, uint64(mbSize)*mb, memseg.Page2M, flags); err != nil {
				return err
			}
		}
		return nil
	}
	memoryMB := o.MemoryMB
	if memoryMB == 0 && o.NoHuge {
		memoryMB = config.DefaultNoHugeMB
	}
	if memoryMB > 0 {
		if _, err := memseg.Reserve(t, 0, uint64(memoryMB)*mb, memseg.Page2M, flags); err != nil {
			return err
		}
	}
	return nil
}
