// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package topology_test

import (
	"testing"

	"code.hybscloud.com/eal/topology"
)

func TestProbeBasic(t *testing.T) {
	tbl, err := topology.Probe(topology.Options{})
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if tbl.Count <= 0 {
		t.Fatalf("Count: got %d, want > 0", tbl.Count)
	}
	if tbl.EnabledCount <= 0 {
		t.Fatalf("EnabledCount: got %d, want > 0", tbl.EnabledCount)
	}

	enabled := tbl.Enabled()
	if len(enabled) != tbl.EnabledCount {
		t.Fatalf("Enabled(): got %d lcores, want %d", len(enabled), tbl.EnabledCount)
	}
	for i, lc := range enabled {
		if lc.RelIndex != i {
			t.Fatalf("Enabled()[%d].RelIndex: got %d, want %d", i, lc.RelIndex, i)
		}
		if lc.Role != topology.RoleRuntime {
			t.Fatalf("Enabled()[%d].Role: got %v, want RUNTIME", i, lc.Role)
		}
	}
}

func TestProbeByID(t *testing.T) {
	tbl, err := topology.Probe(topology.Options{})
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if _, ok := tbl.ByID(-1); ok {
		t.Fatalf("ByID(-1): got ok=true, want false")
	}
	if _, ok := tbl.ByID(topology.MaxLCore); ok {
		t.Fatalf("ByID(MaxLCore): got ok=true, want false")
	}
	lc, ok := tbl.ByID(0)
	if !ok {
		t.Fatalf("ByID(0): got ok=false, want true")
	}
	if lc.ID != 0 {
		t.Fatalf("ByID(0).ID: got %d, want 0", lc.ID)
	}
}

func TestProbeRelaxNUMALimit(t *testing.T) {
	// MaxNUMANodes=1 is tight enough that a multi-socket host would trip
	// the limit; RelaxNUMALimit must force a clamp to 0 instead of failing.
	_, err := topology.Probe(topology.Options{MaxNUMANodes: 1, RelaxNUMALimit: true})
	if err != nil {
		t.Fatalf("Probe with relaxed limit: %v", err)
	}
}
