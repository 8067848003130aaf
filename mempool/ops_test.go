// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mempool_test

import (
	"testing"

	ealerrors "code.hybscloud.com/eal/errors"
	"code.hybscloud.com/eal/mempool"
)

func TestRegisterOpsRejectsDuplicateName(t *testing.T) {
	factory := func(name string, capacity uint32, flags mempool.Flags) (mempool.Ops, error) {
		return nil, nil
	}
	if err := mempool.RegisterOps("ring_mp_mc", factory); !ealerrors.Is(err, ealerrors.KindAlreadyExists) {
		t.Fatalf("RegisterOps duplicate: got %v, want KindAlreadyExists", err)
	}
}

func TestRegisterOpsRejectsOnceTableFull(t *testing.T) {
	factory := func(name string, capacity uint32, flags mempool.Flags) (mempool.Ops, error) {
		return nil, nil
	}
	var lastErr error
	for i := 0; i < mempool.MaxOps+2; i++ {
		lastErr = mempool.RegisterOps(uniqueOpsName(i), factory)
	}
	if !ealerrors.Is(lastErr, ealerrors.KindNoMemory) {
		t.Fatalf("RegisterOps once full: got %v, want KindNoMemory", lastErr)
	}
}

func TestLookupOpsFindsBuiltins(t *testing.T) {
	if _, ok := mempool.LookupOps("ring_mp_mc"); !ok {
		t.Fatalf("LookupOps(ring_mp_mc): got false, want true")
	}
	if _, ok := mempool.LookupOps("ring_sp_sc"); !ok {
		t.Fatalf("LookupOps(ring_sp_sc): got false, want true")
	}
	if _, ok := mempool.LookupOps("does-not-exist"); ok {
		t.Fatalf("LookupOps(does-not-exist): got true, want false")
	}
}

func uniqueOpsName(i int) string {
	return "test_ops_" + string(rune('a'+i%26)) + string(rune('0'+i/26))
}
