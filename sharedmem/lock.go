// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sharedmem

import (
	"os"

	ealerrors "code.hybscloud.com/eal/errors"
	"golang.org/x/sys/unix"
)

// AcquireRole decides PRIMARY vs SECONDARY for path by attempting a
// non-blocking advisory write lock on the memseg-table byte range only
// (spec §4.B), exactly mirroring eal.c's rte_eal_config_create taking
// wr_lock over offsetof(struct rte_mem_config, memseg) rather than the
// whole file, so unrelated readers are never blocked by the lock probe.
//
// The returned *os.File must be kept open for the process lifetime: the
// kernel releases a flock/fcntl lock the instant every fd referring to it
// is closed, including on crash, which is how a dead PRIMARY's role is
// reclaimed by the next process to start.
//
// forceSecondary, when true, skips the lock attempt entirely (used when a
// caller explicitly requests --proc-type=secondary).
func AcquireRole(path string, forceSecondary bool) (Role, *os.File, error) {
	if forceSecondary {
		f, err := os.OpenFile(path, os.O_RDWR, 0)
		if err != nil {
			return RoleSecondary, nil, ealerrors.New("sharedmem.AcquireRole", ealerrors.KindFatal, err)
		}
		return RoleSecondary, f, nil
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return RoleSecondary, nil, ealerrors.New("sharedmem.AcquireRole", ealerrors.KindFatal, err)
	}

	lock := unix.Flock_t{
		Type:   unix.F_WRLCK,
		Whence: int16(os.SEEK_SET),
		Start:  int64(SegmentTableOffset),
		Len:    int64(segmentTableSize),
	}
	if err := unix.FcntlFlock(f.Fd(), unix.F_SETLK, &lock); err != nil {
		// EACCES/EAGAIN: another process already holds the write lock,
		// so we are SECONDARY. Any other error is a real failure.
		if err == unix.EACCES || err == unix.EAGAIN {
			return RoleSecondary, f, nil
		}
		f.Close()
		return RoleSecondary, nil, ealerrors.New("sharedmem.AcquireRole", ealerrors.KindFatal, err)
	}
	return RolePrimary, f, nil
}
