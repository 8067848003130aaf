// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build linux

package percpu

import "golang.org/x/sys/unix"

// threadID returns the calling OS thread's gettid(2) value, used as a
// stand-in for thread-local storage since Go does not expose any.
func threadID() (int, error) {
	return unix.Gettid(), nil
}
