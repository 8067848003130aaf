// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build !debug

package mempool

import "unsafe"

// writeCookie and checkCookies are no-ops outside debug builds (spec §4.F
// "Non-debug builds remove the checks").
func writeCookie(p *Pool, objBytes []byte) {}

func checkCookies(p *Pool, objs []unsafe.Pointer, alloc bool) {}
