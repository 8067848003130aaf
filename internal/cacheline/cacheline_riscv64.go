// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build riscv64

package cacheline

// Size is the L1 cache line size for RISC-V 64-bit implementations.
// 64 bytes is the common value across SiFive and T-Head cores.
const Size = 64
