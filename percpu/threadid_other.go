// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build !linux

package percpu

import "fmt"

// threadID has no portable equivalent outside Linux; Register/Self/
// SetAffinity fail with KindUnsupported there.
func threadID() (int, error) {
	return 0, fmt.Errorf("percpu: thread id is not available on this platform")
}
