// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package log_test

import (
	"testing"

	"code.hybscloud.com/eal/log"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]log.Level{
		"debug":   log.LevelDebug,
		"info":    log.LevelInfo,
		"warn":    log.LevelWarn,
		"warning": log.LevelWarn,
		"error":   log.LevelError,
		"bogus":   log.LevelInfo,
	}
	for in, want := range cases {
		if got := log.ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q): got %v, want %v", in, got, want)
		}
	}
}

func TestNopLoggerDoesNotPanic(t *testing.T) {
	l := log.Nop()
	l.Debugw("hello", "k", "v")
	l.Infow("hello", "k", "v")
	l.Warnw("hello", "k", "v")
	l.Errorw("hello", "k", "v")
	if err := l.Sync(); err != nil {
		// Syncing a Nop core to stderr can fail harmlessly on some
		// platforms (e.g. ENOTTY); just exercise the call here.
		t.Logf("Sync: %v", err)
	}
}
