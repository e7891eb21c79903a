// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package testutil

import (
	"os"
	"runtime"
	"testing"
)

// RequireNetlink skips the test unless the NLCORE_SOCK_TEST environment
// variable is set on a Linux host. Tests that open real kernel sockets
// only run in environments prepared for them; everything else exercises
// the simulated socket.
func RequireNetlink(t *testing.T) {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("Skipping test: requires linux")
	}
	if os.Getenv("NLCORE_SOCK_TEST") == "" {
		t.Skip("Skipping test: requires NLCORE_SOCK_TEST environment")
	}
}

// RequireRoot additionally skips when not running as uid 0; some
// protocol families refuse unprivileged binds.
func RequireRoot(t *testing.T) {
	t.Helper()
	RequireNetlink(t)
	if os.Geteuid() != 0 {
		t.Skip("Skipping test: requires root")
	}
}
