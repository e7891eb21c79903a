// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !linux
// +build !linux

package transport

import (
	"grimm.is/nlcore/nlerr"
)

// Dial is unavailable off Linux; the simulated socket still works
// everywhere for tests and local proxies.
func Dial(family int, cfg *Config) (Socket, error) {
	return nil, nlerr.New(nlerr.KindUnsupported, "netlink sockets require linux")
}
