// Copyright 2025 StreamNative, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cluster

import (
	"net/netip"

	"github.com/pkg/errors"
)

const (
	envIprotoListen = "PICODATA_IPROTO_LISTEN"
	envHTTPListen   = "PICODATA_HTTP_LISTEN"
	envPgListen     = "PICODATA_PG_LISTEN"
)

var (
	loopback    = netip.MustParseAddr("127.0.0.1")
	unspecified = netip.MustParseAddr("0.0.0.0")
)

// addresses are the listen addresses of one instance and of its peer.
type addresses struct {
	Bin  netip.AddrPort
	HTTP netip.AddrPort
	Pg   netip.AddrPort
	Peer netip.AddrPort
}

// listenAddress returns the address set through the environment variable, or
// fallback when the variable is not set. Only loopback and unspecified IPv4
// addresses are accepted.
func listenAddress(env map[string]string, variable string, fallback netip.AddrPort) (netip.AddrPort, error) {
	value, ok := env[variable]
	if !ok {
		return fallback, nil
	}

	addr, err := netip.ParseAddrPort(value)
	if err != nil || !addr.Addr().Is4() {
		return netip.AddrPort{}, errors.Errorf("could not parse %s to an ipv4 address: %q. hint: use 127.0.0.1", variable, value)
	}
	if !addr.Addr().IsLoopback() && !addr.Addr().IsUnspecified() {
		return netip.AddrPort{}, errors.Errorf(
			"ipv4 address %s of variable %s is not loopback (127.0.0.1) or unspecified (0.0.0.0), so it can't be used",
			addr, variable)
	}
	return addr, nil
}

// resolveAddresses computes the listen addresses of instance id. env is the
// environment rendered for the instance, firstEnv the one rendered for
// instance 1 which every instance uses as its peer.
func resolveAddresses(p *Params, id uint16, env, firstEnv map[string]string) (addresses, error) {
	var (
		a   addresses
		err error
	)
	if a.Peer, err = listenAddress(firstEnv, envIprotoListen, netip.AddrPortFrom(loopback, p.BaseBinPort+1)); err != nil {
		return a, err
	}
	if a.Bin, err = listenAddress(env, envIprotoListen, netip.AddrPortFrom(loopback, p.BaseBinPort+id)); err != nil {
		return a, err
	}
	if a.HTTP, err = listenAddress(env, envHTTPListen, netip.AddrPortFrom(unspecified, p.BaseHTTPPort+id)); err != nil {
		return a, err
	}
	if a.Pg, err = listenAddress(env, envPgListen, netip.AddrPortFrom(loopback, p.BasePgPort+id)); err != nil {
		return a, err
	}
	return a, nil
}
