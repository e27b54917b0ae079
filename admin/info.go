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

package admin

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	instanceNameQuery  = "\\lua\npico.instance_info().name"
	instanceStateQuery = "\\lua\npico.instance_info().current_state.variant"
	leaderIDQuery      = "\\lua\nbox.func[\".proc_runtime_info\"]:call().raft.leader_id"
)

type InstanceState int

const (
	StateOnline InstanceState = iota
	StateOffline
	StateExpelled
)

func (s InstanceState) String() string {
	switch s {
	case StateOnline:
		return "Online"
	case StateOffline:
		return "Offline"
	case StateExpelled:
		return "Expelled"
	default:
		return "Unknown"
	}
}

func ParseInstanceState(s string) (InstanceState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "online":
		return StateOnline, nil
	case "offline":
		return StateOffline, nil
	case "expelled":
		return StateExpelled, nil
	default:
		return 0, errors.Errorf("unknown instance state variant: '%s'", s)
	}
}

// InstanceName returns the name the instance living in instanceDir negotiated with the cluster.
func (c *Client) InstanceName(ctx context.Context, instanceDir string) (string, error) {
	return c.QueryScalar(ctx, SocketPath(instanceDir), instanceNameQuery)
}

func (c *Client) InstanceState(ctx context.Context, instanceDir string) (InstanceState, error) {
	out, err := c.QueryScalar(ctx, SocketPath(instanceDir), instanceStateQuery)
	if err != nil {
		return 0, err
	}
	return ParseInstanceState(out)
}

// LeaderID returns the raft leader id seen by any running instance of the
// cluster. Zero means no leader has been elected yet.
func (c *Client) LeaderID(ctx context.Context, clusterDir string) (uint64, error) {
	socket, err := FindActiveSocket(clusterDir)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get cluster leader id")
	}

	out, err := c.QueryScalar(ctx, socket, leaderIDQuery)
	if err != nil {
		return 0, errors.Wrap(err, "unable to get cluster leader id")
	}

	id, err := strconv.ParseUint(strings.TrimSpace(out), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to parse leader id from %q", out)
	}
	return id, nil
}
