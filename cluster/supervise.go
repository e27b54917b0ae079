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
	"context"
	"log/slog"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Supervise waits for every instance to exit. When ctx is done first, every
// instance is killed and reaped; exit errors caused by the kill are not reported.
func Supervise(ctx context.Context, instances []*Instance) error {
	all := make(chan struct{})
	go func() {
		defer close(all)
		for _, inst := range instances {
			<-inst.Exited()
		}
	}()

	select {
	case <-all:
	case <-ctx.Done():
		slog.Info("Shutting down picodata instances")
		for _, inst := range instances {
			if err := inst.Kill(); err != nil {
				slog.Error(
					"Failed to kill picodata instance",
					slog.String("instance", inst.Name()),
					slog.Any("error", err),
				)
			}
		}
		<-all
		return nil
	}

	var errs error
	for _, inst := range instances {
		if err := inst.Wait(); err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "picodata instance %s", inst.Name()))
		}
	}
	return errs
}
