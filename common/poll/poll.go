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

package poll

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
)

// ErrTimeout is returned by Until when the deadline passes before the check succeeds.
var ErrTimeout = errors.New("deadline exceeded")

// NewBackOff returns a backoff that waits a fixed interval between attempts and
// stops once timeout has elapsed since its creation.
func NewBackOff(ctx context.Context, interval, timeout time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = interval
	b.MaxInterval = interval
	b.Multiplier = 1
	b.RandomizationFactor = 0
	b.MaxElapsedTime = timeout
	b.Reset()
	return backoff.WithContext(b, ctx)
}

// Until calls check every interval until it returns nil. A check error wrapped
// with Permanent aborts the loop immediately and is returned as-is. When the
// deadline passes, the returned error wraps ErrTimeout and carries the last
// check failure.
func Until(ctx context.Context, interval, timeout time.Duration, check func() error, notify backoff.Notify) error {
	permanent := false
	err := backoff.RetryNotify(func() error {
		err := check()
		var p *backoff.PermanentError
		if errors.As(err, &p) {
			permanent = true
		}
		return err
	}, NewBackOff(ctx, interval, timeout), notify)

	switch {
	case err == nil, permanent, ctx.Err() != nil:
		return err
	default:
		return errors.Wrapf(ErrTimeout, "gave up after %s, last error: %v", timeout, err)
	}
}

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
