// Copyright 2025 The lispmap Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package notify

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/lispmap/lispmap/pkg/private/serrors"
)

// Tee publishes every event to all sinks concurrently. The errors of the
// sinks are returned as one serrors.List.
type Tee []Sink

// Publish implements Sink.
func (t Tee) Publish(ctx context.Context, ev Event) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs serrors.List
	)
	for _, s := range t {
		g.Go(func() error {
			if err := s.Publish(ctx, ev); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs.ToError()
}
