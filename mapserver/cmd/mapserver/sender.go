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

package main

import (
	"context"

	"github.com/lispmap/lispmap/mapserver/smr"
	"github.com/lispmap/lispmap/pkg/log"
)

// logSender records SMRs in the log. The map server has no LISP control
// plane transport of its own, deployments plug one in through smr.Sender.
type logSender struct{}

func (logSender) SendSMR(ctx context.Context, req smr.Request) error {
	log.FromCtx(ctx).Debug("SMR", "eid", req.Eid, "subscriber", req.Subscriber,
		"attempt", req.Attempt)
	return nil
}
