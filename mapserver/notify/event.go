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

// Package notify carries mapping change events from the mapping system to the
// parties that act on them, such as the SMR notifier or the management API.
//
// The mapping system hands events to a Notifier. The Dispatcher decouples it
// from the sinks with a bounded queue whose overflow behavior is configured
// explicitly.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lispmap/lispmap/pkg/eid"
	"github.com/lispmap/lispmap/pkg/mapping"
)

// Kind is the kind of a mapping change.
type Kind uint8

const (
	Created Kind = iota
	Updated
	Removed
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Event describes one change of a mapping.
type Event struct {
	ID     uuid.UUID
	Kind   Kind
	Origin mapping.Origin
	Eid    eid.Eid
	// Data is the mapping after the change. On removal it is the removed
	// mapping, or nil if there was none.
	Data *mapping.Data
	// Subscribers are the live subscribers of Eid.
	Subscribers []mapping.Subscriber
	// DstSubscribers are the live subscribers of the destination of a
	// source/dest Eid.
	DstSubscribers []mapping.Subscriber
	Time           time.Time
}

// NewEvent returns an event with a fresh id, stamped with now.
func NewEvent(kind Kind, origin mapping.Origin, key eid.Eid, data *mapping.Data,
	now time.Time) Event {

	return Event{
		ID:     uuid.New(),
		Kind:   kind,
		Origin: origin,
		Eid:    key,
		Data:   data,
		Time:   now,
	}
}

// AllSubscribers returns the subscribers followed by the destination
// subscribers.
func (e Event) AllSubscribers() []mapping.Subscriber {
	out := make([]mapping.Subscriber, 0, len(e.Subscribers)+len(e.DstSubscribers))
	out = append(out, e.Subscribers...)
	return append(out, e.DstSubscribers...)
}

// Notifier accepts change events from the mapping system. Notify must not
// block for long, it runs inside the mapping system's critical sections.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, ev Event)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, ev Event) { f(ctx, ev) }

// Discard is a Notifier that drops every event.
var Discard Notifier = NotifierFunc(func(context.Context, Event) {})

// Sink consumes events.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, ev Event) error

// Publish calls f.
func (f SinkFunc) Publish(ctx context.Context, ev Event) error { return f(ctx, ev) }
