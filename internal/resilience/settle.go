// Copyright 2025 CertHub API Project
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

package resilience

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Task is one independent unit of a fan-out.
type Task[T any] func(ctx context.Context) (T, error)

// Outcome is the settled result of one Task.
type Outcome[T any] struct {
	Value T
	Err   error
}

// OK reports whether the task succeeded
func (o Outcome[T]) OK() bool { return o.Err == nil }

// SettleAll runs every task concurrently and waits for all of them.
// A failing task never cancels its siblings; outcomes keep task order.
// A panicking task is reported as that task's error.
func SettleAll[T any](ctx context.Context, tasks ...Task[T]) []Outcome[T] {
	outcomes := make([]Outcome[T], len(tasks))

	// plain Group, not WithContext: siblings must not be cancelled
	var g errgroup.Group
	for i, task := range tasks {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					outcomes[i].Err = fmt.Errorf("task %d panicked: %v", i, r)
				}
			}()
			value, err := task(ctx)
			outcomes[i] = Outcome[T]{Value: value, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}
