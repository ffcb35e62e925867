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

package qnet

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/your-org/certhub-api/internal/domain"
	"github.com/your-org/certhub-api/internal/resilience"
)

var errNoItems = errors.New("no items")

// Aggregator gathers schedule and fee data for a qualification code
type Aggregator struct {
	client *Client
	logger *zap.Logger
}

// NewAggregator creates an Aggregator backed by client
func NewAggregator(client *Client, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{client: client, logger: logger}
}

// Aggregate fetches schedule and fee concurrently. A sub-call that fails or
// returns no items leaves its field empty; it never affects the other one.
func (a *Aggregator) Aggregate(ctx context.Context, code string) domain.AggregatedData {
	outcomes := resilience.SettleAll(ctx,
		a.task("schedule", code, a.client.Schedule),
		a.task("fee", code, a.client.Fee),
	)

	var data domain.AggregatedData
	if outcomes[0].OK() {
		data.Schedule = outcomes[0].Value
	}
	if outcomes[1].OK() {
		data.Fee = outcomes[1].Value
	}
	return data
}

func (a *Aggregator) task(name, code string, call func(context.Context, string) (Result, error)) resilience.Task[any] {
	return func(ctx context.Context) (any, error) {
		result, err := call(ctx, code)
		if err == nil {
			switch result.Kind {
			case KindSingle, KindMany:
				return result.Value(), nil
			case KindEmpty:
				err = errNoItems
			default:
				err = result.Err
			}
		}

		a.logger.Warn("Q-net sub-call produced no data",
			zap.String("part", name),
			zap.String("code", code),
			zap.Error(err))
		return nil, fmt.Errorf("%s: %w", name, err)
	}
}
