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

	"go.uber.org/zap"
)

// Field names in Q-net list items
const (
	FieldCode = "jmcd"
	FieldName = "jmfldnm"
)

// ResolutionOutcome says why a resolution produced or did not produce a code
type ResolutionOutcome int

const (
	OutcomeFound ResolutionOutcome = iota
	OutcomeNotFound
	OutcomeTransportError
	OutcomeProviderError
)

func (o ResolutionOutcome) String() string {
	switch o {
	case OutcomeFound:
		return "found"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeTransportError:
		return "transport_error"
	case OutcomeProviderError:
		return "provider_error"
	default:
		return "unknown"
	}
}

// Resolution is the result of resolving a free-text query to a code.
// Only OutcomeFound carries a Code; the other outcomes are all non-fatal.
type Resolution struct {
	Outcome ResolutionOutcome
	Code    string
	Name    string
	Err     error
}

// Found reports whether a code was resolved
func (r Resolution) Found() bool {
	return r.Outcome == OutcomeFound
}

// Resolver maps certificate names to Q-net qualification codes
type Resolver struct {
	client *Client
	logger *zap.Logger
}

// NewResolver creates a Resolver backed by client
func NewResolver(client *Client, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{client: client, logger: logger}
}

// Resolve looks query up in the qualification list and returns the code of
// the item whose name equals query exactly.
func (r *Resolver) Resolve(ctx context.Context, query string) Resolution {
	result, err := r.client.List(ctx, query)
	if err != nil {
		outcome := OutcomeTransportError
		if errors.Is(err, ErrNotConfigured) {
			outcome = OutcomeNotFound
		}
		r.logger.Warn("Qualification code lookup failed",
			zap.String("query", query),
			zap.Error(err))
		return Resolution{Outcome: outcome, Err: err}
	}

	switch result.Kind {
	case KindProviderError:
		return Resolution{Outcome: OutcomeProviderError, Err: result.Err}
	case KindInvalid:
		return Resolution{Outcome: OutcomeTransportError, Err: result.Err}
	}

	for _, item := range result.Items() {
		if item.Get(FieldName).String() != query {
			continue
		}
		code := item.Get(FieldCode).String()
		if code == "" {
			continue
		}
		r.logger.Debug("Qualification code resolved",
			zap.String("query", query),
			zap.String("code", code))
		return Resolution{Outcome: OutcomeFound, Code: code, Name: query}
	}

	return Resolution{Outcome: OutcomeNotFound}
}
