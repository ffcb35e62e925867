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

// Package domain holds the value types shared between the search pipeline,
// the provider clients and the HTTP layer.
package domain

// SearchResult is the external contract returned by /api/search.
type SearchResult struct {
	Name        string `json:"name"`
	FullContent string `json:"fullContent"`
}

// AggregatedData carries the structured Q-net data gathered for one request.
// Either field is nil when its sub-call failed or returned nothing.
type AggregatedData struct {
	Schedule any `json:"schedule,omitempty"`
	Fee      any `json:"fee,omitempty"`
}

// IsEmpty reports whether no structured data was gathered.
func (d AggregatedData) IsEmpty() bool {
	return d.Schedule == nil && d.Fee == nil
}

// Book is a single book-search hit shown in the ad banner.
type Book struct {
	Title string `json:"title"`
	Link  string `json:"link"`
	Cover string `json:"cover"`
}

// BannerResponse is the body returned by /api/ads/banner.
type BannerResponse struct {
	Keyword string `json:"keyword"`
	Items   []Book `json:"items"`
}
