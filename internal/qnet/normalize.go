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
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tidwall/gjson"
)

// SuccessCode is the header resultCode Q-net uses for a successful call
const SuccessCode = "00"

// Kind tags the shape of a normalized Q-net response
type Kind int

const (
	// KindInvalid is a body that could not be parsed or has no response envelope
	KindInvalid Kind = iota
	// KindEmpty is a successful response without items
	KindEmpty
	// KindSingle is a response whose item is one object
	KindSingle
	// KindMany is a response whose item is a list
	KindMany
	// KindProviderError is a response whose header reports a failure
	KindProviderError
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindSingle:
		return "single"
	case KindMany:
		return "many"
	case KindProviderError:
		return "provider_error"
	default:
		return "invalid"
	}
}

// ErrInvalidResponse is reported for bodies without a recognizable envelope
var ErrInvalidResponse = errors.New("unrecognized qnet response")

// ProviderError is a failure reported by Q-net in the response header
type ProviderError struct {
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("qnet reported error %s: %s", e.Code, e.Message)
}

// Result is a normalized Q-net response
type Result struct {
	Kind Kind
	item gjson.Result
	Err  error
}

// Items returns the item list. A single item is returned as a one element
// slice; every other kind yields nil.
func (r Result) Items() []gjson.Result {
	switch r.Kind {
	case KindSingle:
		return []gjson.Result{r.item}
	case KindMany:
		return r.item.Array()
	default:
		return nil
	}
}

// Value returns the item as plain Go values (map or slice), or nil
func (r Result) Value() any {
	if r.Kind != KindSingle && r.Kind != KindMany {
		return nil
	}
	return r.item.Value()
}

// Normalize parses a raw Q-net body. XML is chosen when the content type
// says so, JSON likewise; anything else is tried as XML first, then JSON.
func Normalize(body []byte, contentType string) Result {
	doc, err := decode(body, strings.ToLower(contentType))
	if err != nil {
		return Result{Kind: KindInvalid, Err: fmt.Errorf("%w: %v", ErrInvalidResponse, err)}
	}

	response := doc.Get("response")
	if !response.Exists() {
		return Result{Kind: KindInvalid, Err: ErrInvalidResponse}
	}

	item := response.Get("body.items.item")
	switch {
	case item.IsArray():
		if len(item.Array()) == 0 {
			return Result{Kind: KindEmpty}
		}
		return Result{Kind: KindMany, item: item}
	case item.IsObject():
		return Result{Kind: KindSingle, item: item}
	}

	code := response.Get("header.resultCode")
	if code.Exists() && code.String() != SuccessCode {
		return Result{Kind: KindProviderError, Err: &ProviderError{
			Code:    code.String(),
			Message: response.Get("header.resultMsg").String(),
		}}
	}
	if code.Exists() || response.Get("body").Exists() {
		return Result{Kind: KindEmpty}
	}
	return Result{Kind: KindInvalid, Err: ErrInvalidResponse}
}

func decode(body []byte, contentType string) (gjson.Result, error) {
	switch {
	case strings.Contains(contentType, "xml"):
		return decodeXML(body)
	case strings.Contains(contentType, "json"):
		return decodeJSON(body)
	}

	// unlabelled: only a document rooted at <response> counts as XML
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '<' {
		if doc, err := decodeXML(trimmed); err == nil && doc.Get("response").Exists() {
			return doc, nil
		}
	}
	return decodeJSON(body)
}

func decodeJSON(body []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, errors.New("invalid json body")
	}
	return gjson.ParseBytes(body), nil
}

// decodeXML converts the document into the same tree a JSON body would
// produce: repeated elements become arrays, leaves become strings.
func decodeXML(body []byte) (gjson.Result, error) {
	var root xmlNode
	decoder := xml.NewDecoder(bytes.NewReader(body))
	decoder.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
	if err := decoder.Decode(&root); err != nil {
		return gjson.Result{}, fmt.Errorf("invalid xml body: %w", err)
	}

	tree := map[string]any{root.XMLName.Local: root.value()}
	encoded, err := json.Marshal(tree)
	if err != nil {
		return gjson.Result{}, err
	}
	return gjson.ParseBytes(encoded), nil
}

type xmlNode struct {
	XMLName xml.Name
	Content string    `xml:",chardata"`
	Nodes   []xmlNode `xml:",any"`
}

func (n xmlNode) value() any {
	if len(n.Nodes) == 0 {
		return strings.TrimSpace(n.Content)
	}

	out := make(map[string]any, len(n.Nodes))
	for _, child := range n.Nodes {
		name := child.XMLName.Local
		value := child.value()
		switch existing := out[name].(type) {
		case nil:
			out[name] = value
		case []any:
			out[name] = append(existing, value)
		default:
			out[name] = []any{existing, value}
		}
	}
	return out
}
