// Copyright 2025 Kadir Pekel
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

// Package minerr defines the error taxonomy shared across Minerva components.
//
// Every public component boundary surfaces a *Error carrying a Kind, so the
// single CLI entrypoint can map failures to exit codes and callers can branch
// on kind without string matching. Internal helpers keep using plain errors;
// boundaries wrap them.
package minerr

import (
	"errors"
	"fmt"
)

// Kind discriminates error categories at component boundaries.
type Kind string

const (
	// KindConfig indicates a malformed or incomplete configuration file.
	KindConfig Kind = "config"

	// KindCredentialMissing indicates an unresolved ${NAME} reference.
	KindCredentialMissing Kind = "credential_missing"

	// KindProviderUnavailable indicates a failed availability check.
	KindProviderUnavailable Kind = "provider_unavailable"

	// KindProvider indicates a provider call failure after retries.
	KindProvider Kind = "provider"

	// KindRateLimited indicates an exhausted rate-limit budget.
	KindRateLimited Kind = "rate_limited"

	// KindDimensionMismatch indicates an embedding length that differs from
	// the collection's stored dimension.
	KindDimensionMismatch Kind = "dimension_mismatch"

	// KindIncompatibleCollection indicates an existing collection whose
	// version/provider/model/chunk-size differs from the requested config.
	KindIncompatibleCollection Kind = "incompatible_collection"

	// KindStorage indicates a vector-store operation failure.
	KindStorage Kind = "storage"

	// KindValidation indicates invalid note data.
	KindValidation Kind = "validation"

	// KindCollectionNotFound indicates a serving-side lookup miss.
	KindCollectionNotFound Kind = "collection_not_found"

	// KindCollectionUnavailable indicates a collection whose provider failed
	// its startup check.
	KindCollectionUnavailable Kind = "collection_unavailable"

	// KindInternal is the fallback for unexpected failures.
	KindInternal Kind = "internal"
)

// Error is the structured error used at component boundaries.
//
// Message names what failed, Field identifies the offending field, path or
// variable, and Suggestion states a concrete remediation. All three travel to
// the user-facing banner.
type Error struct {
	Kind       Kind
	Message    string
	Field      string
	Suggestion string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Field)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind around a cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithField attaches the offending field/path/variable name.
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// WithSuggestion attaches a remediation hint.
func (e *Error) WithSuggestion(format string, args ...any) *Error {
	e.Suggestion = fmt.Sprintf(format, args...)
	return e
}

// KindOf returns the kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind == kind
	}
	return false
}

// SuggestionOf returns the remediation hint of err, if any.
func SuggestionOf(err error) string {
	var me *Error
	if errors.As(err, &me) {
		return me.Suggestion
	}
	return ""
}
