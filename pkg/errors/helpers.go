// Copyright 2025 Tom Barlow
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

package errors

import (
	"errors"
	"fmt"
)

// Wrap creates a new error that wraps err with additional context.
// Returns nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf creates a new error that wraps err with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's tree matching target's type.
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Unwrap returns the result of calling Unwrap on err, if present.
func Unwrap(err error) error { return errors.Unwrap(err) }

// New creates a new error with the given message.
func New(message string) error { return errors.New(message) }

// Kind classifies an error into one of the taxonomy kinds from spec.md §7.
// Unrecognized errors classify as "runtime".
func Kind(err error) string {
	if err == nil {
		return ""
	}
	var (
		validationErr *ValidationError
		cycleErr      *CycleError
		timeoutErr    *TimeoutError
		cancelledErr  *CancelledError
		executorErr   *ExecutorError
		internalErr   *InternalError
		configErr     *ConfigError
	)
	switch {
	case As(err, &cycleErr):
		return "cycle"
	case As(err, &validationErr):
		return "validation"
	case As(err, &timeoutErr):
		return "timeout"
	case As(err, &cancelledErr):
		return "cancelled"
	case As(err, &executorErr):
		return "executor"
	case As(err, &internalErr):
		return "internal"
	case As(err, &configErr):
		return "config"
	default:
		return "runtime"
	}
}
