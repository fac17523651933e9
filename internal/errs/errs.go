// Copyright (c) 2026 The gbforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package errs defines the error taxonomy shared by the resolver, the
// generator, the orchestrator and the artifact server.
package errs

import (
	"fmt"
	"strings"
)

// ConfigurationError reports a bad or unsupported input: a platform
// descriptor, a rule table, a missing certificate or root directory.
type ConfigurationError struct {
	What string
	Err  error
}

func (e *ConfigurationError) Error() string {
	if e.Err == nil {
		return "configuration error: " + e.What
	}
	return fmt.Sprintf("configuration error: %s: %v", e.What, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Configf returns a ConfigurationError with a formatted description.
func Configf(format string, args ...any) error {
	return &ConfigurationError{What: fmt.Sprintf(format, args...)}
}

// ResolutionConflictError reports two non-override entries claiming the
// same dependency name with different versions.
type ResolutionConflictError struct {
	Name     string
	Versions []string
}

func (e *ResolutionConflictError) Error() string {
	return fmt.Sprintf("resolution conflict: %s required at %s", e.Name, strings.Join(e.Versions, " and "))
}

// GenerationError reports that native build inputs could not be produced.
type GenerationError struct {
	What string
	Err  error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return "generation error: " + e.What
	}
	return fmt.Sprintf("generation error: %s: %v", e.What, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Stage names one step of the build/package/deploy sequence.
type Stage string

const (
	StageBuild   Stage = "build"
	StagePackage Stage = "package"
	StageDeploy  Stage = "deploy"
)

// StageFailure wraps the failure of a native tool during one stage.
// Output holds the tool's diagnostic exactly as it was written.
type StageFailure struct {
	Stage  Stage
	Err    error
	Output string
}

func (e *StageFailure) Error() string {
	msg := fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
	if out := strings.TrimRight(e.Output, "\n"); out != "" {
		msg += "\n" + out
	}
	return msg
}

func (e *StageFailure) Unwrap() error { return e.Err }
