// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the Step and its Config.
//
// The Config is a flat, discriminated record: Type selects which of the
// type-specific fields are meaningful. It is serialized as-is into the build
// manifest, so the JSON names are part of the manifest format.
package step

import (
	"encoding/json"
	"path/filepath"
)

// Type discriminates the kind of trigger a step responds to.
type Type string

const (
	TypeAPI   Type = "api"
	TypeEvent Type = "event"
	TypeCron  Type = "cron"
	TypeNoop  Type = "noop"
)

// Valid reports whether t is one of the known step types.
func (t Type) Valid() bool {
	switch t {
	case TypeAPI, TypeEvent, TypeCron, TypeNoop:
		return true
	}
	return false
}

// Config is the user-declared configuration of a step.
type Config struct {
	Type        Type     `json:"type"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Flows       []string `json:"flows,omitempty"`

	// api
	Method     string          `json:"method,omitempty"`
	Path       string          `json:"path,omitempty"`
	BodySchema json.RawMessage `json:"bodySchema,omitempty"`

	// event
	Subscribes []string        `json:"subscribes,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`

	// cron
	Cron string `json:"cron,omitempty"`

	// api, event, cron
	Emits []string `json:"emits,omitempty"`

	// noop
	VirtualEmits      []string `json:"virtualEmits,omitempty"`
	VirtualSubscribes []string `json:"virtualSubscribes,omitempty"`

	// IncludeFiles are glob patterns, relative to the step file's directory,
	// of static files packaged alongside the compiled step.
	IncludeFiles []string `json:"includeFiles,omitempty"`
}

// Step is a discovered unit of compute.
type Step struct {
	Config   Config
	FilePath string
}

// New returns a Step for the given config and absolute source path.
func New(cfg Config, filePath string) *Step {
	return &Step{Config: cfg, FilePath: filepath.Clean(filePath)}
}

// Name is shorthand for s.Config.Name.
func (s *Step) Name() string {
	return s.Config.Name
}

// IsAPI reports whether the step is triggered by an HTTP route.
func (s *Step) IsAPI() bool {
	return s.Config.Type == TypeAPI
}

// Language returns the toolchain used to compile the step.
func (s *Step) Language() Language {
	return LanguageOf(s)
}

// Endpoint returns the "METHOD PATH" key of an api step, or "" for other types.
func (s *Step) Endpoint() string {
	if !s.IsAPI() {
		return ""
	}
	return NormalizeMethod(s.Config.Method) + " " + s.Config.Path
}

// FilterAPI returns the api steps from steps, preserving order.
func FilterAPI(steps []*Step) []*Step {
	var out []*Step
	for _, s := range steps {
		if s.IsAPI() {
			out = append(out, s)
		}
	}
	return out
}
