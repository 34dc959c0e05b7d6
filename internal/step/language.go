// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the Language enum and the extension-based mapping from a
// step's source file to the toolchain that compiles it.
package step

import (
	"path/filepath"
	"strings"
)

// Language identifies a compilation backend.
type Language int

const (
	LanguageUnsupported Language = iota
	LanguageNode
	LanguagePython
	LanguageNoop
)

// String returns the identifier used in the build manifest.
func (l Language) String() string {
	switch l {
	case LanguageNode:
		return "node"
	case LanguagePython:
		return "python"
	case LanguageNoop:
		return "noop"
	default:
		return "unknown"
	}
}

// Languages lists the languages that can own an API router, in the order
// routers are built.
var Languages = []Language{LanguageNode, LanguagePython}

var extensions = map[string]Language{
	".ts":  LanguageNode,
	".js":  LanguageNode,
	".mjs": LanguageNode,
	".cjs": LanguageNode,
	".py":  LanguagePython,
}

// LanguageOf resolves the language of a step. Noop steps never carry code and
// map to LanguageNoop regardless of their file.
func LanguageOf(s *Step) Language {
	if s.Config.Type == TypeNoop {
		return LanguageNoop
	}
	return LanguageForPath(s.FilePath)
}

// LanguageForPath maps a file extension to a language.
func LanguageForPath(path string) Language {
	if lang, ok := extensions[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	return LanguageUnsupported
}

// NormalizeMethod upper-cases an HTTP method.
func NormalizeMethod(method string) string {
	return strings.ToUpper(strings.TrimSpace(method))
}
