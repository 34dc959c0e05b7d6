// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines Stream, a named real-time data stream declared by the
// project.
package step

// StorageType says where a stream keeps its state.
type StorageType string

const (
	StorageDefault StorageType = "default"
	StorageCustom  StorageType = "custom"
)

// Stream is a declared real-time data stream.
type Stream struct {
	Name        string
	StorageType StorageType
	FilePath    string
}
