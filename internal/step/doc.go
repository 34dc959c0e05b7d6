// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package step provides the in-memory representation of a project's steps and
// streams as they are handed to the build pipeline by the discovery layer.
//
// # Core Concepts
//
//   - Step: a unit of compute (api route, event subscriber, cron job or noop
//     placeholder) defined by a Config and the source file that implements it.
//
//   - Language: the toolchain a step is compiled with. It is derived from the
//     source file extension and is an explicit enum, so an unknown extension maps
//     to LanguageUnsupported instead of a free-form string.
//
//   - Stream: a named real-time data stream the project declares. Only streams
//     with the default storage type are provisioned remotely.
//
// Steps are immutable once discovered. Every later stage (validation, building,
// uploading) reads them and never writes back.
package step
