// Package builder drives the compilation of a project's steps into deployable
// artifacts.
//
// A Builder owns the registry of language builders and accumulates the build
// manifest: the compiled steps keyed by bundle path, the registered streams and
// one router artifact per language that has api steps. Language builders live
// in sub-packages (node, python) and call back into the Builder to register
// what they produce.
//
// Run executes a whole build: it resets the output directory, validates the
// steps, compiles them concurrently, aggregates the api routers and writes the
// manifest once at the end.
package builder
