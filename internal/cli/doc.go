// Package cli is responsible for parsing command-line arguments, validating
// user input, and handling process-level concerns like exit codes. It
// translates cobra flags and environment defaults into the application's
// configuration and drives the build and deploy commands.
package cli
