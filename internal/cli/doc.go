// Package cli turns command-line arguments into an app.Config. Usage errors
// are returned as ExitError values carrying the process exit code.
package cli
