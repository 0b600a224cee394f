// Package app wires a workflow run together: it loads the workflow model,
// opens the execution target, attaches notifiers and drives the actions,
// independently of the CLI entrypoint.
package app
