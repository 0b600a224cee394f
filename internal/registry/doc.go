// Package registry maps the kind names used in workflow files to the
// compiled action kinds that implement them.
//
// Modules register their kinds at startup. The registry is then validated
// once so that a kind whose parameter record cannot be decoded from a
// workflow file fails before any action runs.
package registry
