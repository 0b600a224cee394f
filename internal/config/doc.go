// Package config defines the format-agnostic workflow model together with
// the Loader interface implemented by the format-specific adapters.
//
// A workflow file names the execution target, the batch scheduler, an
// optional notifier and the ordered list of actions. Concrete loaders for
// HCL and YAML live in separate packages.
package config
