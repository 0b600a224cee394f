package hcl_adapter

import "github.com/hashicorp/hcl/v2"

// fileRoot is used to decode all possible top-level blocks from any file.
type fileRoot struct {
	Targets    []*Target    `hcl:"target,block"`
	Schedulers []*Scheduler `hcl:"scheduler,block"`
	Notifiers  []*Notify    `hcl:"notify,block"`
	Actions    []*Action    `hcl:"action,block"`
	Remain     hcl.Body     `hcl:",remain"`
}

// Target is the HCL schema of a `target "<kind>" {}` block.
type Target struct {
	Kind        string  `hcl:"kind,label"`
	Workdir     *string `hcl:"workdir,optional"`
	Host        *string `hcl:"host,optional"`
	Port        *int    `hcl:"port,optional"`
	User        *string `hcl:"user,optional"`
	KeyFile     *string `hcl:"key_file,optional"`
	PasswordEnv *string `hcl:"password_env,optional"`
	KnownHosts  *string `hcl:"known_hosts,optional"`
	Insecure    *bool   `hcl:"insecure,optional"`
	Timeout     *string `hcl:"timeout,optional"`
}

// Scheduler is the HCL schema of a `scheduler {}` block.
type Scheduler struct {
	PollInterval *string  `hcl:"poll_interval,optional"`
	Squeue       []string `hcl:"squeue,optional"`
	User         *string  `hcl:"user,optional"`
}

// Notify is the HCL schema of a `notify {}` block.
type Notify struct {
	URL       string  `hcl:"url"`
	Namespace *string `hcl:"namespace,optional"`
	Event     *string `hcl:"event,optional"`
}

// Action is the HCL schema of an `action "<kind>" "<name>" {}` block.
type Action struct {
	Kind       string         `hcl:"kind,label"`
	Name       string         `hcl:"name,label"`
	Parent     *string        `hcl:"parent,optional"`
	Scheduled  *bool          `hcl:"scheduled,optional"`
	Parameters hcl.Expression `hcl:"parameters,optional"`
	DeclRange  hcl.Range      `hcl:",def_range"`
}
