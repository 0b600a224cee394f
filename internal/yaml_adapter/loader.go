// Package yaml_adapter loads workflow files written in YAML.
//
//	target:
//	  kind: local
//	actions:
//	  - kind: fc
//	    name: fc_6_5
//	    parameters: {rc2: 6.0, rc3: 5.0}
//	  - kind: tc
//	    name: tc_20
//	    parent: fc_6_5
//	    parameters: {qg: 20}
package yaml_adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	json "github.com/goccy/go-json"
	"github.com/vk/actiongrid/internal/config"
	"github.com/vk/actiongrid/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
	"gopkg.in/yaml.v3"
)

// Extensions handled by this loader.
var Extensions = []string{".yaml", ".yml"}

type fileRoot struct {
	Target    *targetDoc    `yaml:"target"`
	Scheduler *schedulerDoc `yaml:"scheduler"`
	Notify    *notifyDoc    `yaml:"notify"`
	Actions   []actionDoc   `yaml:"actions"`
}

type targetDoc struct {
	Kind        string `yaml:"kind"`
	Workdir     string `yaml:"workdir"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	User        string `yaml:"user"`
	KeyFile     string `yaml:"key_file"`
	PasswordEnv string `yaml:"password_env"`
	KnownHosts  string `yaml:"known_hosts"`
	Insecure    bool   `yaml:"insecure"`
	Timeout     string `yaml:"timeout"`
}

type schedulerDoc struct {
	PollInterval string   `yaml:"poll_interval"`
	Squeue       []string `yaml:"squeue"`
	User         string   `yaml:"user"`
}

type notifyDoc struct {
	URL       string `yaml:"url"`
	Namespace string `yaml:"namespace"`
	Event     string `yaml:"event"`
}

type actionDoc struct {
	Kind       string    `yaml:"kind"`
	Name       string    `yaml:"name"`
	Parent     string    `yaml:"parent"`
	Scheduled  bool      `yaml:"scheduled"`
	Parameters yaml.Node `yaml:"parameters"`
}

// Loader is the YAML implementation of config.Loader.
type Loader struct{}

// NewLoader creates a new YAML workflow loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses every given file and merges them in order.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	model := &config.Model{}
	for _, file := range paths {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", file, err)
		}
		part, err := l.LoadSource(ctx, data, file)
		if err != nil {
			return nil, err
		}
		if err := model.Merge(part); err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
	}
	return model, nil
}

// LoadSource decodes YAML text held in memory. Unknown keys are rejected.
func (l *Loader) LoadSource(ctx context.Context, src []byte, filename string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)

	var root fileRoot
	dec := yaml.NewDecoder(bytes.NewReader(src))
	dec.KnownFields(true)
	if err := dec.Decode(&root); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode YAML file %s: %w", filename, err)
	}

	model := &config.Model{}
	if t := root.Target; t != nil {
		timeout, err := parseDuration("timeout", t.Timeout)
		if err != nil {
			return nil, fmt.Errorf("%s: target: %w", filename, err)
		}
		model.Target = &config.Target{
			Kind:        t.Kind,
			Workdir:     t.Workdir,
			Host:        t.Host,
			Port:        t.Port,
			User:        t.User,
			KeyFile:     t.KeyFile,
			PasswordEnv: t.PasswordEnv,
			KnownHosts:  t.KnownHosts,
			Insecure:    t.Insecure,
			Timeout:     timeout,
		}
	}
	if s := root.Scheduler; s != nil {
		interval, err := parseDuration("poll_interval", s.PollInterval)
		if err != nil {
			return nil, fmt.Errorf("%s: scheduler: %w", filename, err)
		}
		model.Scheduler = &config.Scheduler{PollInterval: interval, Squeue: s.Squeue, User: s.User}
	}
	if n := root.Notify; n != nil {
		model.Notify = &config.Notify{URL: n.URL, Namespace: n.Namespace, Event: n.Event}
	}

	for i := range root.Actions {
		doc := &root.Actions[i]
		params, err := toCty(&doc.Parameters)
		if err != nil {
			return nil, fmt.Errorf("%s: action '%s' (line %d): %w", filename, doc.Name, doc.Parameters.Line, err)
		}
		model.Actions = append(model.Actions, &config.Action{
			Kind:      doc.Kind,
			Name:      doc.Name,
			Parent:    doc.Parent,
			Scheduled: doc.Scheduled,
			Params:    params,
			Source:    filename,
		})
	}

	logger.Debug("YAML loading complete.", "file", filename, "actions", len(model.Actions))
	return model, nil
}

func parseDuration(attr, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", attr, s, err)
	}
	return d, nil
}

// toCty converts a YAML parameters mapping into a cty object by way of its
// JSON form, which gives the same types the HCL loader produces.
func toCty(node *yaml.Node) (cty.Value, error) {
	if node.Kind == 0 {
		return cty.EmptyObjectVal, nil
	}
	if node.Kind != yaml.MappingNode {
		if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
			return cty.EmptyObjectVal, nil
		}
		return cty.NilVal, errors.New("parameters must be a mapping")
	}

	var raw map[string]any
	if err := node.Decode(&raw); err != nil {
		return cty.NilVal, fmt.Errorf("invalid parameters: %w", err)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return cty.NilVal, fmt.Errorf("invalid parameters: %w", err)
	}
	ty, err := ctyjson.ImpliedType(data)
	if err != nil {
		return cty.NilVal, fmt.Errorf("invalid parameters: %w", err)
	}
	v, err := ctyjson.Unmarshal(data, ty)
	if err != nil {
		return cty.NilVal, fmt.Errorf("invalid parameters: %w", err)
	}
	return v, nil
}
