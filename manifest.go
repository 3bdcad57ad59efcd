// Copyright 2026 The Govisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package fleetvisor

import (
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// RoleManifest is the on-disk form of a Role.
type RoleManifest struct {
	Name                  string   `yaml:"name" json:"name"`
	Command               []string `yaml:"command" json:"command"`
	ReadinessURL          string   `yaml:"readinessURL" json:"readinessURL"`
	BlocksUntilDaemonized bool     `yaml:"blocksUntilDaemonized" json:"blocksUntilDaemonized"`
	Env                   []string `yaml:"env" json:"env"`
	Directory             string   `yaml:"directory" json:"directory"`
}

// PlanManifest is the on-disk form of a LaunchPlan.  Since JSON is a
// subset of YAML, manifests may be written in either.
type PlanManifest struct {
	Listen              string         `yaml:"listen" json:"listen"`
	ParallelWorkerStart bool           `yaml:"parallelWorkerStart" json:"parallelWorkerStart"`
	Primary             RoleManifest   `yaml:"primary" json:"primary"`
	Workers             []RoleManifest `yaml:"workers" json:"workers"`
}

func (m RoleManifest) role() Role {
	return Role{
		Name:                  m.Name,
		Command:               copyArray(m.Command),
		ReadinessURL:          m.ReadinessURL,
		BlocksUntilDaemonized: m.BlocksUntilDaemonized,
		Env:                   copyArray(m.Env),
		Dir:                   m.Directory,
	}
}

// NewPlanFromManifest converts a manifest into a validated LaunchPlan.
func NewPlanFromManifest(m PlanManifest) (LaunchPlan, error) {
	p := LaunchPlan{
		Primary:             m.Primary.role(),
		ParallelWorkerStart: m.ParallelWorkerStart,
		ListenAddress:       m.Listen,
	}
	for _, w := range m.Workers {
		p.Workers = append(p.Workers, w.role())
	}
	if e := p.Validate(); e != nil {
		return LaunchPlan{}, e
	}
	return p, nil
}

// LoadPlan reads a manifest from r.
func LoadPlan(r io.Reader) (LaunchPlan, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var m PlanManifest
	if e := dec.Decode(&m); e != nil {
		return LaunchPlan{}, e
	}
	return NewPlanFromManifest(m)
}

// LoadPlanFile reads a manifest from the named file.
func LoadPlanFile(name string) (LaunchPlan, error) {
	f, e := os.Open(name)
	if e != nil {
		return LaunchPlan{}, e
	}
	defer f.Close()
	return LoadPlan(f)
}
