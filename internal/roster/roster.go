// Package roster loads which agents work which project.
package roster

import (
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultLeadType = "Web"

type Project struct {
	Name      string   `yaml:"name"`
	LeadTypes []string `yaml:"leadTypes"`
	Agents    []string `yaml:"agents"`
}

type Roster struct {
	Projects []Project `yaml:"projects"`
}

// Load reads and validates a roster file.
func Load(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster %q: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Roster, error) {
	var r Roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode roster: %w", err)
	}
	if err := r.normalize(); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *Roster) normalize() error {
	if len(r.Projects) == 0 {
		return fmt.Errorf("roster has no projects")
	}

	seen := make(map[string]struct{}, len(r.Projects))
	for i := range r.Projects {
		p := &r.Projects[i]
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			return fmt.Errorf("roster project %d has no name", i+1)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("roster project %q is listed twice", p.Name)
		}
		seen[p.Name] = struct{}{}

		p.Agents = compact(p.Agents)
		if len(p.Agents) == 0 {
			return fmt.Errorf("roster project %q has no agents", p.Name)
		}
		p.LeadTypes = compact(p.LeadTypes)
		if len(p.LeadTypes) == 0 {
			p.LeadTypes = []string{defaultLeadType}
		}
	}
	return nil
}

func (r *Roster) Project(name string) (Project, bool) {
	for _, p := range r.Projects {
		if p.Name == name {
			return p, true
		}
	}
	return Project{}, false
}

// Agents returns every agent of every project, sorted and without duplicates.
func (r *Roster) Agents() []string {
	var all []string
	for _, p := range r.Projects {
		all = append(all, p.Agents...)
	}
	sort.Strings(all)
	return compact(all)
}

// Pick draws a project, one of its lead types and one of its agents.
func (r *Roster) Pick(rng *rand.Rand) (project, leadType, agent string) {
	p := r.Projects[rng.Intn(len(r.Projects))]
	return p.Name, p.LeadTypes[rng.Intn(len(p.LeadTypes))], p.Agents[rng.Intn(len(p.Agents))]
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
