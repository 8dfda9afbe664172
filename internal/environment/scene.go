package environment

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SceneFile is the on-disk description of an environment.
type SceneFile struct {
	Name              string             `yaml:"name"`
	Root              string             `yaml:"root"`
	Links             []Link             `yaml:"links"`
	Joints            []Joint            `yaml:"joints"`
	AllowedCollisions []AllowedCollision `yaml:"allowed_collisions"`
}

// LoadScene reads a YAML scene file and builds an environment from it.
func LoadScene(path string) (*Env, error) {
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read scene file: %w", err)
	}
	var sf SceneFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("failed to parse scene file %s: %w", cleanPath, err)
	}
	return FromScene(sf)
}

// FromScene builds an environment from a scene description. Links are
// attached in joint order, so a joint must come after its parent's joint.
// The initial build does not count towards the revision.
func FromScene(sf SceneFile) (*Env, error) {
	if sf.Name == "" {
		return nil, fmt.Errorf("scene has no name")
	}
	if sf.Root == "" {
		return nil, fmt.Errorf("scene %q has no root link", sf.Name)
	}

	links := make(map[string]Link, len(sf.Links))
	for _, l := range sf.Links {
		links[l.Name] = l
	}

	e := New(sf.Name, sf.Root)
	if root, ok := links[sf.Root]; ok {
		e.scene.links[sf.Root] = root
	}

	cmds := make([]Command, 0, len(sf.Joints)+len(sf.AllowedCollisions))
	for _, j := range sf.Joints {
		l, ok := links[j.Child]
		if !ok {
			return nil, fmt.Errorf("scene %q: joint %q child link %q is not declared", sf.Name, j.Name, j.Child)
		}
		cmds = append(cmds, AddLinkCommand(l, j))
	}
	for _, ac := range sf.AllowedCollisions {
		cmds = append(cmds, AddAllowedCollisionCommand(ac.Link1, ac.Link2, ac.Reason))
	}

	next := e.scene.clone()
	for i, c := range cmds {
		if err := c.apply(next); err != nil {
			return nil, fmt.Errorf("scene %q: entry %d: %w", sf.Name, i, err)
		}
	}
	for name := range links {
		if _, ok := next.links[name]; !ok {
			return nil, fmt.Errorf("scene %q: link %q is not attached to root %q", sf.Name, name, sf.Root)
		}
	}
	e.scene = next
	e.state = computeState(next)
	return e, nil
}
