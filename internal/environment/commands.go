package environment

import (
	"fmt"
	"slices"
)

// CommandType names an edit command.
type CommandType string

const (
	CommandAddLink                    CommandType = "add_link"
	CommandRemoveLink                 CommandType = "remove_link"
	CommandChangeJointOrigin          CommandType = "change_joint_origin"
	CommandChangeLinkCollisionEnabled CommandType = "change_link_collision_enabled"
	CommandAddAllowedCollision        CommandType = "add_allowed_collision"
	CommandRemoveAllowedCollision     CommandType = "remove_allowed_collision"
)

// Command is one environment edit. Which fields are read depends on Type:
//
//	add_link                       Link, Joint
//	remove_link                    LinkName
//	change_joint_origin            JointName, Origin
//	change_link_collision_enabled  LinkName, Enabled
//	add_allowed_collision          Link1, Link2, Reason
//	remove_allowed_collision       Link1, Link2
type Command struct {
	Type      CommandType `json:"type" yaml:"type"`
	Link      *Link       `json:"link,omitempty" yaml:"link,omitempty"`
	Joint     *Joint      `json:"joint,omitempty" yaml:"joint,omitempty"`
	LinkName  string      `json:"link_name,omitempty" yaml:"link_name,omitempty"`
	JointName string      `json:"joint_name,omitempty" yaml:"joint_name,omitempty"`
	Origin    *Pose       `json:"origin,omitempty" yaml:"origin,omitempty"`
	Enabled   *bool       `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Link1     string      `json:"link1,omitempty" yaml:"link1,omitempty"`
	Link2     string      `json:"link2,omitempty" yaml:"link2,omitempty"`
	Reason    string      `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// AddLinkCommand attaches link to the scene through joint.
func AddLinkCommand(link Link, joint Joint) Command {
	return Command{Type: CommandAddLink, Link: &link, Joint: &joint}
}

// RemoveLinkCommand removes a link and everything below it.
func RemoveLinkCommand(name string) Command {
	return Command{Type: CommandRemoveLink, LinkName: name}
}

// ChangeJointOriginCommand moves a joint's origin.
func ChangeJointOriginCommand(joint string, origin Pose) Command {
	return Command{Type: CommandChangeJointOrigin, JointName: joint, Origin: &origin}
}

// ChangeLinkCollisionEnabledCommand toggles collision checking for a link.
func ChangeLinkCollisionEnabledCommand(link string, enabled bool) Command {
	return Command{Type: CommandChangeLinkCollisionEnabled, LinkName: link, Enabled: &enabled}
}

// AddAllowedCollisionCommand allows contact between two links.
func AddAllowedCollisionCommand(link1, link2, reason string) Command {
	return Command{Type: CommandAddAllowedCollision, Link1: link1, Link2: link2, Reason: reason}
}

// RemoveAllowedCollisionCommand disallows contact between two links.
func RemoveAllowedCollisionCommand(link1, link2 string) Command {
	return Command{Type: CommandRemoveAllowedCollision, Link1: link1, Link2: link2}
}

func (c Command) apply(s *scene) error {
	switch c.Type {
	case CommandAddLink:
		return c.addLink(s)
	case CommandRemoveLink:
		return c.removeLink(s)
	case CommandChangeJointOrigin:
		if c.Origin == nil {
			return fmt.Errorf("missing origin")
		}
		j, ok := s.joints[c.JointName]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownJoint, c.JointName)
		}
		j.Origin = *c.Origin
		s.joints[c.JointName] = j
		return nil
	case CommandChangeLinkCollisionEnabled:
		if c.Enabled == nil {
			return fmt.Errorf("missing enabled flag")
		}
		l, ok := s.links[c.LinkName]
		if !ok {
			return fmt.Errorf("unknown link %q", c.LinkName)
		}
		l.DisableCollision = !*c.Enabled
		s.links[c.LinkName] = l
		return nil
	case CommandAddAllowedCollision:
		if err := s.requireLinks(c.Link1, c.Link2); err != nil {
			return err
		}
		s.allowed.Add(c.Link1, c.Link2, c.Reason)
		return nil
	case CommandRemoveAllowedCollision:
		if err := s.requireLinks(c.Link1, c.Link2); err != nil {
			return err
		}
		if !s.allowed.Remove(c.Link1, c.Link2) {
			return fmt.Errorf("links %q and %q have no allowed collision entry", c.Link1, c.Link2)
		}
		return nil
	default:
		return fmt.Errorf("unsupported command type %q", c.Type)
	}
}

func (s *scene) requireLinks(names ...string) error {
	for _, n := range names {
		if _, ok := s.links[n]; !ok {
			return fmt.Errorf("unknown link %q", n)
		}
	}
	return nil
}

func (c Command) addLink(s *scene) error {
	if c.Link == nil || c.Joint == nil {
		return fmt.Errorf("add_link requires link and joint")
	}
	link, joint := *c.Link, *c.Joint
	if link.Name == "" {
		return fmt.Errorf("link has empty name")
	}
	if _, exists := s.links[link.Name]; exists {
		return fmt.Errorf("link %q already exists", link.Name)
	}
	if err := joint.validate(); err != nil {
		return err
	}
	if _, exists := s.joints[joint.Name]; exists {
		return fmt.Errorf("joint %q already exists", joint.Name)
	}
	if joint.Child != link.Name {
		return fmt.Errorf("joint %q child %q does not match link %q", joint.Name, joint.Child, link.Name)
	}
	if _, ok := s.links[joint.Parent]; !ok {
		return fmt.Errorf("joint %q parent link %q does not exist", joint.Name, joint.Parent)
	}

	link.Spheres = slices.Clone(link.Spheres)
	s.links[link.Name] = link
	s.joints[joint.Name] = joint
	return nil
}

func (c Command) removeLink(s *scene) error {
	if c.LinkName == s.root {
		return fmt.Errorf("cannot remove root link %q", s.root)
	}
	if _, ok := s.links[c.LinkName]; !ok {
		return fmt.Errorf("unknown link %q", c.LinkName)
	}

	doomed := []string{c.LinkName}
	for i := 0; i < len(doomed); i++ {
		for _, j := range s.joints {
			if j.Parent == doomed[i] {
				doomed = append(doomed, j.Child)
			}
		}
	}
	for _, name := range doomed {
		if j, ok := s.parentJoint(name); ok {
			delete(s.joints, j.Name)
			delete(s.positions, j.Name)
		}
		delete(s.links, name)
		s.allowed.RemoveLink(name)
	}
	return nil
}
