// Package environment holds the kinematic scene monitored for contacts: a
// tree of links connected by joints, the allowed collision matrix and a
// revision counter that advances on every structural edit.
package environment

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/contact.monitor/internal/contact"
	"github.com/banshee-data/contact.monitor/internal/contact/sphere"
)

var (
	// ErrUnknownJoint is returned when a state names a joint the scene lacks.
	ErrUnknownJoint = errors.New("unknown joint")
	// ErrMalformedState is returned when joint names and positions disagree.
	ErrMalformedState = errors.New("malformed joint state")
)

// JointType enumerates supported joint kinds.
type JointType string

const (
	JointFixed     JointType = "fixed"
	JointRevolute  JointType = "revolute"
	JointPrismatic JointType = "prismatic"
)

// Pose is a position plus roll/pitch/yaw orientation, as written in scene
// files and edit commands.
type Pose struct {
	XYZ [3]float64 `json:"xyz" yaml:"xyz"`
	RPY [3]float64 `json:"rpy" yaml:"rpy"`
}

// Transform converts the pose using the fixed-axis convention Rz*Ry*Rx.
func (p Pose) Transform() contact.Transform {
	rot := contact.RotateAbout(p.RPY[2], r3.Vec{Z: 1}).
		Compose(contact.RotateAbout(p.RPY[1], r3.Vec{Y: 1})).
		Compose(contact.RotateAbout(p.RPY[0], r3.Vec{X: 1}))
	return contact.Translate(p.XYZ[0], p.XYZ[1], p.XYZ[2]).Compose(rot)
}

// Link is a rigid body with optional collision spheres.
type Link struct {
	Name             string          `json:"name" yaml:"name"`
	Spheres          []sphere.Sphere `json:"spheres,omitempty" yaml:"spheres,omitempty"`
	DisableCollision bool            `json:"disable_collision,omitempty" yaml:"disable_collision,omitempty"`
}

// Joint connects a parent link to a child link.
type Joint struct {
	Name   string    `json:"name" yaml:"name"`
	Type   JointType `json:"type" yaml:"type"`
	Parent string    `json:"parent" yaml:"parent"`
	Child  string    `json:"child" yaml:"child"`
	Origin Pose      `json:"origin" yaml:"origin"`
	Axis   r3.Vec    `json:"axis" yaml:"axis"`
}

func (j Joint) validate() error {
	if j.Name == "" {
		return fmt.Errorf("joint has empty name")
	}
	if j.Parent == "" || j.Child == "" {
		return fmt.Errorf("joint %q must name parent and child links", j.Name)
	}
	if j.Parent == j.Child {
		return fmt.Errorf("joint %q connects link %q to itself", j.Name, j.Parent)
	}
	switch j.Type {
	case JointFixed, JointRevolute, JointPrismatic:
	default:
		return fmt.Errorf("joint %q has unsupported type %q", j.Name, j.Type)
	}
	return nil
}

// axis returns the unit joint axis, defaulting to +Z.
func (j Joint) axis() r3.Vec {
	if r3.Norm(j.Axis) == 0 {
		return r3.Vec{Z: 1}
	}
	return r3.Unit(j.Axis)
}

// motion returns the child pose relative to the joint frame for position q.
func (j Joint) motion(q float64) contact.Transform {
	switch j.Type {
	case JointRevolute:
		return contact.RotateAbout(q, j.axis())
	case JointPrismatic:
		a := r3.Scale(q, j.axis())
		return contact.Translate(a.X, a.Y, a.Z)
	default:
		return contact.Identity()
	}
}

// AllowedCollision is one entry of the allowed collision matrix.
type AllowedCollision struct {
	Link1  string `json:"link1" yaml:"link1"`
	Link2  string `json:"link2" yaml:"link2"`
	Reason string `json:"reason" yaml:"reason"`
}

// State is the kinematic state for one joint configuration.
type State struct {
	Joints         map[string]float64           `json:"joints"`
	LinkTransforms map[string]contact.Transform `json:"link_transforms"`
}

// Description summarises the scene for status endpoints.
type Description struct {
	Name              string             `json:"name"`
	Revision          int                `json:"revision"`
	Root              string             `json:"root"`
	Links             []Link             `json:"links"`
	Joints            []Joint            `json:"joints"`
	AllowedCollisions []AllowedCollision `json:"allowed_collisions"`
}
