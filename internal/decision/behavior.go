// Package decision maps the filtered obstacle estimate to a behavior.
package decision

import (
	"fmt"
	"strings"
)

// Kind is the closed set of behaviors the agent can be in.
type Kind int

const (
	Cruise Kind = iota
	Follow
	Brake
	Emergency
	LaneChange
)

var kindNames = [...]string{
	Cruise:     "CRUISE",
	Follow:     "FOLLOW",
	Brake:      "BRAKE",
	Emergency:  "EMERGENCY",
	LaneChange: "LANE_CHANGE",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind accepts the names produced by Kind.String. NORMAL is accepted
// as an alias for CRUISE.
func ParseKind(s string) (Kind, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if name == "NORMAL" {
		return Cruise, nil
	}
	for k, n := range kindNames {
		if n == name {
			return Kind(k), nil
		}
	}
	return Cruise, fmt.Errorf("unknown behavior %q", s)
}

// Side is the direction of a lane change.
type Side int

const (
	SideNone Side = iota
	SideLeft
	SideRight
)

func (s Side) String() string {
	switch s {
	case SideLeft:
		return "LEFT"
	case SideRight:
		return "RIGHT"
	default:
		return "NONE"
	}
}

// Sign is +1 for left, -1 for right and 0 otherwise, matching the
// vehicle frame where y points left.
func (s Side) Sign() float64 {
	switch s {
	case SideLeft:
		return 1
	case SideRight:
		return -1
	default:
		return 0
	}
}

// Behavior is a Kind plus, for LaneChange only, the side being changed to.
type Behavior struct {
	Kind Kind
	Side Side
}

// Of builds a behavior with no side.
func Of(k Kind) Behavior { return Behavior{Kind: k} }

// ChangeLane builds a LaneChange behavior towards side.
func ChangeLane(side Side) Behavior { return Behavior{Kind: LaneChange, Side: side} }

func (b Behavior) String() string {
	if b.Kind == LaneChange {
		return fmt.Sprintf("%s(%s)", b.Kind, b.Side)
	}
	return b.Kind.String()
}
