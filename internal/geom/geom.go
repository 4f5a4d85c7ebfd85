// Package geom holds the pose and kinematic types shared by the control core.
//
// World frame is right-handed: x east, y north, yaw counter-clockwise from +x.
// The vehicle frame has x forward and y to the left.
package geom

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// Pose is a world position plus heading in radians.
type Pose struct {
	Position r3.Vector
	Yaw      float64
}

// Planar drops the altitude component.
func (p Pose) Planar() r2.Point {
	return r2.Point{X: p.Position.X, Y: p.Position.Y}
}

// Heading returns the unit vector the pose faces.
func (p Pose) Heading() r2.Point {
	return r2.Point{X: math.Cos(p.Yaw), Y: math.Sin(p.Yaw)}
}

// KinematicState is the vehicle velocity in the world frame (m/s).
type KinematicState struct {
	Velocity r3.Vector
}

// Speed is the magnitude of the velocity vector.
func (k KinematicState) Speed() float64 {
	return k.Velocity.Norm()
}

// ToLocal expresses a world point in the frame of pose: x forward, y left.
func ToLocal(pose Pose, target r2.Point) r2.Point {
	return Rotate(target.Sub(pose.Planar()), -pose.Yaw)
}

// ToWorld is the inverse of ToLocal.
func ToWorld(pose Pose, local r2.Point) r2.Point {
	return Rotate(local, pose.Yaw).Add(pose.Planar())
}

// Rotate turns p counter-clockwise by angle radians about the origin.
func Rotate(p r2.Point, angle float64) r2.Point {
	s, c := math.Sincos(angle)
	return r2.Point{X: c*p.X - s*p.Y, Y: s*p.X + c*p.Y}
}

// Finite reports whether both coordinates are finite numbers.
func Finite(p r2.Point) bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}
