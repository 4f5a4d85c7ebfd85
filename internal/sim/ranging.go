package sim

import (
	"math"

	"github.com/golang/geo/r2"

	"github.com/banshee-data/lanepilot/internal/geom"
	"github.com/banshee-data/lanepilot/internal/radar"
	"github.com/banshee-data/lanepilot/internal/units"
)

// RadarConfig models a forward-facing ranging sensor.
type RadarConfig struct {
	Range         float64 // metres
	HorizontalFOV float64 // full angle, radians
	VerticalFOV   float64 // full angle, radians
	MountForward  float64 // sensor offset ahead of the vehicle origin
	MountHeight   float64
	Returns       int // returns per target, spread across its rear face
}

// DefaultRadarConfig matches the bumper radar used in development runs.
func DefaultRadarConfig() RadarConfig {
	return RadarConfig{
		Range:         100,
		HorizontalFOV: units.DegToRad(30),
		VerticalFOV:   units.DegToRad(10),
		MountForward:  2.5,
		MountHeight:   1.6,
		Returns:       3,
	}
}

// Sense produces one detection batch for the ego vehicle and the given
// actors. Only the rear face of each actor is sampled; occlusion is not
// modelled.
func (c RadarConfig) Sense(ego geom.Pose, egoVel r2.Point, actors []Actor) radar.Batch {
	mount := geom.Pose{Position: ego.Position, Yaw: ego.Yaw}
	h := ego.Heading()
	mount.Position.X += h.X * c.MountForward
	mount.Position.Y += h.Y * c.MountForward

	var batch radar.Batch
	for _, a := range actors {
		for _, p := range a.rearFace(c.Returns) {
			local := geom.ToLocal(mount, p)
			depth := local.Norm()
			if depth == 0 || depth > c.Range {
				continue
			}
			az := math.Atan2(local.Y, local.X)
			if math.Abs(az) > c.HorizontalFOV/2 {
				continue
			}
			alt := math.Atan2(a.Height/2-c.MountHeight, depth)
			if math.Abs(alt) > c.VerticalFOV/2 {
				alt = math.Copysign(c.VerticalFOV/2, alt)
			}
			los := p.Sub(mount.Planar()).Mul(1 / depth)
			rel := a.Velocity().Sub(egoVel)
			batch = append(batch, radar.Detection{
				Depth:    depth,
				Azimuth:  az,
				Altitude: alt,
				Velocity: rel.Dot(los),
			})
		}
	}
	return batch
}
