package sim

import (
	"math"
	"sync"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/lanepilot/internal/command"
	"github.com/banshee-data/lanepilot/internal/geom"
	"github.com/banshee-data/lanepilot/internal/units"
)

// VehicleConfig parameterises the kinematic bicycle model.
type VehicleConfig struct {
	Wheelbase     float64 // metres
	MaxSteerAngle float64 // road-wheel angle at |steer| == 1, radians
	MaxAccel      float64 // m/s² at full throttle
	MaxDecel      float64 // m/s² at full brake
	Drag          float64 // linear drag coefficient, 1/s
}

// DefaultVehicleConfig approximates a mid-size sedan.
func DefaultVehicleConfig() VehicleConfig {
	return VehicleConfig{
		Wheelbase:     2.9,
		MaxSteerAngle: units.DegToRad(35),
		MaxAccel:      3.0,
		MaxDecel:      8.0,
		Drag:          0.05,
	}
}

// Vehicle is a kinematic bicycle driven by command.Control. It is safe for
// concurrent use; the monitor reads it while the runner steps it.
type Vehicle struct {
	cfg VehicleConfig

	mu    sync.RWMutex
	pose  geom.Pose
	speed float64
	last  command.Control
}

// NewVehicle places a vehicle at pose moving forward at speed.
func NewVehicle(cfg VehicleConfig, pose geom.Pose, speed float64) *Vehicle {
	return &Vehicle{cfg: cfg, pose: pose, speed: math.Max(speed, 0)}
}

// Pose returns the current pose.
func (v *Vehicle) Pose() geom.Pose {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.pose
}

// Velocity returns the world-frame velocity.
func (v *Vehicle) Velocity() r3.Vector {
	v.mu.RLock()
	defer v.mu.RUnlock()
	h := v.pose.Heading()
	return r3.Vector{X: h.X * v.speed, Y: h.Y * v.speed}
}

// Speed returns the forward speed.
func (v *Vehicle) Speed() float64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.speed
}

// LastControl is the most recently applied command.
func (v *Vehicle) LastControl() command.Control {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.last
}

// Step applies ctl for dt seconds. Out-of-range inputs are clamped and the
// vehicle never reverses.
func (v *Vehicle) Step(ctl command.Control, dt float64) {
	thr := clampUnit(ctl.Throttle, 0)
	brk := clampUnit(ctl.Brake, 0)
	str := clampUnit(ctl.Steer, -1)

	v.mu.Lock()
	defer v.mu.Unlock()

	accel := thr*v.cfg.MaxAccel - brk*v.cfg.MaxDecel - v.cfg.Drag*v.speed
	speed := math.Max(0, v.speed+accel*dt)
	avg := 0.5 * (v.speed + speed)

	delta := str * v.cfg.MaxSteerAngle
	yawRate := avg / v.cfg.Wheelbase * math.Tan(delta)
	mid := v.pose.Yaw + 0.5*yawRate*dt

	v.pose.Position.X += avg * math.Cos(mid) * dt
	v.pose.Position.Y += avg * math.Sin(mid) * dt
	v.pose.Yaw = units.NormalizeAngle(v.pose.Yaw + yawRate*dt)
	v.speed = speed
	v.last = ctl
}

func clampUnit(x, lower float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return math.Min(math.Max(x, lower), 1)
}
