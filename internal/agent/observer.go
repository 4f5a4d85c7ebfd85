package agent

import (
	"math"
	"time"

	"github.com/banshee-data/lanepilot/internal/command"
	"github.com/banshee-data/lanepilot/internal/decision"
	"github.com/banshee-data/lanepilot/internal/geom"
)

// TickRecord is everything the agent decided in one tick.
type TickRecord struct {
	Tick     uint64
	Time     time.Time
	Pose     geom.Pose
	Speed    float64
	Known    bool    // false until the first detection batch arrives
	Distance float64 // +Inf when clear or unknown
	RelVel   float64
	TTC      float64
	Raw      decision.Kind
	Behavior decision.Behavior
	Control  command.Control
	LaneID   int // -1 when off-road
	OnPath   bool
	Cooldown bool
}

// Transitioned reports whether the behavior changed from prev.
func (r TickRecord) Transitioned(prev decision.Behavior) bool {
	return r.Behavior != prev
}

// Observer receives a record after every tick. Implementations must not
// block; the agent calls them on its own goroutine.
type Observer interface {
	OnTick(TickRecord)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(TickRecord)

// OnTick calls f(r).
func (f ObserverFunc) OnTick(r TickRecord) { f(r) }

// MultiObserver fans a record out to several observers in order.
type MultiObserver []Observer

// OnTick forwards r to every non-nil observer.
func (m MultiObserver) OnTick(r TickRecord) {
	for _, o := range m {
		if o != nil {
			o.OnTick(r)
		}
	}
}

// Status is a JSON-friendly view of the latest tick. Non-finite values
// are reported as null.
type Status struct {
	Tick     uint64          `json:"tick"`
	Time     time.Time       `json:"time"`
	Behavior string          `json:"behavior"`
	Raw      string          `json:"raw"`
	Speed    float64         `json:"speed_mps"`
	Distance *float64        `json:"distance_m"`
	RelVel   float64         `json:"relative_velocity_mps"`
	TTC      *float64        `json:"ttc_s"`
	X        float64         `json:"x"`
	Y        float64         `json:"y"`
	Yaw      float64         `json:"yaw"`
	LaneID   int             `json:"lane_id"`
	OnPath   bool            `json:"on_path"`
	Cooldown bool            `json:"cooldown"`
	Control  command.Control `json:"control"`
}

// StatusFromRecord converts a tick record.
func StatusFromRecord(r TickRecord) Status {
	return Status{
		Tick:     r.Tick,
		Time:     r.Time,
		Behavior: r.Behavior.String(),
		Raw:      r.Raw.String(),
		Speed:    r.Speed,
		Distance: finite(r.Distance),
		RelVel:   r.RelVel,
		TTC:      finite(r.TTC),
		X:        r.Pose.Position.X,
		Y:        r.Pose.Position.Y,
		Yaw:      r.Pose.Yaw,
		LaneID:   r.LaneID,
		OnPath:   r.OnPath,
		Cooldown: r.Cooldown,
		Control:  r.Control,
	}
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
