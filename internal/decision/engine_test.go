package decision

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lanepilot/internal/radar"
)

func TestEvaluate(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		name     string
		obs      *radar.Obstacle
		wantKind Kind
		wantTTC  float64
	}{
		{name: "no data", obs: nil, wantKind: Cruise, wantTTC: math.Inf(1)},
		{name: "clear", obs: &radar.Obstacle{Distance: math.Inf(1)}, wantKind: Cruise, wantTTC: math.Inf(1)},
		{name: "emergency", obs: &radar.Obstacle{Distance: 6, RelativeVelocity: -3}, wantKind: Emergency, wantTTC: 2},
		{name: "emergency boundary is brake", obs: &radar.Obstacle{Distance: 8, RelativeVelocity: -4}, wantKind: Brake, wantTTC: 2},
		{name: "brake", obs: &radar.Obstacle{Distance: 12, RelativeVelocity: -3}, wantKind: Brake, wantTTC: 4},
		{name: "brake boundary is cruise", obs: &radar.Obstacle{Distance: 15, RelativeVelocity: -5}, wantKind: Cruise, wantTTC: 3},
		{name: "receding target uses epsilon", obs: &radar.Obstacle{Distance: 30, RelativeVelocity: 2}, wantKind: Cruise, wantTTC: 300},
		{name: "stationary relative", obs: &radar.Obstacle{Distance: 10}, wantKind: Brake, wantTTC: 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			kind, ttc := Evaluate(th, tt.obs)
			assert.Equal(t, tt.wantKind, kind)
			if math.IsInf(tt.wantTTC, 1) {
				assert.True(t, math.IsInf(ttc, 1))
			} else {
				assert.InDelta(t, tt.wantTTC, ttc, 1e-9)
			}
		})
	}
}

func TestTimeToCollision(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 10.0, TimeToCollision(50, -5, 0.1))
	assert.InDelta(t, 500.0, TimeToCollision(50, 0, 0.1), 1e-9)
	assert.True(t, math.IsInf(TimeToCollision(math.Inf(1), -5, 0.1), 1))
	assert.True(t, math.IsInf(TimeToCollision(math.NaN(), -5, 0.1), 1))
}

func TestThreatening(t *testing.T) {
	t.Parallel()
	th := DefaultThresholds()
	assert.False(t, th.Threatening(nil))
	assert.False(t, th.Threatening(&radar.Obstacle{Distance: 45}))
	assert.True(t, th.Threatening(&radar.Obstacle{Distance: 44.9}))
}

func TestBehaviorString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "CRUISE", Of(Cruise).String())
	assert.Equal(t, "EMERGENCY", Of(Emergency).String())
	assert.Equal(t, "LANE_CHANGE(LEFT)", ChangeLane(SideLeft).String())
	assert.Equal(t, "LANE_CHANGE(RIGHT)", ChangeLane(SideRight).String())
	assert.Equal(t, "Kind(42)", Kind(42).String())
}

func TestParseKind(t *testing.T) {
	t.Parallel()
	for _, k := range []Kind{Cruise, Follow, Brake, Emergency, LaneChange} {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	got, err := ParseKind("normal")
	require.NoError(t, err)
	assert.Equal(t, Cruise, got)

	_, err = ParseKind("reverse")
	assert.Error(t, err)
}

func TestSideSign(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 1.0, SideLeft.Sign())
	assert.Equal(t, -1.0, SideRight.Sign())
	assert.Equal(t, 0.0, SideNone.Sign())
}
