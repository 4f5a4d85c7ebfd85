package sensorfeed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/lanepilot/internal/radar"
)

// ErrNotFrame is returned for lines that are not detection frames, such as
// the sensor's command acknowledgements.
var ErrNotFrame = errors.New("not a detection frame")

// frame is the wire format of one sensor frame:
//
//	{"seq":42,"detections":[{"depth":31.2,"azimuth":0.01,"altitude":-0.02,"velocity":-4.9}]}
type frame struct {
	Seq        uint64             `json:"seq,omitempty"`
	Detections *[]radar.Detection `json:"detections"`
}

// ParseFrame decodes one line. Lines that are JSON objects without a
// detections key yield ErrNotFrame. Detections with non-finite fields are
// dropped.
func ParseFrame(line []byte) (radar.Batch, uint64, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] != '{' {
		return nil, 0, ErrNotFrame
	}
	var f frame
	if err := json.Unmarshal(line, &f); err != nil {
		return nil, 0, fmt.Errorf("failed to decode frame: %w", err)
	}
	if f.Detections == nil {
		return nil, f.Seq, ErrNotFrame
	}
	batch := make(radar.Batch, 0, len(*f.Detections))
	for _, d := range *f.Detections {
		if !finite(d.Depth) || !finite(d.Azimuth) || !finite(d.Altitude) || !finite(d.Velocity) {
			continue
		}
		batch = append(batch, d)
	}
	return batch, f.Seq, nil
}

// EncodeFrame is the inverse of ParseFrame, used by the simulator bridge
// and tests.
func EncodeFrame(seq uint64, batch radar.Batch) ([]byte, error) {
	if batch == nil {
		batch = radar.Batch{}
	}
	dets := []radar.Detection(batch)
	b, err := json.Marshal(frame{Seq: seq, Detections: &dets})
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
