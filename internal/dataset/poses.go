// Package dataset loads KITTI odometry sequences for DeepVO training.
//
// A sequence is a list of frames plus one pose per frame. Poses are read
// from the KITTI ground truth format (a 3x4 [R|t] matrix per line) and
// stored as 6-DoF vectors [roll, pitch, yaw, tx, ty, tz], angles being the
// ZYX Euler decomposition of R.
//
// Frames are decoded lazily, resized to the model resolution and
// normalized to CHW float32. Training iterates over fixed-length windows
// of consecutive frames, grouped into batches of [B, T, 3, H, W] clips and
// [B, T, 6] targets.
package dataset

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Pose is [roll, pitch, yaw, tx, ty, tz].
type Pose [6]float32

// Angles returns the rotation part.
func (p Pose) Angles() [3]float32 { return [3]float32{p[0], p[1], p[2]} }

// Translation returns the translation part.
func (p Pose) Translation() [3]float32 { return [3]float32{p[3], p[4], p[5]} }

// ReadPoses parses a KITTI pose file: one line per frame with the 12
// row-major entries of a 3x4 [R|t] matrix. Blank lines are skipped.
func ReadPoses(r io.Reader) ([]Pose, error) {
	var poses []Pose
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 12 {
			return nil, fmt.Errorf("line %d: expected 12 values, got %d", line, len(fields))
		}
		var m [12]float64
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d, column %d: %w", line, i+1, err)
			}
			m[i] = v
		}
		poses = append(poses, PoseFromMatrix(m))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read poses: %w", err)
	}
	return poses, nil
}

// PoseFromMatrix converts a row-major 3x4 [R|t] matrix to a Pose.
func PoseFromMatrix(m [12]float64) Pose {
	rot := [9]float64{m[0], m[1], m[2], m[4], m[5], m[6], m[8], m[9], m[10]}
	roll, pitch, yaw := EulerZYX(rot)
	return Pose{
		float32(roll), float32(pitch), float32(yaw),
		float32(m[3]), float32(m[7]), float32(m[11]),
	}
}

// EulerZYX decomposes a row-major rotation matrix R = Rz(yaw) Ry(pitch)
// Rx(roll). At gimbal lock (|pitch| = pi/2) yaw is fixed to 0.
func EulerZYX(r [9]float64) (roll, pitch, yaw float64) {
	sinPitch := -r[6]
	if sinPitch > 1 {
		sinPitch = 1
	} else if sinPitch < -1 {
		sinPitch = -1
	}
	pitch = math.Asin(sinPitch)

	if math.Abs(r[6]) < 1-1e-9 {
		roll = math.Atan2(r[7], r[8])
		yaw = math.Atan2(r[3], r[0])
		return roll, pitch, yaw
	}
	return math.Atan2(-r[5], r[4]), pitch, 0
}

// RotationZYX is the inverse of EulerZYX.
func RotationZYX(roll, pitch, yaw float64) [9]float64 {
	sr, cr := math.Sincos(roll)
	sp, cp := math.Sincos(pitch)
	sy, cy := math.Sincos(yaw)
	return [9]float64{
		cy * cp, cy*sp*sr - sy*cr, cy*sp*cr + sy*sr,
		sy * cp, sy*sp*sr + cy*cr, sy*sp*cr - cy*sr,
		-sp, cp * sr, cp * cr,
	}
}

// RelativeTo expresses poses in the frame of origin: angle differences
// wrapped to (-pi, pi] and translations rotated by origin's inverse
// rotation.
func RelativeTo(origin Pose, poses []Pose) []Pose {
	r := RotationZYX(float64(origin[0]), float64(origin[1]), float64(origin[2]))
	out := make([]Pose, len(poses))
	for i, p := range poses {
		dx := float64(p[3] - origin[3])
		dy := float64(p[4] - origin[4])
		dz := float64(p[5] - origin[5])
		out[i] = Pose{
			wrapAngle(p[0] - origin[0]),
			wrapAngle(p[1] - origin[1]),
			wrapAngle(p[2] - origin[2]),
			// R^T d
			float32(r[0]*dx + r[3]*dy + r[6]*dz),
			float32(r[1]*dx + r[4]*dy + r[7]*dz),
			float32(r[2]*dx + r[5]*dy + r[8]*dz),
		}
	}
	return out
}

func wrapAngle(a float32) float32 {
	x := math.Mod(float64(a)+math.Pi, 2*math.Pi)
	if x <= 0 {
		x += 2 * math.Pi
	}
	return float32(x - math.Pi)
}
