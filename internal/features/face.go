package features

import (
	"image"
	"math"
)

// FaceScale enlarges a detected face box so the crop keeps the whole head.
const FaceScale = 1.25

// Detection is one face candidate in normalized [0,1] image coordinates.
type Detection struct {
	Confidence float32
	X0, Y0     float32
	X1, Y1     float32
}

// BestDetection returns the most confident detection above threshold.
func BestDetection(dets []Detection, threshold float32) (Detection, bool) {
	var (
		best  Detection
		found bool
	)
	for _, d := range dets {
		if d.Confidence <= threshold || d.X1 <= d.X0 || d.Y1 <= d.Y0 {
			continue
		}
		if !found || d.Confidence > best.Confidence {
			best, found = d, true
		}
	}
	return best, found
}

// FaceRect converts a detection into a square pixel rectangle of a
// width by height frame. The square is centered on the detection, sized
// from its longer side times FaceScale, and clipped to the frame.
func FaceRect(d Detection, width, height int) image.Rectangle {
	x0, y0 := float64(d.X0)*float64(width), float64(d.Y0)*float64(height)
	x1, y1 := float64(d.X1)*float64(width), float64(d.Y1)*float64(height)
	half := max(x1-x0, y1-y0) * FaceScale / 2
	cx, cy := (x0+x1)/2, (y0+y1)/2

	r := image.Rect(
		int(math.Round(cx-half)), int(math.Round(cy-half)),
		int(math.Round(cx+half)), int(math.Round(cy+half)),
	)
	return r.Intersect(image.Rect(0, 0, width, height))
}
