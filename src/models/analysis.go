package models

// Point is one sample of an extracted chart polyline, in image coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// CrossingRequest carries the two polylines to compare, named after the line
// colors in the source charts.
type CrossingRequest struct {
	Orange []Point `json:"orange"`
	Blue   []Point `json:"blue"`
}

// CrossingResult reports whether the polylines intersect and where.
type CrossingResult struct {
	Crossed   bool    `json:"crossed"`
	Crossings []Point `json:"crossings"`
}
