package services

import "github.com/Robooto/trade-journal/src/models"

// DetectCrossings walks every segment pair of the two polylines and collects
// their intersection points.
func DetectCrossings(orange, blue []models.Point) models.CrossingResult {
	crossings := []models.Point{}

	for i := 0; i+1 < len(orange); i++ {
		for j := 0; j+1 < len(blue); j++ {
			if pt, ok := segmentIntersection(orange[i], orange[i+1], blue[j], blue[j+1]); ok {
				crossings = append(crossings, pt)
			}
		}
	}

	return models.CrossingResult{
		Crossed:   len(crossings) > 0,
		Crossings: crossings,
	}
}

// segmentIntersection solves the parametric line equations for segments
// p1-p2 and q1-q2. Parallel and collinear segments report no intersection.
func segmentIntersection(p1, p2, q1, q2 models.Point) (models.Point, bool) {
	rX, rY := p2.X-p1.X, p2.Y-p1.Y
	sX, sY := q2.X-q1.X, q2.Y-q1.Y

	denom := rX*sY - rY*sX
	if denom == 0 {
		return models.Point{}, false
	}

	dX, dY := q1.X-p1.X, q1.Y-p1.Y
	t := (dX*sY - dY*sX) / denom
	u := (dX*rY - dY*rX) / denom

	if t < 0 || t > 1 || u < 0 || u > 1 {
		return models.Point{}, false
	}

	return models.Point{X: p1.X + t*rX, Y: p1.Y + t*rY}, true
}
