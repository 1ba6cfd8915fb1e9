package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConvexHullSquare(t *testing.T) {
	pts := []Point2D{{0, 0}, {2, 0}, {1, 1}, {2, 2}, {0, 2}, {1, 0}, {0.5, 1.5}}
	hull := ConvexHull(pts)
	assert.ElementsMatch(t, []Point2D{{0, 0}, {2, 0}, {2, 2}, {0, 2}}, hull)
	assert.InDelta(t, 4.0, PolygonArea(hull), 1e-12)
	// input order untouched
	assert.Equal(t, Point2D{1, 1}, pts[2])
}

func TestConvexHullDegenerate(t *testing.T) {
	line := []Point2D{{0, 0}, {1, 1}, {2, 2}, {3, 3}}
	assert.Zero(t, PolygonArea(ConvexHull(line)))

	assert.Len(t, ConvexHull([]Point2D{{1, 1}, {2, 2}}), 2)
	assert.Zero(t, PolygonArea(nil))
}

func TestCentroid(t *testing.T) {
	pts := []Point2D{{0, 0}, {4, 0}, {4, 2}, {0, 2}}
	assert.Equal(t, Point2D{2, 1}, Centroid(pts))
	assert.Equal(t, Point2D{}, Centroid(nil))
	assert.InDelta(t, 2.2360679775, MeanDistance(pts, Centroid(pts)), 1e-9)
}
