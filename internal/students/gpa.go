package students

import "math"

// GPAScale is the upper bound of the grade-point scale.
const GPAScale = "4.0"

var gradeBands = []struct {
	min    float64
	points float64
}{
	{97, 4.0},
	{93, 3.7},
	{90, 3.3},
	{87, 3.0},
	{83, 2.7},
	{80, 2.3},
	{77, 2.0},
	{73, 1.7},
	{70, 1.3},
	{67, 1.0},
	{65, 0.7},
}

// GradePoints maps a percentage onto the 4.0 scale.
func GradePoints(pct float64) float64 {
	for _, band := range gradeBands {
		if pct >= band.min {
			return band.points
		}
	}
	return 0
}

// CalculateGPA returns the grade-point average weighted by each assignment's
// maximum points. It returns 0 when there is nothing to weigh.
func CalculateGPA(grades []Grade) float64 {
	var weighted, total float64
	for _, g := range grades {
		weighted += GradePoints(g.Percentage()) * g.AssignmentMaxPoints
		total += g.AssignmentMaxPoints
	}
	if total <= 0 {
		return 0
	}
	return weighted / total
}

// RoundGPA rounds to two decimal places.
func RoundGPA(gpa float64) float64 {
	return math.Round(gpa*100) / 100
}
