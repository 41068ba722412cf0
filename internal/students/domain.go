package students

import (
	"time"

	"github.com/studentlms/lms/internal/courses"
	"github.com/studentlms/lms/internal/shared"
)

// Profile is the student record exposed to its owner.
type Profile struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	FirstName   string     `json:"firstName"`
	LastName    string     `json:"lastName"`
	StudentID   string     `json:"studentId"`
	IsActive    bool       `json:"isActive"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	LastLoginAt *time.Time `json:"lastLoginAt"`
}

// ProfileUpdate holds optional profile changes. Nil fields are left as is.
type ProfileUpdate struct {
	Email     *string `json:"email" validate:"omitempty,email"`
	FirstName *string `json:"firstName" validate:"omitempty,min=1,max=50,personname"`
	LastName  *string `json:"lastName" validate:"omitempty,min=1,max=50,personname"`
	StudentID *string `json:"studentId" validate:"omitempty,min=6,max=20,alphanum"`
}

// EnrollmentInfo is the enrollment summary attached to an enrolled course.
type EnrollmentInfo struct {
	EnrolledAt time.Time `json:"enrolledAt"`
	IsActive   bool      `json:"isActive"`
}

// EnrolledCourse is a course together with the student's aggregate progress.
type EnrolledCourse struct {
	courses.Course
	Progress   *courses.Progress `json:"progress"`
	Enrollment EnrollmentInfo    `json:"enrollment"`
}

// EnrolledPage is a page of enrolled courses.
type EnrolledPage struct {
	Data       []EnrolledCourse  `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

// Grade is a graded submission with the weight of its assignment.
type Grade struct {
	Points              float64
	MaxPoints           float64
	AssignmentMaxPoints float64
}

// Percentage returns the score as a percentage of the grade's own maximum.
func (g Grade) Percentage() float64 {
	if g.MaxPoints <= 0 {
		return 0
	}
	return g.Points / g.MaxPoints * 100
}
