package courses

import (
	"time"

	"github.com/studentlms/lms/internal/shared"
)

// Course is a catalogue entry.
type Course struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	CourseCode      string     `json:"courseCode"`
	StartDate       *time.Time `json:"startDate,omitempty"`
	EndDate         *time.Time `json:"endDate,omitempty"`
	IsActive        bool       `json:"isActive"`
	TeacherID       string     `json:"teacherId"`
	Teacher         *Teacher   `json:"teacher,omitempty"`
	EnrollmentCount int        `json:"enrollmentCount"`
	Modules         []Module   `json:"modules,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// Teacher is the instructor name attached to a course.
type Teacher struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Module groups ordered lessons inside a course.
type Module struct {
	ID       string   `json:"id"`
	CourseID string   `json:"courseId"`
	Title    string   `json:"title"`
	Order    int      `json:"order"`
	Lessons  []Lesson `json:"lessons"`
}

// Lesson is the unit of progress tracking.
type Lesson struct {
	ID                string `json:"id"`
	ModuleID          string `json:"moduleId"`
	CourseID          string `json:"courseId"`
	Title             string `json:"title"`
	Content           string `json:"content,omitempty"`
	Order             int    `json:"order"`
	EstimatedDuration *int   `json:"estimatedDuration,omitempty"`
	IsActive          bool   `json:"isActive"`
}

// Material is a resource attached to a lesson.
type Material struct {
	ID        string      `json:"id"`
	LessonID  string      `json:"lessonId"`
	Title     string      `json:"title"`
	Type      string      `json:"type"`
	URL       *string     `json:"url"`
	FilePath  *string     `json:"filePath"`
	Order     int         `json:"order"`
	IsActive  bool        `json:"isActive"`
	CreatedAt time.Time   `json:"createdAt"`
	Lesson    MaterialRef `json:"lesson"`
}

// MaterialRef names the lesson and module a material belongs to.
type MaterialRef struct {
	Title  string `json:"title"`
	Module struct {
		Title string `json:"title"`
	} `json:"module"`
}

// Enrollment links a student to a course.
type Enrollment struct {
	StudentID  string    `json:"studentId"`
	CourseID   string    `json:"courseId"`
	IsActive   bool      `json:"isActive"`
	EnrolledAt time.Time `json:"enrolledAt"`
}

// Progress is a per-lesson record, or the course aggregate when LessonID is nil.
type Progress struct {
	ID                   string     `json:"id"`
	StudentID            string     `json:"studentId"`
	CourseID             string     `json:"courseId"`
	LessonID             *string    `json:"lessonId"`
	CompletionPercentage float64    `json:"completionPercentage"`
	LastAccessed         time.Time  `json:"lastAccessed"`
	CompletedAt          *time.Time `json:"completedAt"`
	Lesson               *LessonRef `json:"lesson,omitempty"`
}

// IsAggregate reports whether p is the course-level record.
func (p Progress) IsAggregate() bool {
	return p.LessonID == nil
}

// LessonRef is the lesson summary attached to progress listings.
type LessonRef struct {
	Title    string `json:"title"`
	ModuleID string `json:"moduleId"`
}

// SearchResult is a page of courses.
type SearchResult struct {
	Data       []Course          `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}
