package model

import (
	"strings"
	"time"
)

// School is a tenant. Its API key authenticates outbound SMS calls.
type School struct {
	ID           int64     `db:"id"`
	Name         string    `db:"name"`
	APIKey       string    `db:"api_key"`
	Status       string    `db:"status"`         // active|suspended
	RateLimitRPS *int      `db:"rate_limit_rps"` // nullable
	Phone        string    `db:"phone"`
	Email        string    `db:"email"`
	Address      string    `db:"address"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

type Student struct {
	ID          int64  `db:"id"           json:"id"`
	SchoolID    int64  `db:"school_id"    json:"school_id"`
	AdmissionNo string `db:"admission_no" json:"admission_no"`
	FirstName   string `db:"first_name"   json:"first_name"`
	LastName    string `db:"last_name"    json:"last_name"`
	ClassName   string `db:"class_name"   json:"class_name"`
}

func (s Student) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceLate    AttendanceStatus = "late"
)

// AttendanceSummary aggregates a student's register marks over a window.
type AttendanceSummary struct {
	Student    Student
	From       time.Time
	To         time.Time
	Present    int
	Absent     int
	Late       int
	LastStatus AttendanceStatus
	LastDate   time.Time
}

func (a AttendanceSummary) Total() int { return a.Present + a.Absent + a.Late }

// FeeStatement amounts are in minor currency units.
type FeeStatement struct {
	Student  Student
	Term     string
	Billed   int64
	Paid     int64
	Currency string
	DueDate  *time.Time
}

func (f FeeStatement) Balance() int64 { return f.Billed - f.Paid }

type SchoolContact struct {
	SchoolID int64  `db:"id"`
	Name     string `db:"name"`
	Phone    string `db:"phone"`
	Email    string `db:"email"`
	Address  string `db:"address"`
}

// Empty reports whether there is nothing to show for the contact.
func (c SchoolContact) Empty() bool {
	return strings.TrimSpace(c.Name+c.Phone+c.Email+c.Address) == ""
}
