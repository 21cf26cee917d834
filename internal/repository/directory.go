package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/tuitora/tuitora-gateway/internal/model"
)

// Directory is the read-only school data the USSD menu consults.
// A lookup that finds nothing returns nil (or an empty slice) and no error.
type Directory interface {
	StudentsByGuardianPhone(ctx context.Context, phone string) ([]model.Student, error)
	Attendance(ctx context.Context, student model.Student, from, to time.Time) (*model.AttendanceSummary, error)
	Fees(ctx context.Context, student model.Student) (*model.FeeStatement, error)
	SchoolContact(ctx context.Context, phone string) (*model.SchoolContact, error)
}

// DirectoryRepository reads guardians, students, attendance and fees from MySQL.
type DirectoryRepository struct {
	db *sqlx.DB
}

func NewDirectoryRepository(db *sqlx.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

var _ Directory = (*DirectoryRepository)(nil)

// StudentsByGuardianPhone lists active students linked to the guardian, in a
// stable order so menu numbering does not change between callbacks.
func (r *DirectoryRepository) StudentsByGuardianPhone(ctx context.Context, phone string) ([]model.Student, error) {
	var rows []model.Student
	err := r.db.SelectContext(ctx, &rows, `
		SELECT s.id, s.school_id, s.admission_no, s.first_name, s.last_name, s.class_name
		  FROM students s
		  JOIN student_guardians sg ON sg.student_id = s.id
		  JOIN guardians g          ON g.id = sg.guardian_id
		 WHERE g.phone = ? AND s.status = 'active'
		 ORDER BY s.first_name, s.id
	`, phone)
	if err != nil {
		return nil, fmt.Errorf("students by guardian: %w", err)
	}
	return rows, nil
}

// Attendance summarises register marks in [from, to].
func (r *DirectoryRepository) Attendance(ctx context.Context, student model.Student, from, to time.Time) (*model.AttendanceSummary, error) {
	var counts []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	err := r.db.SelectContext(ctx, &counts, `
		SELECT status, COUNT(*) AS n
		  FROM attendance_records
		 WHERE student_id = ? AND marked_on BETWEEN ? AND ?
		 GROUP BY status
	`, student.ID, from, to)
	if err != nil {
		return nil, fmt.Errorf("attendance counts: %w", err)
	}

	sum := model.AttendanceSummary{Student: student, From: from, To: to}
	for _, c := range counts {
		switch model.AttendanceStatus(c.Status) {
		case model.AttendancePresent:
			sum.Present = c.N
		case model.AttendanceAbsent:
			sum.Absent = c.N
		case model.AttendanceLate:
			sum.Late = c.N
		}
	}
	if sum.Total() == 0 {
		return nil, nil
	}

	var last struct {
		Status   string    `db:"status"`
		MarkedOn time.Time `db:"marked_on"`
	}
	err = r.db.GetContext(ctx, &last, `
		SELECT status, marked_on
		  FROM attendance_records
		 WHERE student_id = ? AND marked_on <= ?
		 ORDER BY marked_on DESC
		 LIMIT 1
	`, student.ID, to)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("attendance last mark: %w", err)
	}
	sum.LastStatus = model.AttendanceStatus(last.Status)
	sum.LastDate = last.MarkedOn

	return &sum, nil
}

// Fees returns the statement for the student's most recent term.
func (r *DirectoryRepository) Fees(ctx context.Context, student model.Student) (*model.FeeStatement, error) {
	var row struct {
		Term     string       `db:"term"`
		Billed   int64        `db:"billed"`
		Paid     int64        `db:"paid"`
		Currency string       `db:"currency"`
		DueDate  sql.NullTime `db:"due_date"`
	}
	err := r.db.GetContext(ctx, &row, `
		SELECT f.term, f.billed, COALESCE(SUM(p.amount), 0) AS paid, f.currency, f.due_date
		  FROM fee_accounts f
		  LEFT JOIN fee_payments p ON p.fee_account_id = f.id AND p.status = 'completed'
		 WHERE f.student_id = ?
		 GROUP BY f.id, f.term, f.billed, f.currency, f.due_date, f.term_start
		 ORDER BY f.term_start DESC
		 LIMIT 1
	`, student.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fee statement: %w", err)
	}

	st := &model.FeeStatement{
		Student:  student,
		Term:     row.Term,
		Billed:   row.Billed,
		Paid:     row.Paid,
		Currency: row.Currency,
	}
	if row.DueDate.Valid {
		d := row.DueDate.Time
		st.DueDate = &d
	}
	return st, nil
}

// SchoolContact returns the school of the guardian's first linked student.
func (r *DirectoryRepository) SchoolContact(ctx context.Context, phone string) (*model.SchoolContact, error) {
	var c model.SchoolContact
	err := r.db.GetContext(ctx, &c, `
		SELECT sc.id, sc.name, sc.phone, sc.email, sc.address
		  FROM schools sc
		  JOIN students s           ON s.school_id = sc.id
		  JOIN student_guardians sg ON sg.student_id = s.id
		  JOIN guardians g          ON g.id = sg.guardian_id
		 WHERE g.phone = ?
		 ORDER BY s.first_name, s.id
		 LIMIT 1
	`, phone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("school contact: %w", err)
	}
	return &c, nil
}
