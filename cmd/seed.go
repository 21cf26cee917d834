package cmd

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"github.com/tuitora/tuitora-gateway/internal/db"
	"github.com/tuitora/tuitora-gateway/internal/logger"
	"github.com/tuitora/tuitora-gateway/internal/model"
	"go.uber.org/zap"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed MySQL with a demo school, guardians, students, attendance and fees",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		sqlDB, err := db.NewMySQLConnection(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		logger.Log.Info("seeding demo data")

		tx, err := sqlDB.Beginx()
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() {
			_ = tx.Rollback()
		}()

		now := time.Now()
		for _, s := range demoSchools {
			if err := seedSchool(tx, s, now); err != nil {
				return err
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit seed: %w", err)
		}
		logger.Log.Info("seed completed", zap.Int("schools", len(demoSchools)))
		return nil
	},
}

type demoGuardian struct {
	first, last, phone string
	children           []string // admission numbers
}

type demoStudent struct {
	admissionNo, first, last, class string
	billed, paid                    int64
}

type demoSchool struct {
	school    model.School
	students  []demoStudent
	guardians []demoGuardian
}

// Guardian phones are stored in the normalized +<digits> form the USSD
// provider sends.
var demoSchools = []demoSchool{
	{
		school: model.School{
			Name:         "Tuitora Demo Academy",
			APIKey:       "11111111111111111111111111111111",
			Status:       "active",
			RateLimitRPS: intptr(20),
			Phone:        "+254700000001",
			Email:        "office@demo-academy.example",
			Address:      "P.O. Box 100, Nairobi",
		},
		students: []demoStudent{
			{"DA-001", "Amani", "Otieno", "Grade 4 East", 1500000, 1500000},
			{"DA-002", "Baraka", "Otieno", "Grade 7 West", 1800000, 900000},
			{"DA-003", "Neema", "Wanjiru", "Grade 2 North", 1200000, 0},
		},
		guardians: []demoGuardian{
			{"Grace", "Otieno", "+254711000001", []string{"DA-001", "DA-002"}},
			{"Peter", "Wanjiru", "+254711000002", []string{"DA-003"}},
		},
	},
	{
		school: model.School{
			Name:    "Hillside Primary",
			APIKey:  "22222222222222222222222222222222",
			Status:  "suspended",
			Phone:   "+254700000002",
			Email:   "admin@hillside.example",
			Address: "Kisumu",
		},
	},
}

func seedSchool(tx *sqlx.Tx, s demoSchool, now time.Time) error {
	// idempotent upsert based on api_key (UNIQUE); LAST_INSERT_ID(id) makes
	// the existing id available on update.
	res, err := tx.Exec(`
INSERT INTO schools
    (name, api_key, status, rate_limit_rps, phone, email, address, created_at, updated_at)
VALUES
    (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    id             = LAST_INSERT_ID(id),
    name           = VALUES(name),
    status         = VALUES(status),
    rate_limit_rps = VALUES(rate_limit_rps),
    phone          = VALUES(phone),
    email          = VALUES(email),
    address        = VALUES(address),
    updated_at     = VALUES(updated_at)
`, s.school.Name, s.school.APIKey, s.school.Status, s.school.RateLimitRPS,
		s.school.Phone, s.school.Email, s.school.Address, now, now)
	if err != nil {
		return fmt.Errorf("insert school %q: %w", s.school.Name, err)
	}
	schoolID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("school id %q: %w", s.school.Name, err)
	}

	studentIDs := make(map[string]int64, len(s.students))
	for i, st := range s.students {
		id, err := upsertID(tx, `
INSERT INTO students (school_id, admission_no, first_name, last_name, class_name)
VALUES (?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    id = LAST_INSERT_ID(id), first_name = VALUES(first_name),
    last_name = VALUES(last_name), class_name = VALUES(class_name), status = 'active'
`, schoolID, st.admissionNo, st.first, st.last, st.class)
		if err != nil {
			return fmt.Errorf("insert student %s: %w", st.admissionNo, err)
		}
		studentIDs[st.admissionNo] = id

		if err := seedAttendance(tx, id, i, now); err != nil {
			return err
		}
		if err := seedFees(tx, id, st, now); err != nil {
			return err
		}
	}

	for _, g := range s.guardians {
		gid, err := upsertID(tx, `
INSERT INTO guardians (school_id, first_name, last_name, phone)
VALUES (?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    id = LAST_INSERT_ID(id), first_name = VALUES(first_name), last_name = VALUES(last_name)
`, schoolID, g.first, g.last, g.phone)
		if err != nil {
			return fmt.Errorf("insert guardian %s: %w", g.phone, err)
		}
		for _, adm := range g.children {
			if _, err := tx.Exec(
				`INSERT IGNORE INTO student_guardians (student_id, guardian_id) VALUES (?, ?)`,
				studentIDs[adm], gid); err != nil {
				return fmt.Errorf("link guardian %s to %s: %w", g.phone, adm, err)
			}
		}
	}
	return nil
}

// seedAttendance marks every weekday of the last 30 days; offset varies the
// pattern per student.
func seedAttendance(tx *sqlx.Tx, studentID int64, offset int, now time.Time) error {
	const q = `
INSERT INTO attendance_records (student_id, marked_on, status)
VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE status = VALUES(status)
`
	day := now.AddDate(0, 0, -30)
	for n := 0; !day.After(now); day = day.AddDate(0, 0, 1) {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		status := model.AttendancePresent
		switch (n + offset) % 9 {
		case 4:
			status = model.AttendanceAbsent
		case 7:
			status = model.AttendanceLate
		}
		n++
		if _, err := tx.Exec(q, studentID, day.Format(time.DateOnly), string(status)); err != nil {
			return fmt.Errorf("insert attendance %d: %w", studentID, err)
		}
	}
	return nil
}

func seedFees(tx *sqlx.Tx, studentID int64, st demoStudent, now time.Time) error {
	termStart := time.Date(now.Year(), termMonth(now.Month()), 1, 0, 0, 0, 0, time.UTC)
	term := fmt.Sprintf("Term %d %d", (termStart.Month()-1)/4+1, termStart.Year())
	due := termStart.AddDate(0, 1, 0)

	accountID, err := upsertID(tx, `
INSERT INTO fee_accounts (student_id, term, term_start, billed, currency, due_date)
VALUES (?, ?, ?, ?, 'KES', ?)
ON DUPLICATE KEY UPDATE id = LAST_INSERT_ID(id), billed = VALUES(billed), due_date = VALUES(due_date)
`, studentID, term, termStart.Format(time.DateOnly), st.billed, due.Format(time.DateOnly))
	if err != nil {
		return fmt.Errorf("insert fee account %s: %w", st.admissionNo, err)
	}
	if st.paid <= 0 {
		return nil
	}
	if _, err := tx.Exec(`
INSERT INTO fee_payments (fee_account_id, amount, status, reference)
VALUES (?, ?, 'completed', ?)
ON DUPLICATE KEY UPDATE amount = VALUES(amount), status = VALUES(status)
`, accountID, st.paid, "SEED-"+st.admissionNo+"-"+term); err != nil {
		return fmt.Errorf("insert fee payment %s: %w", st.admissionNo, err)
	}
	return nil
}

// termMonth maps a month to the first month of its school term (Jan, May, Sep).
func termMonth(m time.Month) time.Month {
	return time.Month((int(m)-1)/4*4 + 1)
}

func upsertID(tx *sqlx.Tx, q string, args ...any) (int64, error) {
	res, err := tx.Exec(q, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func intptr(i int) *int { return &i }
