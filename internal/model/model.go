package model

import "time"

// Registration is one row of the apply table. SecretHash holds a bcrypt
// hash of the student's 4-digit PIN; the PIN itself is never stored.
type Registration struct {
	AID         int64     `db:"aid" json:"aid"`
	StudentName string    `db:"sname" json:"student_name"`
	StudentID   string    `db:"sid" json:"student_id"`
	AttendDate  string    `db:"attend_date" json:"attend_date"`
	AppliedAt   time.Time `db:"apply_timestamp" json:"applied_at"`
	SecretHash  string    `db:"secret" json:"-"`
	Canceled    bool      `db:"canceled" json:"canceled"`
}
