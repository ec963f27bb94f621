package mailer

import (
	"fmt"
	"net/smtp"

	"github.com/rs/zerolog"
)

// Config carries the SMTP settings and the staff address that receives
// attendance notifications. There is no student address to mail: the
// apply form never collects one.
type Config struct {
	Addr       string
	Host       string
	From       string
	Password   string
	StaffEmail string
}

func SendAttendanceEmail(log *zerolog.Logger, cfg Config, action, studentID, attendDate string) error {
	var subject, body string
	switch action {
	case "applied":
		subject = fmt.Sprintf("New attendance registration for %s", attendDate)
		body = fmt.Sprintf("Student %s registered to attend the %s session in person.", studentID, attendDate)
	case "canceled":
		subject = fmt.Sprintf("Attendance registration canceled for %s", attendDate)
		body = fmt.Sprintf("Student %s canceled their registration for the %s session.", studentID, attendDate)
	default:
		return fmt.Errorf("unknown attendance action %q", action)
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		cfg.From, cfg.StaffEmail, subject, body,
	)

	auth := smtp.PlainAuth("", cfg.From, cfg.Password, cfg.Host)

	if err := smtp.SendMail(cfg.Addr, auth, cfg.From, []string{cfg.StaffEmail}, []byte(msg)); err != nil {
		log.Warn().Msgf("failed to send staff notification to %s: %v", cfg.StaffEmail, err)
		return fmt.Errorf("send email: %w", err)
	}

	log.Info().Msgf("staff notification sent to %s (action: %s)", cfg.StaffEmail, action)
	return nil
}
