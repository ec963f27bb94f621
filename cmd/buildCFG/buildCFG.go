package buildCFG

import (
	"fmt"
	"time"

	"attendly/internal/mailer"
	"attendly/internal/schedule"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"
)

type ServerConfig struct {
	Port string
}

type RabbitConfig struct {
	Url      string
	Exchange string
	Queue    string
}

func BuildServerConfig(cfg *config.Config, log *zerolog.Logger) ServerConfig {
	port := cfg.GetString("server.port")
	if port == "" {
		port = "8080"
	}
	log.Info().Msgf("server will listen on port %s", port)
	return ServerConfig{Port: port}
}

func BuildDBConfig(cfg *config.Config, log *zerolog.Logger) (string, []string, *dbpg.Options, error) {
	masterDSN := cfg.GetString("database.master_dsn")
	if masterDSN == "" {
		return "", nil, nil, fmt.Errorf("database.master_dsn is required")
	}
	slaveDSNs := cfg.GetStringSlice("database.slave_dsns")

	opts := &dbpg.Options{
		MaxOpenConns:    cfg.GetInt("database.max_open_conns"),
		MaxIdleConns:    cfg.GetInt("database.max_idle_conns"),
		ConnMaxLifetime: time.Duration(cfg.GetInt("database.conn_max_lifetime_minutes")) * time.Minute,
	}

	log.Info().Msgf("database config built (slaves: %d)", len(slaveDSNs))
	return masterDSN, slaveDSNs, opts, nil
}

func BuildRabbitConfig(cfg *config.Config, log *zerolog.Logger) (RabbitConfig, error) {
	rc := RabbitConfig{
		Url:      cfg.GetString("rabbit.url"),
		Exchange: cfg.GetString("rabbit.exchange"),
		Queue:    cfg.GetString("rabbit.queue"),
	}
	if rc.Url == "" || rc.Exchange == "" || rc.Queue == "" {
		return RabbitConfig{}, fmt.Errorf("rabbit.url, rabbit.exchange and rabbit.queue are required")
	}
	log.Info().Msgf("rabbit config built (exchange=%s, queue=%s)", rc.Exchange, rc.Queue)
	return rc, nil
}

// BuildScheduleConfig parses the session list into the selector's
// static schedule. Timestamps are RFC 3339 and must already be sorted
// ascending; the selector never sorts.
func BuildScheduleConfig(cfg *config.Config, log *zerolog.Logger) (schedule.Schedule, error) {
	tz := cfg.GetString("schedule.timezone")
	if tz == "" {
		return schedule.Schedule{}, fmt.Errorf("schedule.timezone is required")
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return schedule.Schedule{}, fmt.Errorf("invalid schedule.timezone %q: %w", tz, err)
	}

	raw := cfg.GetStringSlice("schedule.sessions")
	sessions := make([]time.Time, 0, len(raw))
	for _, s := range raw {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return schedule.Schedule{}, fmt.Errorf("invalid session timestamp %q: %w", s, err)
		}
		sessions = append(sessions, t)
	}

	sch := schedule.Schedule{
		Sessions: sessions,
		Capacity: cfg.GetInt("schedule.capacity"),
		Location: loc,
	}
	if err := sch.Validate(); err != nil {
		return schedule.Schedule{}, err
	}

	log.Info().Msgf("schedule config built (%d sessions, capacity %d)", len(sessions), sch.Capacity)
	return sch, nil
}

func BuildMailerConfig(cfg *config.Config, log *zerolog.Logger) (mailer.Config, error) {
	mc := mailer.Config{
		Addr:       cfg.GetString("mailer.addr"),
		Host:       cfg.GetString("mailer.host"),
		From:       cfg.GetString("mailer.from"),
		Password:   cfg.GetString("mailer.password"),
		StaffEmail: cfg.GetString("mailer.staff_email"),
	}
	if mc.Addr == "" || mc.From == "" || mc.StaffEmail == "" {
		return mailer.Config{}, fmt.Errorf("mailer.addr, mailer.from and mailer.staff_email are required")
	}
	log.Info().Msgf("mailer config built (staff=%s)", mc.StaffEmail)
	return mc, nil
}
