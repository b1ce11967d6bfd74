package app

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/C0nstantin/mailrelay/errors"
	"github.com/C0nstantin/mailrelay/errors/notificator"
	"github.com/C0nstantin/mailrelay/transport/ldap"
	"github.com/C0nstantin/mailrelay/transport/rabbitmq"
	"github.com/C0nstantin/mailrelay/transport/smtp"
	"github.com/C0nstantin/mailrelay/transport/telegram"
)

var emailRe = regexp.MustCompile(`^[^@]+@[^@]+\.[^@]+$`)

type Config struct {
	SMTP     smtp.Config        `yaml:"smtp"`
	LDAP     ldap.Config        `yaml:"ldap"`
	Telegram telegram.Config    `yaml:"telegram"`
	RabbitMQ rabbitmq.Config    `yaml:"rabbitmq"`
	Errbit   notificator.Config `yaml:"errbit"`

	Recipient     string        `yaml:"recipient" env:"RECIPIENT" env-description:"address every message is relayed to"`
	SessionTTL    time.Duration `yaml:"session_ttl" env:"SESSION_TTL" env-default:"15m" env-description:"idle time before a selection expires, 0 keeps it forever"`
	MetricsListen string        `yaml:"metrics_listen" env:"METRICS_LISTEN" env-description:"address for /metrics and /ping, empty disables"`
	LogLevel      string        `yaml:"log_level" env:"LOG_LEVEL" env-description:"trace, debug, info, warn or error"`
}

// ConfigurationError lists every problem found by Validate.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Validate checks cfg and returns non-fatal warnings alongside a
// *ConfigurationError when anything is wrong.
func (c Config) Validate() (warnings []string, err error) {
	var problems []string
	required := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			problems = append(problems, name+" is required")
		}
	}
	email := func(name, value string) {
		if strings.TrimSpace(value) != "" && !emailRe.MatchString(value) {
			problems = append(problems, fmt.Sprintf("%s %q is not an email address", name, value))
		}
	}
	port := func(name string, value int) {
		if value < 1 || value > 65535 {
			problems = append(problems, fmt.Sprintf("%s %d is out of range 1..65535", name, value))
		}
	}

	required("SMTP_SERVER", c.SMTP.Host)
	port("SMTP_PORT", c.SMTP.Port)
	required("EMAIL", c.SMTP.Username)
	email("EMAIL", c.SMTP.Username)
	required("PASSWORD", c.SMTP.Password)
	required("RECIPIENT", c.Recipient)
	email("RECIPIENT", c.Recipient)
	required("TELEGRAM_TOKEN", c.Telegram.Token)

	if c.LDAP.Enabled() {
		port("LDAP_PORT", c.LDAP.Port)
		required("LDAP_BASE_DN", c.LDAP.BaseDN)
	}
	if c.SessionTTL < 0 {
		problems = append(problems, "SESSION_TTL must not be negative")
	}
	if c.Telegram.Workers < 1 {
		problems = append(problems, "TELEGRAM_WORKERS must be at least 1")
	}

	if c.SMTP.Port != 465 && c.SMTP.Port != 587 {
		warnings = append(warnings, fmt.Sprintf("SMTP_PORT %d is neither 465 nor 587, the connection will not be encrypted", c.SMTP.Port))
	}
	if c.Errbit.Host != "" && c.Errbit.ProjectKey == "" {
		warnings = append(warnings, "ERRBIT_HOST is set without ERRBIT_PROJECT_KEY, error reporting is off")
	}

	if len(problems) > 0 {
		return warnings, errors.E(&ConfigurationError{Problems: problems})
	}
	return warnings, nil
}
