// Package ldap looks up sender candidates in an LDAP directory by surname.
package ldap

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	goldap "github.com/go-ldap/ldap/v3"

	"github.com/C0nstantin/mailrelay/errors"
	"github.com/C0nstantin/mailrelay/log"
)

const DefaultTimeout = 10 * time.Second

var attributes = []string{"cn", "mail", "sn"}

// Candidate is one directory entry offered as a mail sender.
type Candidate struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Surname     string `json:"surname"`
}

type Config struct {
	Host          string        `yaml:"host" env:"LDAP_HOST" env-description:"LDAP host, empty disables sender selection"`
	Port          int           `yaml:"port" env:"LDAP_PORT" env-default:"389"`
	TLS           bool          `yaml:"tls" env:"LDAP_TLS" env-default:"false" env-description:"use ldaps://"`
	BaseDN        string        `yaml:"base_dn" env:"LDAP_BASE_DN"`
	BindUser      string        `yaml:"bind_user" env:"LDAP_BIND_USER" env-description:"bind DN, empty for anonymous search"`
	BindPassword  string        `yaml:"bind_password" env:"LDAP_BIND_PASSWORD"`
	CaseSensitive bool          `yaml:"case_sensitive" env:"LDAP_CASE_SENSITIVE" env-default:"false" env-description:"drop entries whose sn differs from the query in case"`
	Timeout       time.Duration `yaml:"timeout" env:"LDAP_TIMEOUT" env-default:"10s"`
}

func (c Config) Enabled() bool { return c.Host != "" }

func (c Config) URL() string {
	scheme := "ldap"
	if c.TLS {
		scheme = "ldaps"
	}
	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(c.Host, strconv.Itoa(c.Port)))
}

// conn is the part of *ldap.Conn a lookup needs.
type conn interface {
	Bind(username, password string) error
	Search(req *goldap.SearchRequest) (*goldap.SearchResult, error)
}

type dialFunc func(ctx context.Context) (conn, func(), error)

// Directory opens a fresh connection for every lookup.
type Directory struct {
	cfg    Config
	limit  int
	dial   dialFunc
	logger log.Logger
}

// NewDirectory returns a Directory that asks the server for at most limit
// entries; 0 means no limit.
func NewDirectory(cfg Config, limit int, logger log.Logger) *Directory {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	d := &Directory{cfg: cfg, limit: limit, logger: logger}
	d.dial = d.dialServer
	return d
}

func (d *Directory) dialServer(ctx context.Context) (conn, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, errors.E(err)
	}
	c, err := goldap.DialURL(d.cfg.URL(),
		goldap.DialWithDialer(&net.Dialer{Timeout: d.cfg.Timeout}),
		goldap.DialWithTLSConfig(&tls.Config{ServerName: d.cfg.Host, MinVersion: tls.VersionTLS12}),
	)
	if err != nil {
		return nil, nil, errors.Er(err, "dial %s", d.cfg.URL())
	}
	c.SetTimeout(d.cfg.Timeout)
	return c, func() { c.Close() }, nil
}

// Filter is the search filter used for surname.
func Filter(surname string) string {
	return fmt.Sprintf("(&(objectClass=person)(sn=%s))", goldap.EscapeFilter(surname))
}

// FindBySurname returns the people whose surname matches, in directory order.
// Errors are logged and reported as an empty result.
func (d *Directory) FindBySurname(ctx context.Context, surname string) []Candidate {
	found, err := d.Lookup(ctx, surname)
	if err != nil {
		d.logger.WithField("surname", surname).Errorf("ldap lookup failed: %s", err)
		return []Candidate{}
	}
	return found
}

// Lookup is FindBySurname with the error returned instead of logged.
func (d *Directory) Lookup(ctx context.Context, surname string) ([]Candidate, error) {
	c, closeConn, err := d.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer closeConn()

	if d.cfg.BindUser != "" {
		if err := c.Bind(d.cfg.BindUser, d.cfg.BindPassword); err != nil {
			return nil, errors.Er(err, "bind as %s", d.cfg.BindUser)
		}
	}

	req := goldap.NewSearchRequest(
		d.cfg.BaseDN,
		goldap.ScopeWholeSubtree,
		goldap.NeverDerefAliases,
		d.limit,
		int(d.cfg.Timeout/time.Second),
		false,
		Filter(surname),
		attributes,
		nil,
	)
	res, err := c.Search(req)
	truncated := false
	switch {
	case err == nil:
	case goldap.IsErrorWithCode(err, goldap.LDAPResultSizeLimitExceeded) && res != nil:
		d.logger.Debugf("ldap size limit %d reached for %q", d.limit, surname)
		truncated = true
	default:
		return nil, errors.Er(err, "search %s in %s", req.Filter, d.cfg.BaseDN)
	}

	// A truncated result is returned unfiltered: filtering it could shrink
	// an oversized answer into a list that looks complete.
	filter := d.cfg.CaseSensitive && !truncated
	out := make([]Candidate, 0, len(res.Entries))
	for _, e := range res.Entries {
		cand := Candidate{
			DisplayName: e.GetAttributeValue("cn"),
			Email:       e.GetAttributeValue("mail"),
			Surname:     e.GetAttributeValue("sn"),
		}
		if filter && cand.Surname != surname {
			continue
		}
		out = append(out, cand)
	}
	d.logger.Debugf("ldap lookup %q returned %d entries", surname, len(out))
	return out, nil
}
