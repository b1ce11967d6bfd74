package ldap

import (
	"context"
	"fmt"
	"testing"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/C0nstantin/mailrelay/errors"
	"github.com/C0nstantin/mailrelay/log"
)

type fakeConn struct {
	bindErr   error
	bound     []string
	requests  []*goldap.SearchRequest
	result    *goldap.SearchResult
	searchErr error
	closed    bool
}

func (f *fakeConn) Bind(username, password string) error {
	f.bound = append(f.bound, username+":"+password)
	return f.bindErr
}

func (f *fakeConn) Search(req *goldap.SearchRequest) (*goldap.SearchResult, error) {
	f.requests = append(f.requests, req)
	return f.result, f.searchErr
}

func newTestDirectory(cfg Config, fc *fakeConn, dialErr error) *Directory {
	d := NewDirectory(cfg, 21, log.NewNopLogger())
	d.dial = func(ctx context.Context) (conn, func(), error) {
		if dialErr != nil {
			return nil, nil, dialErr
		}
		return fc, func() { fc.closed = true }, nil
	}
	return d
}

func entries(es ...*goldap.Entry) *goldap.SearchResult {
	return &goldap.SearchResult{Entries: es}
}

func person(cn, mail, sn string) *goldap.Entry {
	attrs := map[string][]string{}
	if cn != "" {
		attrs["cn"] = []string{cn}
	}
	if mail != "" {
		attrs["mail"] = []string{mail}
	}
	if sn != "" {
		attrs["sn"] = []string{sn}
	}
	return goldap.NewEntry("cn="+cn+",ou=people,dc=example,dc=com", attrs)
}

var baseCfg = Config{Host: "ldap.example.com", Port: 389, BaseDN: "dc=example,dc=com"}

func TestFindBySurname(t *testing.T) {
	t.Run("maps entries in directory order", func(t *testing.T) {
		fc := &fakeConn{result: entries(
			person("John Smith", "john@example.com", "Smith"),
			person("Anna Smith", "anna@example.com", "Smith"),
		)}
		d := newTestDirectory(baseCfg, fc, nil)

		got := d.FindBySurname(context.Background(), "Smith")
		assert.Equal(t, []Candidate{
			{DisplayName: "John Smith", Email: "john@example.com", Surname: "Smith"},
			{DisplayName: "Anna Smith", Email: "anna@example.com", Surname: "Smith"},
		}, got)
		require.Len(t, fc.requests, 1)
		req := fc.requests[0]
		assert.Equal(t, "dc=example,dc=com", req.BaseDN)
		assert.Equal(t, "(&(objectClass=person)(sn=Smith))", req.Filter)
		assert.Equal(t, []string{"cn", "mail", "sn"}, req.Attributes)
		assert.Equal(t, 21, req.SizeLimit)
		assert.Empty(t, fc.bound, "anonymous search must not bind")
		assert.True(t, fc.closed)
	})

	t.Run("missing attributes still produce a candidate", func(t *testing.T) {
		fc := &fakeConn{result: entries(person("No Mail", "", "Mail"))}
		got := newTestDirectory(baseCfg, fc, nil).FindBySurname(context.Background(), "Mail")
		assert.Equal(t, []Candidate{{DisplayName: "No Mail", Surname: "Mail"}}, got)
	})

	t.Run("zero entries", func(t *testing.T) {
		fc := &fakeConn{result: entries()}
		got := newTestDirectory(baseCfg, fc, nil).FindBySurname(context.Background(), "Nobody")
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("binds with configured credentials", func(t *testing.T) {
		cfg := baseCfg
		cfg.BindUser, cfg.BindPassword = "cn=reader,dc=example,dc=com", "secret"
		fc := &fakeConn{result: entries()}
		newTestDirectory(cfg, fc, nil).FindBySurname(context.Background(), "Smith")
		assert.Equal(t, []string{"cn=reader,dc=example,dc=com:secret"}, fc.bound)
	})

	t.Run("case sensitive filtering", func(t *testing.T) {
		cfg := baseCfg
		cfg.CaseSensitive = true
		fc := &fakeConn{result: entries(
			person("John Smith", "john@example.com", "Smith"),
			person("Jim SMITH", "jim@example.com", "SMITH"),
		)}
		got := newTestDirectory(cfg, fc, nil).FindBySurname(context.Background(), "Smith")
		require.Len(t, got, 1)
		assert.Equal(t, "john@example.com", got[0].Email)
	})

	t.Run("case sensitive filtering skipped when truncated", func(t *testing.T) {
		cfg := baseCfg
		cfg.CaseSensitive = true
		var es []*goldap.Entry
		for i := 0; i < 21; i++ {
			sn := "SMITH"
			if i%5 == 0 {
				sn = "Smith"
			}
			es = append(es, person(fmt.Sprintf("P%d %s", i, sn), fmt.Sprintf("p%d@example.com", i), sn))
		}
		fc := &fakeConn{
			result:    entries(es...),
			searchErr: goldap.NewError(goldap.LDAPResultSizeLimitExceeded, errors.New("size limit exceeded")),
		}
		got := newTestDirectory(cfg, fc, nil).FindBySurname(context.Background(), "Smith")
		assert.Len(t, got, 21, "still more than the 20 a user can choose from")
	})

	t.Run("size limit keeps partial entries", func(t *testing.T) {
		fc := &fakeConn{
			result:    entries(person("A B", "a@example.com", "B"), person("C B", "c@example.com", "B")),
			searchErr: goldap.NewError(goldap.LDAPResultSizeLimitExceeded, errors.New("size limit exceeded")),
		}
		got := newTestDirectory(baseCfg, fc, nil).FindBySurname(context.Background(), "B")
		assert.Len(t, got, 2)
	})
}

func TestFindBySurnameFailsSoftly(t *testing.T) {
	cases := []struct {
		name    string
		fc      *fakeConn
		dialErr error
	}{
		{"dial error", &fakeConn{}, errors.New("connection refused")},
		{"bind error", &fakeConn{bindErr: errors.New("invalid credentials")}, nil},
		{"search error", &fakeConn{searchErr: goldap.NewError(goldap.LDAPResultOperationsError, errors.New("boom"))}, nil},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := baseCfg
			cfg.BindUser = "cn=reader"
			d := newTestDirectory(cfg, c.fc, c.dialErr)

			got := d.FindBySurname(context.Background(), "Smith")
			assert.NotNil(t, got)
			assert.Empty(t, got)

			_, err := d.Lookup(context.Background(), "Smith")
			assert.Error(t, err)
		})
	}
}

func TestFilterEscapesInput(t *testing.T) {
	assert.Equal(t, `(&(objectClass=person)(sn=\2a\29\28uid=\2a))`, Filter("*)(uid=*"))
}

func TestConfigURL(t *testing.T) {
	assert.Equal(t, "ldap://ldap.example.com:389", baseCfg.URL())
	tlsCfg := baseCfg
	tlsCfg.TLS, tlsCfg.Port = true, 636
	assert.Equal(t, "ldaps://ldap.example.com:636", tlsCfg.URL())
	assert.False(t, Config{}.Enabled())
}

func TestDialHonoursCancelledContext(t *testing.T) {
	d := NewDirectory(baseCfg, 0, log.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Lookup(ctx, "Smith")
	assert.True(t, errors.Is(err, context.Canceled))
}
