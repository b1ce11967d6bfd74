// Package selection drives the find -> choose sender -> write text -> relay
// dialog for each chat user.
package selection

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/C0nstantin/mailrelay/errors"
	"github.com/C0nstantin/mailrelay/log"
	"github.com/C0nstantin/mailrelay/sanitizer"
	"github.com/C0nstantin/mailrelay/session"
	"github.com/C0nstantin/mailrelay/transport/ldap"
	"github.com/C0nstantin/mailrelay/transport/smtp"
	"github.com/C0nstantin/mailrelay/types"
)

const (
	DefaultMaxCandidates   = 20
	DefaultMaxMessageRunes = 10000
)

// Directory finds sender candidates. Failures come back as an empty slice.
type Directory interface {
	FindBySurname(ctx context.Context, surname string) []ldap.Candidate
}

// Publisher receives an event for every relay attempt.
type Publisher interface {
	Publish(ctx context.Context, ev types.RelayEvent) error
}

// Recorder counts protocol outcomes.
type Recorder interface {
	Lookup(outcome string)
	Relay(kind smtp.Kind)
	Sessions(n int)
}

type Config struct {
	// Recipient gets every relayed message.
	Recipient string
	// DirectSender is the From address used when there is no Directory.
	DirectSender    string
	MaxCandidates   int
	MaxMessageRunes int
	Subject         string
}

type Protocol struct {
	cfg       Config
	dir       Directory
	relay     smtp.Sender
	store     *session.Store
	publisher Publisher
	recorder  Recorder
	logger    log.Logger
	now       func() time.Time
}

type Option func(*Protocol)

func WithPublisher(p Publisher) Option { return func(pr *Protocol) { pr.publisher = p } }

func WithRecorder(r Recorder) Option { return func(pr *Protocol) { pr.recorder = r } }

func WithLogger(l log.Logger) Option { return func(pr *Protocol) { pr.logger = l } }

// New builds the protocol. dir may be nil: then every text is relayed
// straight from cfg.DirectSender and /find is disabled.
func New(cfg Config, dir Directory, relay smtp.Sender, store *session.Store, opts ...Option) *Protocol {
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = DefaultMaxCandidates
	}
	if cfg.MaxMessageRunes <= 0 {
		cfg.MaxMessageRunes = DefaultMaxMessageRunes
	}
	if cfg.Subject == "" {
		cfg.Subject = smtp.DefaultSubject
	}
	p := &Protocol{
		cfg:       cfg,
		dir:       dir,
		relay:     relay,
		store:     store,
		publisher: nopPublisher{},
		recorder:  nopRecorder{},
		logger:    log.NewNopLogger(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Protocol) directMode() bool { return p.dir == nil }

func (p *Protocol) Start(ctx context.Context, userID int64) Reply {
	if p.directMode() {
		return text(msgStartDirect, p.cfg.Recipient)
	}
	return text(msgStart, p.cfg.Recipient)
}

func (p *Protocol) Help(ctx context.Context, userID int64) Reply {
	if p.directMode() {
		return text(msgHelpDirect, p.cfg.Recipient)
	}
	return text(msgHelp, p.cfg.Recipient)
}

// Find searches the directory. A non-empty result within the limit replaces
// any session the user had; otherwise the existing session is left alone.
func (p *Protocol) Find(ctx context.Context, userID int64, surname string) Reply {
	if p.directMode() {
		return text(msgDirectoryOff)
	}
	surname = sanitizer.Clean(surname)
	if surname == "" {
		return text(msgFindUsage)
	}

	found := p.dir.FindBySurname(ctx, surname)
	logger := p.logger.WithFields(map[string]interface{}{"user": userID, "surname": surname, "found": len(found)})
	switch {
	case len(found) == 0:
		p.recorder.Lookup(types.LookupNotFound)
		logger.Infof("lookup: nothing found")
		return text(msgNotFound, surname)
	case len(found) > p.cfg.MaxCandidates:
		p.recorder.Lookup(types.LookupTooMany)
		logger.Infof("lookup: too many results")
		return text(msgTooMany, p.cfg.MaxCandidates)
	}

	p.recorder.Lookup(types.LookupFound)
	p.store.Set(userID, session.NewAwaitingSelection(found))
	p.recorder.Sessions(p.store.Len())
	logger.Debugf("lookup: awaiting selection")
	return Reply{
		Text:    fmt.Sprintf(msgChoose, len(found)),
		Buttons: candidateButtons(found),
	}
}

// Select picks candidate index from the user's last lookup.
func (p *Protocol) Select(ctx context.Context, userID int64, index int) Reply {
	if p.directMode() {
		return text(msgDirectoryOff)
	}
	next, err := p.store.Update(userID, func(st session.State) (session.State, error) {
		candidates := st.Candidates()
		if index >= 0 && index < len(candidates) && strings.TrimSpace(candidates[index].Email) == "" {
			return nil, errNoEmail
		}
		switch s := st.(type) {
		case session.AwaitingSelection:
			return s.Choose(index)
		case session.AwaitingMessage:
			return s.Choose(index)
		}
		return nil, session.ErrInvalidSelection
	})

	logger := p.logger.WithFields(map[string]interface{}{"user": userID, "index": index})
	switch {
	case errors.Is(err, session.ErrNoSession):
		logger.Infof("select: session expired")
		return Reply{Text: msgExpired, Edit: true}
	case errors.Is(err, errNoEmail):
		return text(msgNoEmail, label(next.Candidates()[index]))
	case err != nil:
		logger.Warnf("select: %s", err)
		return text(msgInvalid)
	}

	sender := next.(session.AwaitingMessage).Sender()
	logger.Debugf("select: sender %s", sender.Email)
	return Reply{Text: fmt.Sprintf(msgChosen, label(sender)), Edit: true}
}

// Message relays text if the user has chosen a sender. The session is
// consumed before the relay starts, so a failed attempt needs a new /find.
func (p *Protocol) Message(ctx context.Context, userID int64, body string) Reply {
	if strings.TrimSpace(body) == "" {
		return text(msgAskText)
	}
	body = sanitizer.Truncate(body, p.cfg.MaxMessageRunes)

	if p.directMode() {
		res := p.send(ctx, userID, body, p.cfg.DirectSender)
		if !res.OK() {
			return text(msgFailedDirect)
		}
		return text(msgSentDirect)
	}

	st, ok := p.store.TakeMessage(userID)
	if !ok {
		return text(msgNeedFind)
	}
	p.recorder.Sessions(p.store.Len())

	sender := st.Sender().Email
	if res := p.send(ctx, userID, body, sender); !res.OK() {
		return text(msgFailed)
	}
	return text(msgSent, sender)
}

// Cancel drops whatever session the user has.
func (p *Protocol) Cancel(ctx context.Context, userID int64) Reply {
	if !p.store.Delete(userID) {
		return text(msgNothingToCancel)
	}
	p.recorder.Sessions(p.store.Len())
	return text(msgCancelled)
}

func (p *Protocol) send(ctx context.Context, userID int64, body, from string) smtp.Result {
	if log.IsDebug() {
		p.logger.Debugf("relay for user %d: %q", userID, sanitizer.Truncate(body, 100))
	}
	res := p.relay.Send(ctx, body, from, p.cfg.Recipient)
	p.recorder.Relay(res.Kind)

	ev := types.RelayEvent{
		ID:      uuid.NewString(),
		Time:    p.now(),
		UserID:  userID,
		From:    from,
		To:      p.cfg.Recipient,
		Subject: p.cfg.Subject,
		Outcome: res.Kind.String(),
	}
	if res.Err != nil {
		ev.Error = res.Err.Error()
	}
	if err := p.publisher.Publish(ctx, ev); err != nil {
		p.logger.WithField("event", ev.ID).Errorf("publish relay event: %s", err)
	}
	return res
}

var errNoEmail = errors.New("candidate has no email")

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, types.RelayEvent) error { return nil }

type nopRecorder struct{}

func (nopRecorder) Lookup(string)   {}
func (nopRecorder) Relay(smtp.Kind) {}
func (nopRecorder) Sessions(int)    {}
