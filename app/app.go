// Package app wires the configured components together and runs them.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/C0nstantin/mailrelay/errors"
	"github.com/C0nstantin/mailrelay/errors/notificator"
	"github.com/C0nstantin/mailrelay/log"
	"github.com/C0nstantin/mailrelay/metrics"
	"github.com/C0nstantin/mailrelay/selection"
	"github.com/C0nstantin/mailrelay/serve"
	"github.com/C0nstantin/mailrelay/session"
	"github.com/C0nstantin/mailrelay/transport/ldap"
	"github.com/C0nstantin/mailrelay/transport/rabbitmq"
	"github.com/C0nstantin/mailrelay/transport/smtp"
	"github.com/C0nstantin/mailrelay/transport/telegram"
	"github.com/C0nstantin/mailrelay/utils"
)

type App struct {
	cfg       Config
	logger    log.Logger
	store     *session.Store
	metrics   *metrics.Metrics
	protocol  *selection.Protocol
	bot       *telegram.Bot
	http      *serve.HTTPServe
	publisher *rabbitmq.EventsTransportImpl
	notifier  notificator.Notificator
}

// New builds every component. cfg must already be validated.
func New(cfg Config) (*App, error) {
	if cfg.LogLevel != "" {
		log.SetLevel(cfg.LogLevel)
	}
	a := &App{
		cfg:      cfg,
		logger:   log.NewLogger("app"),
		store:    session.NewStore(cfg.SessionTTL),
		metrics:  metrics.New(),
		notifier: notificator.New(cfg.Errbit),
	}

	var opts []selection.Option
	if cfg.RabbitMQ.Enabled() {
		publisher, err := rabbitmq.NewRQTransport(cfg.RabbitMQ)
		if err != nil {
			return nil, err
		}
		a.publisher = publisher
		opts = append(opts, selection.WithPublisher(publisher))
	}

	relay := smtp.NewRelay(cfg.SMTP, log.NewLogger("smtp"))
	a.protocol = newProtocol(cfg, &notifyingSender{Sender: relay, notifier: a.notifier}, a.store, a.metrics, opts...)

	bot, err := telegram.New(cfg.Telegram, a.protocol, log.NewLogger("telegram"))
	if err != nil {
		a.closePublisher()
		return nil, err
	}
	bot.SetNotifier(a.notifier)
	a.bot = bot

	if cfg.MetricsListen != "" {
		a.http = newHTTP(cfg.MetricsListen, a.metrics, a.publisher, a.notifier)
	}
	return a, nil
}

func newProtocol(cfg Config, relay smtp.Sender, store *session.Store, m *metrics.Metrics, opts ...selection.Option) *selection.Protocol {
	logger := log.NewLogger("selection")
	var dir selection.Directory
	if cfg.LDAP.Enabled() {
		dir = ldap.NewDirectory(cfg.LDAP, selection.DefaultMaxCandidates+1, log.NewLogger("ldap"))
		logger.Infof("sender selection through %s", cfg.LDAP.URL())
	} else {
		logger.Infof("LDAP_HOST is empty, relaying directly from %s", cfg.SMTP.Username)
	}
	opts = append([]selection.Option{selection.WithRecorder(m), selection.WithLogger(logger)}, opts...)
	return selection.New(selection.Config{
		Recipient:    cfg.Recipient,
		DirectSender: cfg.SMTP.Username,
	}, dir, relay, store, opts...)
}

func newHTTP(listen string, m *metrics.Metrics, publisher *rabbitmq.EventsTransportImpl, notifier serve.Notificator) *serve.HTTPServe {
	checks := map[string]func() error{}
	if publisher != nil {
		checks["rabbitmq"] = publisher.Healthy
	}
	s := &serve.HTTPServe{
		Listen: listen,
		Logger: log.NewLogger("serve"),
		Controllers: map[string]serve.Controller{
			"/metrics": &serve.HandlerController{Handler: m.Handler()},
			"/health":  &serve.HealthController{Checks: checks},
		},
		Middleware: []serve.Middleware{&serve.DefaultErrorHandler{Logger: log.NewLogger("serve"), Notifier: notifier}},
	}
	s.Init()
	return s
}

// Run blocks until ctx is done or a component fails.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer utils.RecoverAndNotify(a.notifier)
		a.store.Run(ctx, sweepInterval(a.cfg.SessionTTL), a.metrics.Sessions)
	}()

	if a.http != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.http.Run(ctx); err != nil {
				errCh <- err
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.bot.Run(ctx); err != nil {
			errCh <- err
		}
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
		a.logger.Errorf("component failed: %s", err)
	}
	cancel()
	wg.Wait()
	return err
}

// Close releases the broker connection and flushes pending error reports.
func (a *App) Close() error {
	a.closePublisher()
	return errors.E(a.notifier.Close())
}

func (a *App) closePublisher() {
	if a.publisher != nil {
		utils.DeferCloseLog(a.publisher)
	}
}

func sweepInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	if i := ttl / 4; i > time.Second {
		return i
	}
	return time.Second
}

// notifyingSender reports unexpected relay failures to the error tracker.
type notifyingSender struct {
	smtp.Sender
	notifier notificator.Notificator
}

func (s *notifyingSender) Send(ctx context.Context, body, from, to string) smtp.Result {
	res := s.Sender.Send(ctx, body, from, to)
	if res.Kind == smtp.FailureUnexpected && res.Err != nil {
		s.notifier.Notify(errors.Er(res.Err, "relay from %s", from))
	}
	return res
}
