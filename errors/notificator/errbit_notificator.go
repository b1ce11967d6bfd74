package notificator

import (
	"net/http"
	"net/url"
	"runtime"
	"strings"

	"github.com/airbrake/gobrake/v5"

	"github.com/C0nstantin/mailrelay/errors"
	"github.com/C0nstantin/mailrelay/log"
)

type Config struct {
	Host       string `yaml:"host" env:"ERRBIT_HOST" env-description:"Errbit/Airbrake host, empty disables reporting"`
	ProjectID  int64  `yaml:"project_id" env:"ERRBIT_PROJECT_ID"`
	ProjectKey string `yaml:"project_key" env:"ERRBIT_PROJECT_KEY"`
	Env        string `yaml:"env" env:"ENV" env-default:"development"`
	Proxy      string `yaml:"proxy" env:"ERRBIT_PROXY"`
}

func (c Config) Enabled() bool { return c.Host != "" && c.ProjectKey != "" }

type Notificator interface {
	Notify(err error)
	Close() error
}

// New returns an Errbit notificator, or one that drops everything when cfg
// is not enabled.
func New(cfg Config) Notificator {
	if !cfg.Enabled() {
		return nopNotificator{}
	}
	return NewErrbitNotificator(cfg)
}

type nopNotificator struct{}

func (nopNotificator) Notify(error) {}
func (nopNotificator) Close() error { return nil }

type errbitNotificator struct {
	Notifier *gobrake.Notifier
	async    bool
}

func (d errbitNotificator) Notify(err error) {
	if err == nil {
		return
	}
	if d.Notifier == nil {
		log.Errorf("notifier is nil")
		return
	}

	n := d.Notifier.Notice(err, nil, 1)
	if e, ok := err.(errors.StackTracer); ok {
		frames, component := backtrace(e)
		if len(frames) > 0 {
			n.Errors[0].Backtrace = frames
			n.Context["component"] = component
		}
	}

	if d.async {
		d.Notifier.SendNoticeAsync(n)
		return
	}
	res, err1 := d.Notifier.SendNotice(n)
	log.Debugf("notify res = %s", res)
	log.Tracef("notify message %#v", n)
	if err1 != nil {
		log.Errorf("send notify error: %s", err1)
	}
}

func (d errbitNotificator) Close() error {
	return errors.E(d.Notifier.Close())
}

func backtrace(e errors.StackTracer) ([]gobrake.StackFrame, string) {
	stackTrace := e.StackTrace()
	pcs := make([]uintptr, 0, len(stackTrace))
	for _, f := range stackTrace {
		pcs = append(pcs, uintptr(f))
	}

	frames := make([]gobrake.StackFrame, 0, len(pcs))
	var firstPkg string
	ff := runtime.CallersFrames(pcs)
	for {
		f, more := ff.Next()
		if f.Function != "" {
			pkg, fn := splitPackageFuncName(f.Function)
			if firstPkg == "" {
				firstPkg = pkg
			}
			frames = append(frames, gobrake.StackFrame{
				File: f.File,
				Line: f.Line,
				Func: fn,
			})
		}
		if !more {
			break
		}
	}
	return frames, firstPkg
}

// NewErrbitNotificator sends synchronously outside production so failures
// show up in the log.
func NewErrbitNotificator(cfg Config) Notificator {
	options := &gobrake.NotifierOptions{
		ProjectId:                 cfg.ProjectID,
		ProjectKey:                cfg.ProjectKey,
		Host:                      cfg.Host,
		DisableRemoteConfig:       true,
		Environment:               cfg.Env,
		DisableCodeHunks:          true,
		DisableErrorNotifications: false,
		DisableAPM:                true,
	}
	if cfg.Env == "development" {
		var pr func(*http.Request) (*url.URL, error)
		if cfg.Proxy != "" && cfg.Proxy != "false" && cfg.Proxy != "none" {
			proxy, err := url.Parse(cfg.Proxy)
			if err == nil {
				pr = http.ProxyURL(proxy)
			}
		}
		options.HTTPClient = &http.Client{
			Transport: &http.Transport{Proxy: pr},
		}
	}
	log.Debugf("configNotificator: %+v", options)
	return &errbitNotificator{
		Notifier: gobrake.NewNotifierWithOptions(options),
		async:    cfg.Env == "production",
	}
}

func splitPackageFuncName(funcName string) (string, string) {
	var packageName string
	if ind := strings.LastIndex(funcName, "/"); ind > 0 {
		packageName += funcName[:ind+1]
		funcName = funcName[ind+1:]
	}
	if ind := strings.Index(funcName, "."); ind > 0 {
		packageName += funcName[:ind]
		funcName = funcName[ind+1:]
	}
	return packageName, funcName
}
