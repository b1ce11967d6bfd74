package utils

import (
	"fmt"

	"github.com/C0nstantin/mailrelay/errors"
	"github.com/C0nstantin/mailrelay/log"
)

type Closer interface {
	Close() error
}

type Notifier interface {
	Notify(err error)
}

// DeferCloseLog close c and log the error if any
func DeferCloseLog(c Closer) {
	if err := c.Close(); err != nil {
		log.Errorf("close: %s", err)
	}
}

// RecoverAndNotify must be deferred directly. It stops a panic, logs it and
// hands it to notifier.
func RecoverAndNotify(notifier Notifier) {
	r := recover()
	if r == nil {
		return
	}
	err, ok := r.(error)
	if !ok {
		err = fmt.Errorf("%v", r)
	}
	err = errors.Er(err, "recovered panic")
	log.Errorf("%+v", err)
	if notifier != nil {
		notifier.Notify(err)
	}
}
