// Package loop implements the single-threaded event loop: a blocking poll
// over every registered ingress socket, dispatching each readable one in
// turn. It is the only suspension point in the daemon.
package loop

import (
	"github.com/sirupsen/logrus"

	"github.com/kestrelnet/repeater/internal/dispatch"
	"github.com/kestrelnet/repeater/internal/poller"
	"github.com/kestrelnet/repeater/internal/registry"
)

// Loop owns the Poller, Dispatcher, and logger it was built with and runs
// the blocking wait/dispatch cycle forever.
type Loop struct {
	poller     *poller.Poller
	dispatcher *dispatch.Dispatcher
	log        *logrus.Logger
}

// New builds a Loop with one poller registration per listener ingress fd.
func New(r *registry.Registry, p *poller.Poller, d *dispatch.Dispatcher, log *logrus.Logger) *Loop {
	for _, fd := range r.IngressFDs() {
		p.Register(fd)
	}
	return &Loop{poller: p, dispatcher: d, log: log}
}

// Run blocks forever, servicing ready fds one pass at a time. A poll error
// is fatal and returned to the caller; every other failure (recv, send,
// unknown target/transmitter) is logged and the loop continues.
func (l *Loop) Run() error {
	for {
		ready, err := l.poller.Wait()
		if err != nil {
			return err
		}

		for _, fd := range ready {
			results, err := l.dispatcher.Handle(fd)
			if err != nil {
				l.log.WithError(err).WithField("fd", fd).Warn("failed to receive datagram")
				continue
			}
			for _, res := range results {
				if res.Err != nil {
					l.log.WithError(res.Err).
						WithField("target", res.TargetID).
						WithField("transmitter", res.TransmitterID).
						Warn("failed to forward datagram")
					continue
				}
				l.log.WithField("target", res.TargetID).
					WithField("transmitter", res.TransmitterID).
					Debug("forwarded datagram")
			}
		}
	}
}
