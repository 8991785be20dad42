// SPDX-FileCopyrightText: 2025, 2026 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package link

import (
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"
)

// retryBackoff is the fixed delay between two connect attempts after a
// transient failure.
const retryBackoff = 2 * time.Second

// session is the shared shape of the sender and receiver sessions: one
// physical broker connection, a readiness gate and a reconnect loop
// classifying failures into transient and terminal kinds. The per-direction
// behavior lives in the owning type's cycle method.
type session struct {
	name string
	conf *Config

	ready   *gate
	running atomic.Bool

	// end is closed by the Link to request a cooperative shutdown. It is
	// replaced on every Start, see reset.
	end <-chan struct{}

	errMutex sync.Mutex
	err      error
}

func newSession(name string, conf *Config) session {
	return session{
		name:  name,
		conf:  conf,
		ready: newGate(),
	}
}

// reset prepares this session for a fresh Start. A recorded error from an
// earlier round is dropped so it cannot be surfaced as a current one.
func (s *session) reset(end <-chan struct{}) {
	s.ready.clear()
	s.recordError(nil)
	s.end = end
}

// stopped reports whether a shutdown was requested.
func (s *session) stopped() bool {
	select {
	case <-s.end:
		return true
	default:
		return false
	}
}

// recordError stores this session's last error for diagnostic surfacing.
func (s *session) recordError(err error) {
	s.errMutex.Lock()
	defer s.errMutex.Unlock()

	s.err = err
}

// lastError returns the last recorded error, nil if none occurred.
func (s *session) lastError() error {
	s.errMutex.Lock()
	defer s.errMutex.Unlock()

	return s.err
}

// dial establishes this session's own broker connection.
func (s *session) dial() (*amqp.Connection, error) {
	tlsConf, err := s.conf.tlsConfig()
	if err != nil {
		return nil, err
	}

	return amqp.DialConfig("amqps://"+s.conf.Host, amqp.Config{
		Vhost: s.conf.VHost,
		SASL: []amqp.Authentication{&amqp.PlainAuth{
			Username: s.conf.Prefix + s.conf.Identity,
			Password: s.conf.Secret,
		}},
		Heartbeat:       s.conf.Heartbeat,
		TLSClientConfig: tlsConf,
		Dial:            amqp.DefaultDial(s.conf.ConnectTimeout),
	})
}

// run the reconnect loop around the given connect/serve cycle until a
// shutdown is requested or a terminal failure occurs. A cycle returning nil
// signals a clean shutdown; any error ends in a fixed backoff retry for the
// recognized transient kinds and in a permanent exit for everything else.
func (s *session) run(cycle func() error) {
	s.running.Store(true)
	defer s.running.Store(false)
	defer s.logger().Debug("finished")

	for !s.stopped() {
		err := cycle()
		if err == nil {
			return
		}

		s.recordError(err)
		if !transient(err) {
			s.logger().WithError(err).Error("unexpected failure, exiting")
			return
		}
		s.logRetry(err)

		select {
		case <-s.end:
			return
		case <-time.After(retryBackoff):
		}
	}
}

// logRetry writes the per-category diagnostic line for a transient failure.
func (s *session) logRetry(err error) {
	switch {
	case isAccessRefused(err):
		s.logger().WithError(err).Error("access refused, credentials already in use?")

	case isForcedDisconnect(err):
		s.logger().WithError(err).Error("disconnected by broker, will retry")

	case isSocketTimeout(err):
		s.logger().WithError(err).Warn("socket timeout, wrong credentials, vhost or prefix?")

	case isTLSFailure(err):
		s.logger().WithError(err).Error("TLS failure, bad certificate?")

	default:
		s.logger().WithError(err).Error("amqp/transport failure, sleeping before retry")
	}
}

// closeNotification turns a broker close notification into a cycle error.
// The notification channel delivers nil or closes without a value when the
// connection went away without a proper error.
func closeNotification(amqpErr *amqp.Error, ok bool) error {
	if !ok || amqpErr == nil {
		return amqp.ErrClosed
	}

	return amqpErr
}

// logger returns a new logrus.Entry for this session.
func (s *session) logger() *log.Entry {
	return log.WithFields(log.Fields{
		"session":  s.name,
		"identity": s.conf.Identity,
	})
}
