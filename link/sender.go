// SPDX-FileCopyrightText: 2025, 2026 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package link

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// contentType of every published QAPI frame.
const contentType = "application/cbor"

// publisher is the publish part of an AMQP channel.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// sender is the publish side session: one broker connection with a single
// channel. All outbound writes are serialized by one mutex, which also
// protects against publishing into a connection that is being torn down.
type sender struct {
	session

	mutex   sync.Mutex
	channel publisher
}

func newSender(conf *Config) *sender {
	return &sender{session: newSession("send", conf)}
}

// cycle runs one connect/serve round: establish the publish channel, raise
// readiness and idle until shutdown or a connection failure. Heartbeats are
// exchanged by the broker library for the connection's lifetime.
func (snd *sender) cycle() error {
	conn, err := snd.dial()
	if err != nil {
		return err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			snd.logger().WithError(err).Debug("closing connection errored")
		}
	}()

	channel, err := conn.Channel()
	if err != nil {
		return err
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	snd.mutex.Lock()
	snd.channel = channel
	snd.mutex.Unlock()
	snd.ready.raise()
	snd.logger().Debug("ready")

	// Locked so a concurrent publish cannot slip into the teardown.
	defer func() {
		snd.mutex.Lock()
		snd.ready.clear()
		snd.channel = nil
		snd.mutex.Unlock()
	}()

	select {
	case <-snd.end:
		return nil

	case amqpErr, ok := <-closed:
		return closeNotification(amqpErr, ok)
	}
}

// publish body as a persistent delivery on the agent's exchange. Failures
// are translated into the Link's error taxonomy.
func (snd *sender) publish(body []byte) error {
	snd.mutex.Lock()
	defer snd.mutex.Unlock()

	if snd.channel == nil {
		return fmt.Errorf("%w: no open channel", ErrNotReady)
	}

	ctx, cancel := context.WithTimeout(context.Background(), snd.conf.OperationTimeout)
	defer cancel()

	err := snd.channel.PublishWithContext(ctx, snd.conf.Identity, "", false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  contentType,
		Body:         body,
	})
	if err != nil {
		return wrapPublishError(err)
	}

	return nil
}
