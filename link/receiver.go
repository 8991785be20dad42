// SPDX-FileCopyrightText: 2025, 2026 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package link

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/qlink/qlink-go/qapi"
)

// keepaliveKey is the routing key for keepalive replies.
const keepaliveKey = "keep-alive"

// MessageFunc is the owning application layer's callback for decoded data
// messages. It runs on the receiver's goroutine; messages are handed over in
// broker delivery order.
type MessageFunc func(msg *qapi.Message)

// KeepaliveFunc is invoked after every answered keepalive.
type KeepaliveFunc func()

// acker is the cumulative acknowledgment part of an AMQP channel.
type acker interface {
	Ack(tag uint64, multiple bool) error
}

// receiver is the consume side session: one broker connection carrying the
// exclusively bound data consumer and the no-ack keepalive consumer. Its
// drain loop dispatches messages, batches cumulative acknowledgments and
// answers keepalives, all single-threaded.
type receiver struct {
	session

	msgCallback MessageFunc
	kaCallback  KeepaliveFunc
}

func newReceiver(conf *Config, msgCallback MessageFunc, kaCallback KeepaliveFunc) *receiver {
	return &receiver{
		session:     newSession("recv", conf),
		msgCallback: msgCallback,
		kaCallback:  kaCallback,
	}
}

// cycle runs one connect/serve round: bind both consumers, raise readiness
// and drain until shutdown or a connection failure.
func (rcv *receiver) cycle() error {
	conn, err := rcv.dial()
	if err != nil {
		return err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			rcv.logger().WithError(err).Debug("closing connection errored")
		}
	}()

	dataChannel, err := conn.Channel()
	if err != nil {
		return err
	}
	if err := dataChannel.Qos(rcv.conf.Prefetch, 0, false); err != nil {
		return err
	}

	// The exclusive flag makes the broker reject a second live consumer for
	// this identity: at most one agent instance may be receiving.
	dataTag := rcv.conf.Identity + "-data"
	deliveries, err := dataChannel.Consume(rcv.conf.Identity, dataTag, false, true, false, false, nil)
	if err != nil {
		return err
	}

	kaChannel, err := conn.Channel()
	if err != nil {
		return err
	}

	kaTag := rcv.conf.Identity + "-ka"
	keepalives, err := kaChannel.Consume(rcv.conf.Identity+"_ka", kaTag, true, true, false, false, nil)
	if err != nil {
		return err
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	rcv.recordError(nil)
	rcv.ready.raise()
	rcv.logger().Debug("ready")

	defer func() {
		rcv.ready.clear()

		// Best-effort: the connection may already be gone. Deliveries still
		// unacknowledged at this point are not tracked across the reconnect,
		// the broker will redeliver them to the next consumer.
		if err := dataChannel.Cancel(dataTag, false); err != nil {
			rcv.logger().WithError(err).Debug("cancelling data consumer errored")
		}
		if err := kaChannel.Cancel(kaTag, false); err != nil {
			rcv.logger().WithError(err).Debug("cancelling keepalive consumer errored")
		}
	}()

	return rcv.drain(dataChannel, kaChannel, deliveries, keepalives, closed)
}

// drain is the receiver's main loop: dispatch deliveries, answer keepalives
// and issue one cumulative acknowledgment whenever the batcher's policy says
// so, at the threshold or after a quiet poll slice.
func (rcv *receiver) drain(data acker, ka publisher,
	deliveries, keepalives <-chan amqp.Delivery, closed <-chan *amqp.Error) error {
	batcher := newAckBatcher(rcv.conf.Prefetch, rcv.conf.AckFraction, rcv.conf.AckInterval, time.Now())

	poll := time.NewTicker(rcv.conf.DrainTimeout)
	defer poll.Stop()

	for {
		select {
		case <-rcv.end:
			return nil

		case delivery, ok := <-deliveries:
			if !ok {
				// Channel went away underneath, the close notification will
				// carry the reason.
				deliveries = nil
				continue
			}

			rcv.dispatch(&delivery)
			batcher.record(delivery.DeliveryTag)

			if batcher.shouldFlush(time.Now(), false) {
				if err := rcv.flush(data, batcher); err != nil {
					return err
				}
			}

		case _, ok := <-keepalives:
			if !ok {
				keepalives = nil
				continue
			}

			rcv.answerKeepalive(ka)

		case now := <-poll.C:
			if batcher.shouldFlush(now, true) {
				if err := rcv.flush(data, batcher); err != nil {
					return err
				}
			}

		case amqpErr, ok := <-closed:
			return closeNotification(amqpErr, ok)
		}
	}
}

// flush issues one cumulative acknowledgment covering everything up to the
// last delivered tag.
func (rcv *receiver) flush(data acker, batcher *ackBatcher) error {
	rcv.logger().WithField("count", batcher.count).WithField("tag", batcher.lastTag).
		Debug("acknowledging deliveries")

	if err := data.Ack(batcher.lastTag, true); err != nil {
		return err
	}
	batcher.reset(time.Now())

	return nil
}

// dispatch decodes a delivery and hands it to the message callback. The
// delivery counts towards acknowledgment regardless of the outcome; the
// acknowledgment is a flow control signal, not a processing guarantee.
func (rcv *receiver) dispatch(delivery *amqp.Delivery) {
	msg, err := qapi.Decode(delivery.Body)
	if err != nil {
		rcv.logger().WithError(err).WithField("tag", delivery.DeliveryTag).
			Error("decoding delivery errored")
		return
	}

	defer func() {
		if r := recover(); r != nil {
			rcv.logger().WithField("panic", r).Error("message callback panicked")
		}
	}()

	if rcv.msgCallback != nil {
		rcv.msgCallback(msg)
	}
}

// answerKeepalive replies with an empty, non-persistent message on the
// keepalive channel and invokes the keepalive callback. Failures of either
// step are logged, never propagated.
func (rcv *receiver) answerKeepalive(ka publisher) {
	ctx, cancel := context.WithTimeout(context.Background(), rcv.conf.OperationTimeout)
	defer cancel()

	err := ka.PublishWithContext(ctx, rcv.conf.Identity, keepaliveKey, false, false, amqp.Publishing{
		DeliveryMode: amqp.Transient,
	})
	if err != nil {
		rcv.logger().WithError(err).Warn("failed to answer keepalive")
	}

	defer func() {
		if r := recover(); r != nil {
			rcv.logger().WithField("panic", r).Error("keepalive callback panicked")
		}
	}()

	if rcv.kaCallback != nil {
		rcv.kaCallback()
	}
}
