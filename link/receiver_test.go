// SPDX-FileCopyrightText: 2025, 2026 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package link

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/qlink/qlink-go/qapi"
)

type ackCall struct {
	tag      uint64
	multiple bool
}

type fakeAcker struct {
	mutex sync.Mutex
	calls []ackCall
}

func (fa *fakeAcker) Ack(tag uint64, multiple bool) error {
	fa.mutex.Lock()
	defer fa.mutex.Unlock()

	fa.calls = append(fa.calls, ackCall{tag, multiple})
	return nil
}

func (fa *fakeAcker) snapshot() []ackCall {
	fa.mutex.Lock()
	defer fa.mutex.Unlock()

	calls := make([]ackCall, len(fa.calls))
	copy(calls, fa.calls)
	return calls
}

type publishCall struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakePublisher struct {
	mutex sync.Mutex
	calls []publishCall
	err   error
}

func (fp *fakePublisher) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	fp.mutex.Lock()
	defer fp.mutex.Unlock()

	fp.calls = append(fp.calls, publishCall{exchange, key, msg})
	return fp.err
}

func (fp *fakePublisher) snapshot() []publishCall {
	fp.mutex.Lock()
	defer fp.mutex.Unlock()

	calls := make([]publishCall, len(fp.calls))
	copy(calls, fp.calls)
	return calls
}

func testReceiverConf() Config {
	return Config{
		Host:         "localhost:5671",
		VHost:        "test",
		Identity:     "testid",
		Prefetch:     10,
		AckFraction:  0.5,
		DrainTimeout: 50 * time.Millisecond,
	}.withDefaults()
}

// testDeliveries encodes n data messages as deliveries with tags 1..n.
func testDeliveries(t *testing.T, n int) []amqp.Delivery {
	enc := qapi.NewEncoder()

	deliveries := make([]amqp.Delivery, n)
	for i := range deliveries {
		body, err := enc.Encode(&qapi.Message{
			Resource:  qapi.ResourceFeed,
			Type:      qapi.TypeFeedData,
			ClientRef: "",
			Action:    qapi.ActionList,
			Payload:   []byte{byte(i)},
		})
		if err != nil {
			t.Fatal(err)
		}

		deliveries[i] = amqp.Delivery{DeliveryTag: uint64(i + 1), Body: body}
	}

	return deliveries
}

func startDrain(rcv *receiver, data *fakeAcker, ka *fakePublisher,
	deliveries, keepalives chan amqp.Delivery, closed chan *amqp.Error) chan error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- rcv.drain(data, ka, deliveries, keepalives, closed)
	}()

	return errCh
}

func TestReceiverDrainThresholdBurst(t *testing.T) {
	conf := testReceiverConf()
	end := make(chan struct{})

	var gotMutex sync.Mutex
	var got []byte
	rcv := newReceiver(&conf, func(msg *qapi.Message) {
		gotMutex.Lock()
		got = append(got, msg.Payload[0])
		gotMutex.Unlock()
	}, nil)
	rcv.reset(end)

	deliveries := make(chan amqp.Delivery, 16)
	for _, d := range testDeliveries(t, 5) {
		deliveries <- d
	}

	data := new(fakeAcker)
	errCh := startDrain(rcv, data, new(fakePublisher), deliveries, make(chan amqp.Delivery), make(chan *amqp.Error))

	time.Sleep(25 * time.Millisecond)

	// Exactly one cumulative acknowledgment covering all five deliveries.
	if calls := data.snapshot(); len(calls) != 1 {
		t.Fatalf("expected 1 acknowledgment, got %v", calls)
	} else if calls[0].tag != 5 || !calls[0].multiple {
		t.Fatalf("expected a cumulative acknowledgment up to tag 5, got %v", calls[0])
	}

	// Dispatch in broker delivery order.
	gotMutex.Lock()
	for i, b := range got {
		if b != byte(i) {
			t.Fatalf("messages out of order: %v", got)
		}
	}
	gotMutex.Unlock()

	close(end)
	if err := <-errCh; err != nil {
		t.Fatal(err)
	}
}

func TestReceiverDrainPollFlush(t *testing.T) {
	conf := testReceiverConf()
	end := make(chan struct{})
	defer close(end)

	rcv := newReceiver(&conf, nil, nil)
	rcv.reset(end)

	deliveries := make(chan amqp.Delivery, 16)
	for _, d := range testDeliveries(t, 4) {
		deliveries <- d
	}

	data := new(fakeAcker)
	startDrain(rcv, data, new(fakePublisher), deliveries, make(chan amqp.Delivery), make(chan *amqp.Error))

	// Below threshold: nothing until a poll slice elapsed.
	time.Sleep(2 * conf.DrainTimeout)

	if calls := data.snapshot(); len(calls) != 1 {
		t.Fatalf("expected 1 acknowledgment, got %v", calls)
	} else if calls[0].tag != 4 || !calls[0].multiple {
		t.Fatalf("expected a cumulative acknowledgment up to tag 4, got %v", calls[0])
	}
}

func TestReceiverDrainCumulative(t *testing.T) {
	conf := testReceiverConf()
	end := make(chan struct{})
	defer close(end)

	rcv := newReceiver(&conf, nil, nil)
	rcv.reset(end)

	const n = 12

	deliveries := make(chan amqp.Delivery, n)
	for _, d := range testDeliveries(t, n) {
		deliveries <- d
	}

	data := new(fakeAcker)
	startDrain(rcv, data, new(fakePublisher), deliveries, make(chan amqp.Delivery), make(chan *amqp.Error))

	time.Sleep(2 * conf.DrainTimeout)

	calls := data.snapshot()
	if len(calls) == 0 || len(calls) > (n+4)/5 {
		t.Fatalf("expected at most %d acknowledgments, got %v", (n+4)/5, calls)
	}

	var last uint64
	for _, call := range calls {
		if !call.multiple || call.tag <= last {
			t.Fatalf("acknowledgments are not cumulative prefixes: %v", calls)
		}
		last = call.tag
	}
	if last != n {
		t.Fatalf("expected the final acknowledgment to cover tag %d, got %d", n, last)
	}
}

func TestReceiverKeepalive(t *testing.T) {
	conf := testReceiverConf()
	end := make(chan struct{})
	defer close(end)

	var kaMutex sync.Mutex
	kaCalls := 0
	rcv := newReceiver(&conf, nil, func() {
		kaMutex.Lock()
		kaCalls++
		kaMutex.Unlock()
	})
	rcv.reset(end)

	keepalives := make(chan amqp.Delivery, 1)
	keepalives <- amqp.Delivery{DeliveryTag: 1}

	ka := new(fakePublisher)
	startDrain(rcv, new(fakeAcker), ka, make(chan amqp.Delivery), keepalives, make(chan *amqp.Error))

	time.Sleep(50 * time.Millisecond)

	calls := ka.snapshot()
	if len(calls) != 1 {
		t.Fatalf("expected 1 keepalive answer, got %v", calls)
	}
	if calls[0].exchange != conf.Identity || calls[0].key != keepaliveKey {
		t.Fatalf("keepalive answered on %s/%s", calls[0].exchange, calls[0].key)
	}
	if calls[0].msg.DeliveryMode == amqp.Persistent || len(calls[0].msg.Body) != 0 {
		t.Fatalf("keepalive answer is not an empty transient message: %v", calls[0].msg)
	}

	kaMutex.Lock()
	defer kaMutex.Unlock()
	if kaCalls != 1 {
		t.Fatalf("expected 1 keepalive callback, got %d", kaCalls)
	}
}

func TestReceiverCallbackPanic(t *testing.T) {
	conf := testReceiverConf()
	end := make(chan struct{})
	defer close(end)

	rcv := newReceiver(&conf, func(msg *qapi.Message) {
		panic("application failure")
	}, nil)
	rcv.reset(end)

	deliveries := make(chan amqp.Delivery, 16)
	for _, d := range testDeliveries(t, 5) {
		deliveries <- d
	}

	data := new(fakeAcker)
	startDrain(rcv, data, new(fakePublisher), deliveries, make(chan amqp.Delivery), make(chan *amqp.Error))

	time.Sleep(2 * conf.DrainTimeout)

	// Panicking callbacks still count every delivery towards acknowledgment.
	if calls := data.snapshot(); len(calls) != 1 || calls[0].tag != 5 {
		t.Fatalf("expected one acknowledgment up to tag 5, got %v", calls)
	}
}

func TestReceiverDrainClosed(t *testing.T) {
	conf := testReceiverConf()
	end := make(chan struct{})
	defer close(end)

	rcv := newReceiver(&conf, nil, nil)
	rcv.reset(end)

	closed := make(chan *amqp.Error, 1)
	closed <- &amqp.Error{Code: amqp.ConnectionForced, Reason: "shutting down"}

	errCh := startDrain(rcv, new(fakeAcker), new(fakePublisher),
		make(chan amqp.Delivery), make(chan amqp.Delivery), closed)

	select {
	case err := <-errCh:
		if !isForcedDisconnect(err) || !transient(err) {
			t.Fatalf("expected a transient forced disconnect, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("drain did not observe the close notification")
	}
}

func TestReceiverDrainChannelVanished(t *testing.T) {
	conf := testReceiverConf()
	end := make(chan struct{})
	defer close(end)

	rcv := newReceiver(&conf, nil, nil)
	rcv.reset(end)

	deliveries := make(chan amqp.Delivery)
	close(deliveries)

	closed := make(chan *amqp.Error)
	errCh := startDrain(rcv, new(fakeAcker), new(fakePublisher),
		deliveries, make(chan amqp.Delivery), closed)

	// A closed delivery channel alone must not end the loop, the close
	// notification carries the reason.
	select {
	case err := <-errCh:
		t.Fatalf("drain returned early: %v", err)
	case <-time.After(2 * conf.DrainTimeout):
	}

	close(closed)
	select {
	case err := <-errCh:
		if !errors.Is(err, amqp.ErrClosed) {
			t.Fatalf("expected the connection closed error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("drain did not finish")
	}
}
