// SPDX-FileCopyrightText: 2025, 2026 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// qlink-ping starts a Link against the configured broker, issues one QAPI
// ping request and waits for its reply. It doubles as a connectivity and
// credential check for an agent's configuration.
package main

import (
	"errors"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/qlink/qlink-go/link"
	"github.com/qlink/qlink-go/qapi"
)

const pingTimeout = 10 * time.Second

// dispatch fulfils the matching outstanding request for a decoded message.
// Unsolicited messages are only logged here.
func dispatch(requests *link.RequestTable, msg *qapi.Message) {
	logger := log.WithFields(log.Fields{
		"resource": msg.Resource,
		"type":     msg.Type,
		"ref":      msg.ClientRef,
	})

	if msg.ClientRef == "" {
		logger.Info("Received unsolicited message")
		return
	}

	requests.AddMessage(msg.ClientRef, msg)

	switch msg.Type {
	case qapi.TypeFailed:
		var err error
		if fp, fpErr := qapi.DecodeFailure(msg.Payload); fpErr != nil {
			err = fpErr
		} else {
			err = errors.New(fp.String())
		}

		requests.Fulfil(msg.ClientRef, false, msg.Payload, err)

	case qapi.TypeProgress:
		logger.Debug("Request is in progress")

	default:
		requests.Fulfil(msg.ClientRef, true, msg.Payload, nil)
	}
}

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("Usage: %s configuration.toml", os.Args[0])
	}

	conf, err := parseConfig(os.Args[1])
	if err != nil {
		log.WithError(err).Fatal("Failed to parse config")
	}

	requests := link.NewRequestTable()

	l, err := link.NewLink(conf,
		func(msg *qapi.Message) { dispatch(requests, msg) },
		func() { log.Debug("Answered keepalive") })
	if err != nil {
		log.WithError(err).Fatal("Failed to create link")
	}

	if err := l.Start(); err != nil {
		log.WithError(err).Fatal("Failed to start link")
	}
	defer l.Stop()

	ids := link.NewRequestIDSource()
	id := ids.Next()

	req, err := requests.Create(id, false)
	if err != nil {
		log.WithError(err).Fatal("Failed to create request")
	}
	defer requests.Remove(id)

	frame, err := qapi.NewEncoder().Encode(&qapi.Message{
		Resource:  qapi.ResourcePing,
		ClientRef: id,
		Action:    qapi.ActionList,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to encode ping")
	}

	if err := l.Send(frame); err != nil {
		log.WithError(err).Fatal("Failed to send ping")
	}

	if finished, err := req.Wait(pingTimeout); err != nil {
		log.WithError(err).Fatal("Ping failed")
	} else if !finished {
		log.Fatal("Ping timed out")
	}

	log.WithField("ref", id).Info("Ping succeeded")
}
