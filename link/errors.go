// SPDX-FileCopyrightText: 2025, 2026 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package link

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Sentinel error kinds surfaced by a Link. The underlying broker library's
// errors are wrapped behind these and never leak as part of the contract.
var (
	// ErrAlreadyStarted is returned by Start on a started Link.
	ErrAlreadyStarted = errors.New("link already started")

	// ErrNotReady is returned by Send when the sender session did not become
	// ready within the caller's timeout, and after Stop.
	ErrNotReady = errors.New("sender unavailable")

	// ErrAccessDenied covers broker access refusals, typically credentials
	// already being in use by another agent instance.
	ErrAccessDenied = errors.New("access denied")

	// ErrTransport covers generic AMQP or transport failures.
	ErrTransport = errors.New("amqp/transport failure")

	// ErrStartTimeout is returned by Start when neither session recorded a
	// more specific error before the readiness bound expired.
	ErrStartTimeout = errors.New("unknown link failure (timeout reached)")
)

// isAccessRefused checks for the broker's access refused reply code.
func isAccessRefused(err error) bool {
	var amqpErr *amqp.Error
	return errors.As(err, &amqpErr) && amqpErr.Code == amqp.AccessRefused
}

// isForcedDisconnect checks for a broker forced connection close.
func isForcedDisconnect(err error) bool {
	var amqpErr *amqp.Error
	return errors.As(err, &amqpErr) && amqpErr.Code == amqp.ConnectionForced
}

// isSocketTimeout checks for a network timeout, which usually indicates
// misconfigured credentials, vhost or prefix instead of a slow broker.
func isSocketTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded)
}

// isTLSFailure checks for a failed secure channel negotiation.
func isTLSFailure(err error) bool {
	var (
		recordErr    tls.RecordHeaderError
		verifyErr    *tls.CertificateVerificationError
		unknownCA    x509.UnknownAuthorityError
		invalidCert  x509.CertificateInvalidError
		hostnameMism x509.HostnameError
	)

	return errors.As(err, &recordErr) || errors.As(err, &verifyErr) ||
		errors.As(err, &unknownCA) || errors.As(err, &invalidCert) ||
		errors.As(err, &hostnameMism)
}

// transient reports whether an error from a session cycle belongs to the
// recognized transport taxonomy and deserves a retry. Everything outside the
// recognized set is terminal for the owning session.
func transient(err error) bool {
	if isAccessRefused(err) || isForcedDisconnect(err) || isSocketTimeout(err) || isTLSFailure(err) {
		return true
	}

	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed)
}

// wrapPublishError maps a publish failure onto the Link's error taxonomy.
func wrapPublishError(err error) error {
	switch {
	case isAccessRefused(err):
		return fmt.Errorf("%w: %v", ErrAccessDenied, err)

	case transient(err):
		return fmt.Errorf("%w: %v", ErrTransport, err)

	default:
		return fmt.Errorf("unexpected failure: %v", err)
	}
}
