// SPDX-FileCopyrightText: 2025, 2026 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package link

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Config holds a Link's identity credentials and tunable parameters. The
// zero value of every tunable is replaced by its default; identity fields
// are mandatory.
type Config struct {
	// Host is the broker's "host:port" address.
	Host string

	// VHost is the broker's virtual host name.
	VHost string

	// Prefix is prepended to Identity for the broker login.
	Prefix string

	// Identity is the agent's identifier; also the exchange and queue name.
	Identity string

	// Secret is the broker login's password.
	Secret string

	// CACert is optional PEM material pinning the broker's CA. If empty, the
	// system's root CAs verify the broker.
	CACert []byte

	// Prefetch is the maximum amount of unacknowledged deliveries, default 128.
	Prefetch int

	// AckFraction of Prefetch at which a cumulative acknowledgment is
	// forced, in (0, 1], default 0.5.
	AckFraction float64

	// AckInterval is the longest time between two acknowledgments while
	// deliveries are pending, default 1s.
	AckInterval time.Duration

	// Heartbeat interval for both broker connections, default 30s.
	Heartbeat time.Duration

	// DrainTimeout is the receiver's poll slice, default 100ms.
	DrainTimeout time.Duration

	// ConnectTimeout bounds the broker dial, default 2s.
	ConnectTimeout time.Duration

	// OperationTimeout bounds a single publish, default 2s.
	OperationTimeout time.Duration

	// SendTimeout is Send's default bound for sender readiness, default 5s.
	SendTimeout time.Duration
}

const (
	defaultPrefetch         = 128
	defaultAckFraction      = 0.5
	defaultAckInterval      = time.Second
	defaultHeartbeat        = 30 * time.Second
	defaultDrainTimeout     = 100 * time.Millisecond
	defaultConnectTimeout   = 2 * time.Second
	defaultOperationTimeout = 2 * time.Second
	defaultSendTimeout      = 5 * time.Second
)

// withDefaults returns a copy with every zero tunable set to its default.
func (conf Config) withDefaults() Config {
	if conf.Prefetch == 0 {
		conf.Prefetch = defaultPrefetch
	}
	if conf.AckFraction == 0 {
		conf.AckFraction = defaultAckFraction
	}
	if conf.AckInterval == 0 {
		conf.AckInterval = defaultAckInterval
	}
	if conf.Heartbeat == 0 {
		conf.Heartbeat = defaultHeartbeat
	}
	if conf.DrainTimeout == 0 {
		conf.DrainTimeout = defaultDrainTimeout
	}
	if conf.ConnectTimeout == 0 {
		conf.ConnectTimeout = defaultConnectTimeout
	}
	if conf.OperationTimeout == 0 {
		conf.OperationTimeout = defaultOperationTimeout
	}
	if conf.SendTimeout == 0 {
		conf.SendTimeout = defaultSendTimeout
	}

	return conf
}

// check collects every invalid field into one error.
func (conf Config) check() (err error) {
	if conf.Host == "" {
		err = multierror.Append(err, fmt.Errorf("host is empty"))
	}
	if conf.VHost == "" {
		err = multierror.Append(err, fmt.Errorf("vhost is empty"))
	}
	if conf.Identity == "" {
		err = multierror.Append(err, fmt.Errorf("identity is empty"))
	}
	if conf.Prefetch < 1 {
		err = multierror.Append(err, fmt.Errorf("prefetch %d is not positive", conf.Prefetch))
	}
	if conf.AckFraction <= 0 || conf.AckFraction > 1 {
		err = multierror.Append(err, fmt.Errorf("ack fraction %f is not in (0, 1]", conf.AckFraction))
	}
	if conf.DrainTimeout <= 0 {
		err = multierror.Append(err, fmt.Errorf("drain timeout %v is not positive", conf.DrainTimeout))
	}

	return
}

// tlsConfig builds the one TLS client configuration this Link uses: TLS 1.2
// minimum, broker verification against either the pinned CA or the system
// roots.
func (conf Config) tlsConfig() (*tls.Config, error) {
	tlsConf := &tls.Config{MinVersion: tls.VersionTLS12}

	if len(conf.CACert) > 0 {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(conf.CACert) {
			return nil, fmt.Errorf("no certificate could be parsed from the CA material")
		}

		tlsConf.RootCAs = pool
	}

	return tlsConf, nil
}
