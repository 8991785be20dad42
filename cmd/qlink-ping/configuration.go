// SPDX-FileCopyrightText: 2025, 2026 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"

	"github.com/qlink/qlink-go/link"
)

// tomlConfig describes the TOML-configuration.
type tomlConfig struct {
	Broker  brokerConf
	Tuning  tuningConf
	Logging logConf
}

// brokerConf describes the Broker-configuration block.
type brokerConf struct {
	Host     string
	VHost    string `toml:"vhost"`
	Prefix   string
	Identity string
	Secret   string
	SSLCA    string `toml:"sslca"`
}

// tuningConf describes the optional Tuning-configuration block. Zero values
// fall back to the link's defaults.
type tuningConf struct {
	Prefetch     int
	AckFraction  float64 `toml:"ack-fraction"`
	AckInterval  int     `toml:"ack-interval-ms"`
	Heartbeat    int     `toml:"heartbeat-seconds"`
	DrainTimeout int     `toml:"drain-timeout-ms"`
	SendTimeout  int     `toml:"send-timeout-ms"`
}

// logConf describes the Logging-configuration block.
type logConf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
}

// parseConfig reads the TOML file and builds the link's Config from it.
func parseConfig(filename string) (conf link.Config, err error) {
	var tc tomlConfig
	if _, err = toml.DecodeFile(filename, &tc); err != nil {
		return
	}

	if tc.Logging.Level != "" {
		if lvl, lvlErr := log.ParseLevel(tc.Logging.Level); lvlErr != nil {
			log.WithFields(log.Fields{
				"level":    tc.Logging.Level,
				"error":    lvlErr,
				"provided": "panic,fatal,error,warn,info,debug,trace",
			}).Warn("Failed to set log level. Please select one of the provided ones")
		} else {
			log.SetLevel(lvl)
		}
	}
	log.SetReportCaller(tc.Logging.ReportCaller)

	conf = link.Config{
		Host:         tc.Broker.Host,
		VHost:        tc.Broker.VHost,
		Prefix:       tc.Broker.Prefix,
		Identity:     tc.Broker.Identity,
		Secret:       tc.Broker.Secret,
		Prefetch:     tc.Tuning.Prefetch,
		AckFraction:  tc.Tuning.AckFraction,
		AckInterval:  time.Duration(tc.Tuning.AckInterval) * time.Millisecond,
		Heartbeat:    time.Duration(tc.Tuning.Heartbeat) * time.Second,
		DrainTimeout: time.Duration(tc.Tuning.DrainTimeout) * time.Millisecond,
		SendTimeout:  time.Duration(tc.Tuning.SendTimeout) * time.Millisecond,
	}

	if tc.Broker.SSLCA != "" {
		if conf.CACert, err = os.ReadFile(tc.Broker.SSLCA); err != nil {
			err = fmt.Errorf("reading sslca errored: %w", err)
			return
		}
	}

	return
}
