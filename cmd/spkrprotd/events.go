/*
DESCRIPTION
  events.go provides an event sink publishing speaker protection
  notifications to NATS.

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ausocean/spkrprot/protection"
	"github.com/ausocean/utils/logging"
)

// publisher is the part of *nats.Conn used by natsSink.
type publisher interface {
	Publish(subject string, data []byte) error
}

// natsSink publishes notifications as JSON on a NATS subject.
type natsSink struct {
	l       logging.Logger
	conn    publisher
	subject string
}

func connectNATS(l logging.Logger, url string) (*nats.Conn, error) {
	nc, err := nats.Connect(
		url,
		nats.Name(progName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			l.Warning("disconnected from NATS", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			l.Info("reconnected to NATS", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("could not connect to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// Notify implements protection.EventSink.
func (s *natsSink) Notify(n protection.Notification) {
	b, err := json.Marshal(n)
	if err != nil {
		s.l.Error("could not marshal notification", "error", err)
		return
	}
	err = s.conn.Publish(s.subject, b)
	if err != nil {
		s.l.Warning("could not publish notification", "subject", s.subject, "error", err)
	}
}
