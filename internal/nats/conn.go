/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */


// Package nats moves PCM frames between streams and a NATS subject
package nats

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/loqalabs/loqa-stream-go/internal/config"
	"github.com/loqalabs/loqa-stream-go/internal/logger"
)

// Connection is the subset of *nats.Conn the publisher and subscriber use
type Connection interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
	Close()
}

// ConnectionAdapter adapts *nats.Conn to Connection
type ConnectionAdapter struct {
	conn *nats.Conn
}

func NewConnectionAdapter(conn *nats.Conn) *ConnectionAdapter {
	return &ConnectionAdapter{conn: conn}
}

func (a *ConnectionAdapter) Publish(subject string, data []byte) error {
	return a.conn.Publish(subject, data)
}

func (a *ConnectionAdapter) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	return a.conn.Subscribe(subject, cb)
}

func (a *ConnectionAdapter) Close() {
	if err := a.conn.Drain(); err != nil {
		a.conn.Close()
	}
}

// Connect dials cfg.URL, retrying up to cfg.ConnectRetries times
func Connect(cfg config.NATSConfig) (*ConnectionAdapter, error) {
	attempts := max(cfg.ConnectRetries, 1)
	wait := cfg.ReconnectWait
	if wait <= 0 {
		wait = 2 * time.Second
	}

	var nc *nats.Conn
	var err error
	for i := 0; i < attempts; i++ {
		nc, err = nats.Connect(cfg.URL,
			nats.Name("loqa-stream"),
			nats.ReconnectWait(wait),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				if err != nil {
					logger.Warn("NATS disconnected", "error", err)
				}
			}),
			nats.ReconnectHandler(func(c *nats.Conn) {
				logger.Info("NATS reconnected", "url", c.ConnectedUrl())
			}),
		)
		if err == nil {
			break
		}
		logger.Warn("failed to connect to NATS", "attempt", i+1, "attempts", attempts, "error", err)
		if i+1 < attempts {
			time.Sleep(wait)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS after %d attempts: %w", attempts, err)
	}

	logger.Info("connected to NATS", "url", cfg.URL)
	return NewConnectionAdapter(nc), nil
}
