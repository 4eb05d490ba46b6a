// Package broker runs the embedded NATS server that carries game
// messages between the engine and connected websocket clients.
package broker

import (
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/maxot/showrunner/internal/config"
)

const readyTimeout = 5 * time.Second

// Broker wraps an in-process NATS server and a client connection to it
type Broker struct {
	srv  *server.Server
	conn *nats.Conn
}

// Start launches the embedded server and connects to it
func Start(cfg config.BrokerConfig) (*Broker, error) {
	opts := &server.Options{
		Host:    cfg.Host,
		Port:    cfg.Port,
		NoSigs:  true,
		NoLog:   true,
		MaxConn: 64,
	}

	srv, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("creating broker: %w", err)
	}

	go srv.Start()
	if !srv.ReadyForConnections(readyTimeout) {
		srv.Shutdown()
		return nil, fmt.Errorf("broker not ready after %s", readyTimeout)
	}

	conn, err := nats.Connect(srv.ClientURL())
	if err != nil {
		srv.Shutdown()
		return nil, fmt.Errorf("connecting to broker: %w", err)
	}

	return &Broker{srv: srv, conn: conn}, nil
}

// Conn returns the client connection to the embedded server
func (b *Broker) Conn() *nats.Conn {
	return b.conn
}

// ClientURL returns the URL other connections can use to reach the server
func (b *Broker) ClientURL() string {
	return b.srv.ClientURL()
}

// Shutdown closes the client connection and stops the server
func (b *Broker) Shutdown() {
	if b.conn != nil {
		b.conn.Close()
	}
	b.srv.Shutdown()
	b.srv.WaitForShutdown()
}
