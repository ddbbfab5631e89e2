package clients

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"k8s.io/klog/v2"

	"calcbridge/pkg/apiserver/config"
)

var (
	natsMu   sync.Mutex
	natsConn *nats.Conn
)

// EnsureNATS returns a process-wide NATS connection, connecting on first use.
func EnsureNATS(cfg config.NATSConfig, name string) (*nats.Conn, error) {
	natsMu.Lock()
	defer natsMu.Unlock()
	if natsConn != nil && !natsConn.IsClosed() {
		return natsConn, nil
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("nats url cannot be empty")
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name(name),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				klog.Warningf("nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			klog.InfoS("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}
	natsConn = nc
	return nc, nil
}

// CloseNATS drains the shared connection.
func CloseNATS() error {
	natsMu.Lock()
	defer natsMu.Unlock()
	if natsConn == nil {
		return nil
	}
	err := natsConn.Drain()
	natsConn = nil
	return err
}
