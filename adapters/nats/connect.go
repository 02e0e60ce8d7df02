// Package nats carries committed events to NATS JetStream and stores
// snapshots and tailer cursors in JetStream key-value buckets.
package nats

import (
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	natsgo "github.com/nats-io/nats.go"
)

// URLEnv overrides the default server URL.
const URLEnv = "NATS_URL"

type closeFunc = func()

type Connector func() (nc *natsgo.Conn, close closeFunc, err error)

// ReuseConnection shares one connection between all callers. It is closed
// when the last lease is released.
func ReuseConnection(connect Connector) Connector {
	var (
		mu       sync.Mutex
		nc       *natsgo.Conn
		closeCon closeFunc
		leased   atomic.Int64
	)
	weakClose := func() {
		mu.Lock()
		defer mu.Unlock()
		if leased.Add(-1) == 0 && nc != nil {
			closeCon()
			nc = nil
		}
	}
	return func() (*natsgo.Conn, closeFunc, error) {
		mu.Lock()
		defer mu.Unlock()
		if nc == nil {
			var err error
			nc, closeCon, err = connect()
			if err != nil {
				return nil, nil, err
			}
		}
		leased.Add(1)
		return nc, weakClose, nil
	}
}

type ConnectConfig struct {
	URL           string        `mapstructure:"url"`
	Name          string        `mapstructure:"name"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	Log           *slog.Logger  `mapstructure:"-"`
}

// Connect dials NATS and logs connection state changes.
func Connect(cfg ConnectConfig) Connector {
	url := cfg.URL
	if url == "" {
		url = natsgo.DefaultURL
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "nats"))

	opts := []natsgo.Option{
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				log.Warn("disconnected", slog.Any("error", err))
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			log.Info("reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	}
	if cfg.MaxReconnects == 0 {
		opts[0] = natsgo.MaxReconnects(3)
	}
	if cfg.Name != "" {
		opts = append(opts, natsgo.Name(cfg.Name))
	}
	if cfg.ReconnectWait > 0 {
		opts = append(opts, natsgo.ReconnectWait(cfg.ReconnectWait))
	}

	return func() (*natsgo.Conn, closeFunc, error) {
		nc, err := natsgo.Connect(url, opts...)
		if err != nil {
			return nil, nil, err
		}
		log.Debug("connected", slog.String("url", nc.ConnectedUrl()))
		return nc, func() { nc.Close() }, nil
	}
}

func ConnectURL(natsURL string) Connector { return Connect(ConnectConfig{URL: natsURL}) }

func ConnectDefault() Connector {
	if natsURL := os.Getenv(URLEnv); natsURL != "" {
		return ConnectURL(natsURL)
	}
	return ConnectURL(natsgo.DefaultURL)
}

func connectOrDefault(c Connector) Connector {
	if c == nil {
		return ConnectDefault()
	}
	return c
}
