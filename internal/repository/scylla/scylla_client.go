// Package scylla implements the repository contracts on ScyllaDB.
// Conditional updates use lightweight transactions: every guarded write
// carries an IF clause on the version counter or the current status, so
// a stale writer loses instead of overwriting a transition.
package scylla

import (
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"trust-service/internal/config"
	"trust-service/internal/util"
)

type Client struct {
	Session *gocql.Session
	cfg     *config.ScyllaConfig
}

func NewClient(cfg *config.Config) (*Client, error) {
	sc := cfg.Scylla

	cluster := gocql.NewCluster(sc.Nodes...)
	cluster.Keyspace = sc.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.SerialConsistency = gocql.LocalSerial
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if sc.Username != "" && sc.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: sc.Username,
			Password: sc.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	util.Info("scylla client initialized",
		util.String("keyspace", sc.Keyspace),
		util.Int("nodes", len(sc.Nodes)))

	return &Client{Session: session, cfg: &sc}, nil
}

func (c *Client) HealthCheck() error {
	var now time.Time
	if err := c.Session.Query(`SELECT now() FROM system.local`).Scan(&now); err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}
	return nil
}

func (c *Client) Close() {
	c.Session.Close()
}
