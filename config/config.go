// Package config holds the recognized runtime configuration for a
// replica: consensus timing and limits, and network connection
// policy. Values follow the documented defaults unless overridden.
package config

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNonPositiveDuration = errors.New("config: duration must be positive")
	ErrInvalidProposeRange = errors.New("config: min_propose_timeout must not exceed max_propose_timeout")
	ErrNonPositiveLimit    = errors.New("config: limit must be positive")
	ErrNonPositiveConns    = errors.New("config: connection limit must be positive")
)

// Consensus holds the timing and sizing parameters of the consensus
// driver.
type Consensus struct {
	// FirstRoundTimeout is the base duration of round 0 of an epoch;
	// later rounds within the same epoch scale from this base.
	FirstRoundTimeout time.Duration
	// StatusTimeout is the interval between this node's Status
	// broadcasts to its peers.
	StatusTimeout time.Duration
	// PeersTimeout bounds how long the driver waits between peer
	// exchange rounds.
	PeersTimeout time.Duration
	// TxsBlockLimit caps the number of transactions a proposer packs
	// into one block.
	TxsBlockLimit int
	// MaxMessageLen is the hard wire-size cap; messages over this are
	// dropped before verification.
	MaxMessageLen int
	// MinProposeTimeout and MaxProposeTimeout bound the adaptive
	// propose timeout.
	MinProposeTimeout time.Duration
	MaxProposeTimeout time.Duration
}

// DefaultConsensus returns the documented default consensus
// configuration.
func DefaultConsensus() Consensus {
	return Consensus{
		FirstRoundTimeout: 3000 * time.Millisecond,
		StatusTimeout:     5000 * time.Millisecond,
		PeersTimeout:      10000 * time.Millisecond,
		TxsBlockLimit:     5000,
		MaxMessageLen:     1 << 20, // 1 MiB
		MinProposeTimeout: 3000 * time.Millisecond,
		MaxProposeTimeout: 3000 * time.Millisecond,
	}
}

// Validate checks that the consensus configuration is internally
// consistent.
func (c Consensus) Validate() error {
	for name, d := range map[string]time.Duration{
		"first_round_timeout": c.FirstRoundTimeout,
		"status_timeout":      c.StatusTimeout,
		"peers_timeout":       c.PeersTimeout,
		"min_propose_timeout": c.MinProposeTimeout,
		"max_propose_timeout": c.MaxProposeTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s: %w", name, ErrNonPositiveDuration)
		}
	}
	if c.TxsBlockLimit <= 0 {
		return fmt.Errorf("txs_block_limit: %w", ErrNonPositiveLimit)
	}
	if c.MaxMessageLen <= 0 {
		return fmt.Errorf("max_message_len: %w", ErrNonPositiveLimit)
	}
	if c.MinProposeTimeout > c.MaxProposeTimeout {
		return ErrInvalidProposeRange
	}
	return nil
}

// Network holds connection policy for the peer transport.
type Network struct {
	MaxIncomingConnections int
	MaxOutgoingConnections int
	TCPNoDelay             bool
	// TCPKeepAlive is zero when keep-alive is disabled.
	TCPKeepAlive           time.Duration
	TCPConnectRetryTimeout time.Duration
	TCPConnectMaxRetries   int
}

// DefaultNetwork returns a conservative default network configuration.
func DefaultNetwork() Network {
	return Network{
		MaxIncomingConnections: 128,
		MaxOutgoingConnections: 128,
		TCPNoDelay:             true,
		TCPKeepAlive:           30 * time.Second,
		TCPConnectRetryTimeout: 1 * time.Second,
		TCPConnectMaxRetries:   10,
	}
}

// Validate checks that the network configuration is internally
// consistent.
func (n Network) Validate() error {
	if n.MaxIncomingConnections <= 0 {
		return fmt.Errorf("max_incoming_connections: %w", ErrNonPositiveConns)
	}
	if n.MaxOutgoingConnections <= 0 {
		return fmt.Errorf("max_outgoing_connections: %w", ErrNonPositiveConns)
	}
	if n.TCPKeepAlive < 0 {
		return fmt.Errorf("tcp_keep_alive: %w", ErrNonPositiveDuration)
	}
	if n.TCPConnectRetryTimeout <= 0 {
		return fmt.Errorf("tcp_connect_retry_timeout: %w", ErrNonPositiveDuration)
	}
	if n.TCPConnectMaxRetries < 0 {
		return fmt.Errorf("tcp_connect_max_retries: %w", ErrNonPositiveLimit)
	}
	return nil
}

// Config is the full recognized configuration surface of a replica.
type Config struct {
	Consensus Consensus
	Network   Network
}

// Default returns the documented default configuration.
func Default() Config {
	return Config{
		Consensus: DefaultConsensus(),
		Network:   DefaultNetwork(),
	}
}

// Validate checks every section of the configuration.
func (c Config) Validate() error {
	if err := c.Consensus.Validate(); err != nil {
		return fmt.Errorf("consensus: %w", err)
	}
	if err := c.Network.Validate(); err != nil {
		return fmt.Errorf("network: %w", err)
	}
	return nil
}
