package chainemu

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aurumlabs/custodia/serializer"
)

const addressVersion byte = 0x00

// Config contains configuration for the chain submission emulator.
type Config struct {
	LatencyMilliseconds uint64 `yaml:"latency_milliseconds"`
}

// Simulator emulates the external chain submission boundary. It returns
// deterministic simulated transaction hashes and can be switched in to a
// failing mode to exercise execution failure paths.
type Simulator struct {
	mux     sync.Mutex
	nonce   uint64
	latency time.Duration
	failure error
}

// New creates a new Simulator.
func New(cfg Config) *Simulator {
	return &Simulator{latency: time.Duration(cfg.LatencyMilliseconds) * time.Millisecond}
}

// Submit emulates a chain submission and returns a base58 encoded hash of the
// submission payload. It honours context cancellation during the configured
// latency window.
func (s *Simulator) Submit(ctx context.Context, chainID, from, to string, amount decimal.Decimal, asset string) (string, error) {
	if s.latency > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.latency):
		}
	}

	s.mux.Lock()
	defer s.mux.Unlock()
	if s.failure != nil {
		return "", s.failure
	}
	s.nonce++

	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], s.nonce)
	digest := sha256.Sum256(fmt.Appendf(nonce[:], "%s|%s|%s|%s|%s", chainID, from, to, amount.String(), asset))
	return string(serializer.Base58Encode(digest[:])), nil
}

// NewAccount creates an account on the simulated chain. It returns the base58
// checksummed address together with the raw private key material.
func (s *Simulator) NewAccount(chainID string) (string, []byte, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return "", nil, err
	}
	digest := sha256.Sum256(fmt.Appendf(key, "%s", chainID))
	return serializer.Base58Address(addressVersion, digest[:20]), key, nil
}

// FailWith switches the simulator in to a failing mode returning err on every
// submission. A nil err switches it back to normal operation.
func (s *Simulator) FailWith(err error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.failure = err
}
