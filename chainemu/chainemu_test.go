package chainemu

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/aurumlabs/custodia/serializer"
)

func TestSubmitReturnsUniqueHashes(t *testing.T) {
	s := New(Config{})
	ctx := context.Background()

	first, err := s.Submit(ctx, "ethereum", "0xA", "0xB", decimal.NewFromInt(1), "USDT")
	assert.Nil(t, err)
	assert.NotEmpty(t, first)

	second, err := s.Submit(ctx, "ethereum", "0xA", "0xB", decimal.NewFromInt(1), "USDT")
	assert.Nil(t, err)
	assert.NotEqual(t, first, second)
}

func TestFailWith(t *testing.T) {
	s := New(Config{})
	ctx := context.Background()

	boom := errors.New("rpc node unreachable")
	s.FailWith(boom)
	_, err := s.Submit(ctx, "ethereum", "0xA", "0xB", decimal.NewFromInt(1), "USDT")
	assert.ErrorIs(t, err, boom)

	s.FailWith(nil)
	_, err = s.Submit(ctx, "ethereum", "0xA", "0xB", decimal.NewFromInt(1), "USDT")
	assert.Nil(t, err)
}

func TestNewAccount(t *testing.T) {
	s := New(Config{})

	addr, key, err := s.NewAccount("ethereum")
	assert.Nil(t, err)
	assert.Len(t, key, 32)

	decoded, err := serializer.Base58Decode([]byte(addr))
	assert.Nil(t, err)
	assert.Len(t, decoded, 25)
	assert.Equal(t, uint8(0x00), decoded[0])

	other, _, err := s.NewAccount("ethereum")
	assert.Nil(t, err)
	assert.NotEqual(t, addr, other)
}

func TestSubmitHonoursContext(t *testing.T) {
	s := New(Config{LatencyMilliseconds: 10_000})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Submit(ctx, "ethereum", "0xA", "0xB", decimal.NewFromInt(1), "USDT")
	assert.ErrorIs(t, err, context.Canceled)
}
