package db

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestPingCheck(t *testing.T) {
	p := NewPingCheck(pingFunc(func(context.Context) error { return nil }))
	assert.Equal(t, "database", p.Name())
	assert.NoError(t, p.Check(context.Background()))

	down := errors.New("connection refused")
	p = NewPingCheck(pingFunc(func(context.Context) error { return down }))
	assert.ErrorIs(t, p.Check(context.Background()), down)
}
