package events

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestAMQPWaitsOutRedialPeriod(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	dials := 0
	p := &AMQP{
		url:      "amqp://broker.invalid",
		exchange: "eamcrm.events",
		lg:       zap.New(core).Sugar(),
		dial: func(string) (*amqp.Connection, error) {
			dials++
			return nil, errors.New("connection refused")
		},
		now: func() time.Time { return clock },
	}
	ctx := context.Background()
	ev := Event{Type: ProductCreated, ResourceID: "p1"}

	err := p.Publish(ctx, ev)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBrokerUnavailable)
	assert.Equal(t, 1, dials)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, p.Publish(ctx, ev), ErrBrokerUnavailable)
	}
	assert.Equal(t, 1, dials)

	clock = clock.Add(redialPeriod)
	require.Error(t, p.Publish(ctx, ev))
	assert.Equal(t, 2, dials)
	assert.Equal(t, 1, logs.FilterMessage("amqp connection lost").Len())
}
