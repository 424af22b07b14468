package stop

import (
	"context"
	"github.com/stretchr/testify/assert"
	"testing"
	"time"
)

func TestRequest_AwaitDoneShouldReturnOnNotify(t *testing.T) {
	req := NewRequest(context.Background())
	go req.NotifyDone()

	assert.NoError(t, req.AwaitDone())
}

func TestRequest_AwaitDoneShouldReturnErrorOnContextExpiry(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	req := NewRequest(ctx)

	assert.ErrorIs(t, req.AwaitDone(), context.DeadlineExceeded)
}

func TestRequest_NotifyDoneShouldBeCallableTwice(t *testing.T) {
	req := NewRequest(context.Background())
	req.NotifyDone()
	assert.NotPanics(t, req.NotifyDone)
	assert.NoError(t, req.AwaitDone())
}

func TestChan_SendShouldWaitForAcknowledgement(t *testing.T) {
	c := NewChan()
	acknowledged := make(chan struct{})
	go func() {
		req := <-c
		close(acknowledged)
		req.NotifyDone()
	}()

	assert.NoError(t, c.Send(context.Background()))
	select {
	case <-acknowledged:
	default:
		t.Fatal("Send returned before the loop received the request")
	}
}

func TestChan_SendShouldGiveUpWhenNobodyListens(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, NewChan().Send(ctx), context.DeadlineExceeded)
}

func TestChan_SendShouldGiveUpWhenLoopNeverAcknowledges(t *testing.T) {
	c := NewChan()
	go func() { <-c }()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, c.Send(ctx), context.DeadlineExceeded)
}
