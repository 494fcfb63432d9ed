package async

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFutureSetValueOnce(t *testing.T) {
	f := NewFuture()
	if ok, err := f.TryGetValue(); ok || err != nil {
		t.Fatalf("expected pending future, got %v %v", ok, err)
	}

	first := errors.New("first")
	assert.True(t, f.SetValue(first))
	assert.False(t, f.SetValue(errors.New("second")))

	ok, err := f.TryGetValue()
	assert.True(t, ok)
	assert.Equal(t, first, err)

	select {
	case <-f.Done():
	default:
		t.Fatal("Done channel should be closed")
	}
}

func TestFutureSubscribe(t *testing.T) {
	f := NewFuture()
	var got []string
	f.Subscribe(func(err error) { got = append(got, "a") })
	f.Subscribe(func(err error) { got = append(got, "b") })
	assert.Empty(t, got)

	f.SetValue(nil)
	assert.Equal(t, []string{"a", "b"}, got)

	// Late subscribers run immediately.
	f.Subscribe(func(err error) { got = append(got, "c") })
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestFutureWait(t *testing.T) {
	f := NewFuture()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Equal(t, context.DeadlineExceeded, f.Wait(ctx))

	go f.SetValue(nil)
	assert.Nil(t, f.Wait(context.Background()))
}
