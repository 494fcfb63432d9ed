package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"

	"github.com/twitter/tracereq/event"
)

var window = Window{Index: 3, Range: event.Eternity}

func TestRetryingRetriesTemporaryFailures(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	cursor := NewMockCursor(mockCtrl)
	src := NewMockEventSource(mockCtrl)
	temp := &FailureError{Rank: 3, Transient: true, Err: errors.New("busy")}
	gomock.InOrder(
		src.EXPECT().ArmCursor(gomock.Any(), window).Return(nil, temp),
		src.EXPECT().ArmCursor(gomock.Any(), window).Return(nil, temp),
		src.EXPECT().ArmCursor(gomock.Any(), window).Return(cursor, nil),
	)

	r := NewRetrying(src, time.Millisecond, 5)
	c, err := r.ArmCursor(context.Background(), window)
	assert.Nil(t, err)
	assert.Equal(t, cursor, c)
}

func TestRetryingStopsOnPermanentFailure(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	src := NewMockEventSource(mockCtrl)
	perm := errors.New("corrupt trace")
	src.EXPECT().ArmCursor(gomock.Any(), window).Return(nil, perm).Times(1)

	r := NewRetrying(src, time.Millisecond, 5)
	c, err := r.ArmCursor(context.Background(), window)
	assert.Nil(t, c)
	assert.Equal(t, perm, err)
}

func TestRetryingGivesUp(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	src := NewMockEventSource(mockCtrl)
	temp := &FailureError{Rank: 0, Transient: true, Err: errors.New("busy")}
	src.EXPECT().ArmCursor(gomock.Any(), window).Return(nil, temp).Times(3)

	r := NewRetrying(src, time.Millisecond, 2)
	_, err := r.ArmCursor(context.Background(), window)
	assert.Equal(t, temp, err)
	assert.True(t, IsTemporary(err))
}

func TestIsTemporary(t *testing.T) {
	assert.False(t, IsTemporary(errors.New("plain")))
	assert.False(t, IsTemporary(&FailureError{Err: errors.New("x")}))
	assert.True(t, IsTemporary(&FailureError{Transient: true, Err: errors.New("x")}))
	assert.Equal(t, "source failure at rank 7: x", (&FailureError{Rank: 7, Err: errors.New("x")}).Error())
}
