package callingcard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callingcard/internal/app/user"
)

func TestLoop_RunsInOrderAndAllowsNestedPosts(t *testing.T) {
	loop := NewLoop()
	go loop.Run(context.Background())
	defer loop.Stop()

	var got []int
	done := make(chan struct{})

	loop.Post(func() {
		got = append(got, 1)
		loop.Post(func() {
			got = append(got, 3)
			close(done)
		})
	})
	loop.Post(func() { got = append(got, 2) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not run")
	}
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestLoop_StopRejectsPosts(t *testing.T) {
	loop := NewLoop()
	go loop.Run(context.Background())

	loop.Stop()
	loop.Stop()

	select {
	case <-loop.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.False(t, loop.Post(func() {}))
}

func TestLoop_ContextCancelStops(t *testing.T) {
	loop := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)

	cancel()

	select {
	case <-loop.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.False(t, loop.Post(func() {}))
}

func TestDisplayable(t *testing.T) {
	ada, err := user.New("Ada", "ada@example.com", "")
	require.NoError(t, err)
	bob, err := user.New("Bob", "bob@example.com", "")
	require.NoError(t, err)
	nameless := user.User{EmailAddress: "x@example.com"}

	got := Displayable([]user.User{ada, nameless, bob, ada})

	assert.Equal(t, []user.User{ada, bob}, got)
}
