package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, s *Subscription[int], n int) []int {
	t.Helper()
	var res []int
	timeout := time.After(time.Second)
	for len(res) < n {
		select {
		case v, ok := <-s.C():
			require.True(t, ok, "channel closed early")
			res = append(res, v)
		case <-timeout:
			t.Fatalf("timeout after %d values", len(res))
		}
	}
	return res
}

func TestHub_Order(t *testing.T) {
	h := NewHub[int]()
	a := h.Subscribe()
	b := h.Subscribe()

	// publisher never blocks even though nobody is reading yet
	for i := 0; i < 1000; i++ {
		h.Publish(i)
	}

	va := collect(t, a, 1000)
	vb := collect(t, b, 1000)
	for i := range va {
		assert.Equal(t, i, va[i])
		assert.Equal(t, i, vb[i])
	}
}

func TestHub_CloseDrains(t *testing.T) {
	h := NewHub[int]()
	s := h.Subscribe()
	h.Publish(1)
	h.Publish(2)
	h.Close()
	h.Publish(3)

	assert.Equal(t, []int{1, 2}, collect(t, s, 2))
	_, ok := <-s.C()
	assert.False(t, ok)

	late := h.Subscribe()
	_, ok = <-late.C()
	assert.False(t, ok)
}

func TestSubscription_Close(t *testing.T) {
	h := NewHub[int]()
	s := h.Subscribe()
	h.Publish(1)
	s.Close()
	h.Publish(2)

	for range s.C() {
		// at most the value already in flight
	}
	assert.Empty(t, h.subs)
}
