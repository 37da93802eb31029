package bookings

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// HostEvent is a visibility or focus change reported by the host.
type HostEvent int

const (
	HostHidden HostEvent = iota
	HostVisible
	HostFocused
)

func (e HostEvent) String() string {
	switch e {
	case HostHidden:
		return "hidden"
	case HostVisible:
		return "visible"
	case HostFocused:
		return "focused"
	default:
		return "unknown"
	}
}

// Host delivers HostEvents to a subscriber until the returned func is called.
type Host interface {
	Subscribe(fn func(HostEvent)) (unsubscribe func())
}

// SignalHost maps process signals to host events:
// SIGUSR1 hides, SIGUSR2 shows.
type SignalHost struct{}

// Subscribe starts listening for signals.
func (SignalHost) Subscribe(fn func(HostEvent)) func() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1, syscall.SIGUSR2)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-ch:
				if sig == syscall.SIGUSR1 {
					fn(HostHidden)
				} else {
					fn(HostVisible)
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(ch)
			close(done)
		})
	}
}
