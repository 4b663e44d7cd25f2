package watcher

import (
	"sync"
	"time"
)

// debouncer delays fire(path) until no new event for path has arrived for
// the configured window. Each new event restarts the window.
type debouncer struct {
	window time.Duration
	fire   func(path string)

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newDebouncer(window time.Duration, fire func(path string)) *debouncer {
	return &debouncer{
		window: window,
		fire:   fire,
		timers: make(map[string]*time.Timer),
	}
}

// touch records an event for path.
func (d *debouncer) touch(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.timers[path]; ok {
		t.Stop()
	}

	var t *time.Timer

	t = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		// A later touch replaced this timer; let that one fire.
		if d.timers[path] != t {
			d.mu.Unlock()
			return
		}

		delete(d.timers, path)
		d.mu.Unlock()

		d.fire(path)
	})

	d.timers[path] = t
}

// pending reports the number of paths waiting to fire.
func (d *debouncer) pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.timers)
}

// stop cancels every pending timer.
func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for p, t := range d.timers {
		t.Stop()
		delete(d.timers, p)
	}
}
