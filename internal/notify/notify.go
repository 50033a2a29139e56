// Package notify abstracts local "new message" alerts so the realtime
// layer does not care where they end up.
package notify

import "log"

type Notifier interface {
	Notify(title, body string)
}

// LogNotifier writes alerts to the process log. The terminal client uses
// it as its notification surface.
type LogNotifier struct {
	Muted bool
}

func (n *LogNotifier) Notify(title, body string) {
	if n.Muted {
		return
	}
	if body == "" {
		log.Printf("[notify] %s", title)
		return
	}
	log.Printf("[notify] %s: %s", title, body)
}

// Func adapts a plain function, mostly for tests.
type Func func(title, body string)

func (f Func) Notify(title, body string) { f(title, body) }
