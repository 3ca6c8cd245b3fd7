// Package notify posts and withdraws user-facing notifications.
package notify

import (
	"context"
	"log"
	"sync"
)

// Logical notification slots.
const (
	IDSchedulerActive = 1
	IDBeep            = 2
)

type Notification struct {
	ID      int
	Title   string
	Text    string
	Ongoing bool
}

// Notifier posts notifications. Post replaces an earlier notification with
// the same ID, so re-posting is always safe.
type Notifier interface {
	Post(ctx context.Context, n Notification) error
	Cancel(ctx context.Context, id int) error
}

// LogNotifier writes notifications to the process log for headless hosts.
type LogNotifier struct{}

func (LogNotifier) Post(_ context.Context, n Notification) error {
	log.Printf("[notify] post #%d %q: %s", n.ID, n.Title, n.Text)
	return nil
}

func (LogNotifier) Cancel(_ context.Context, id int) error {
	log.Printf("[notify] cancel #%d", id)
	return nil
}

// Recorder keeps the currently visible notifications in memory.
type Recorder struct {
	mu      sync.Mutex
	visible map[int]Notification
	posts   int
	cancels int
}

func NewRecorder() *Recorder {
	return &Recorder{visible: make(map[int]Notification)}
}

func (r *Recorder) Post(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.visible[n.ID] = n
	r.posts++
	return nil
}

func (r *Recorder) Cancel(_ context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.visible, id)
	r.cancels++
	return nil
}

// Visible returns the notification shown in slot id.
func (r *Recorder) Visible(id int) (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.visible[id]
	return n, ok
}

func (r *Recorder) Counts() (posts, cancels int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.posts, r.cancels
}
