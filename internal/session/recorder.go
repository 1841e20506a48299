package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Vasu1712/scenyx-securechat/internal/errs"
	"github.com/Vasu1712/scenyx-securechat/internal/models"
)

var (
	ErrRecordingActive  = errors.New("a recording is already in progress")
	ErrPermissionDenied = errors.New("microphone permission denied")
)

// Permission asks the user for microphone access. A nil error grants it.
type Permission interface {
	RequestMicrophone(ctx context.Context) error
}

// PermissionFunc adapts a function to Permission.
type PermissionFunc func(ctx context.Context) error

func (f PermissionFunc) RequestMicrophone(ctx context.Context) error { return f(ctx) }

// AllowAll grants every request.
var AllowAll = PermissionFunc(func(context.Context) error { return nil })

// Recorder gates the microphone: at most one recording at a time, and only
// after consent.
type Recorder struct {
	perm   Permission
	notify func(models.Notice)

	mu     sync.Mutex
	active bool
}

func NewRecorder(perm Permission, notify func(models.Notice)) *Recorder {
	if perm == nil {
		perm = AllowAll
	}
	return &Recorder{perm: perm, notify: notify}
}

// Start reserves the microphone. A denial raises a resource_denied notice.
func (r *Recorder) Start(ctx context.Context) error {
	const op = "session.Record"
	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return errs.E(errs.Resource, op, ErrRecordingActive)
	}
	r.active = true
	r.mu.Unlock()

	if err := r.perm.RequestMicrophone(ctx); err != nil {
		r.mu.Lock()
		r.active = false
		r.mu.Unlock()
		if r.notify != nil {
			r.notify(models.Notice{Kind: models.NoticeResourceDenied, Text: "Microphone access was denied"})
		}
		return errs.E(errs.Resource, op, fmt.Errorf("%w: %v", ErrPermissionDenied, err))
	}
	return nil
}

// Stop releases the microphone.
func (r *Recorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = false
}

func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}
