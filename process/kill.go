package process

import "sync"

// KillRequest asks the supervisor to end the child. Force terminates it
// outright, otherwise Signal is delivered to the child's process group.
type KillRequest struct {
	Signal Signal
	Force  bool
}

// killChannel carries at most one queued request from a KillSender to a
// KillReceiver. Once the receiver is closed every send fails.
type killChannel struct {
	mu      sync.Mutex
	ch      chan KillRequest
	dropped bool
}

// KillSender is the requesting half of a kill channel.
type KillSender struct {
	c *killChannel
}

// KillReceiver is the supervising half of a kill channel.
type KillReceiver struct {
	c *killChannel
}

// NewKillChannel returns the two connected halves of a kill channel.
func NewKillChannel() (*KillSender, *KillReceiver) {
	c := &killChannel{ch: make(chan KillRequest, 1)}
	return &KillSender{c: c}, &KillReceiver{c: c}
}

// Send queues req without blocking. It reports false if the receiver has
// gone away or a request is already waiting.
func (s *KillSender) Send(req KillRequest) bool {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()

	if s.c.dropped {
		return false
	}

	select {
	case s.c.ch <- req:
		return true
	default:
		return false
	}
}

// C returns the channel requests arrive on.
func (r *KillReceiver) C() <-chan KillRequest {
	return r.c.ch
}

// Close drops the receiver. Sends after this report false.
func (r *KillReceiver) Close() {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	r.c.dropped = true
}
