package api

// AuthExpiredEvent is emitted once when the backend rejects the resident
// credential.
type AuthExpiredEvent struct {
	// Endpoint is the request that observed the 401.
	Endpoint string
	// Message is the backend's envelope message, if any.
	Message string
	// Fingerprint identifies the cleared token.
	Fingerprint string
}

// OnAuthExpired registers fn to run after a resident credential is cleared
// by a 401. fn runs on the goroutine that observed the 401. The returned
// function unregisters fn.
func (c *Client) OnAuthExpired(fn func(AuthExpiredEvent)) (cancel func()) {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subscribers, id)
		c.mu.Unlock()
	}
}

func (c *Client) emit(ev AuthExpiredEvent) {
	c.mu.Lock()
	fns := make([]func(AuthExpiredEvent), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
