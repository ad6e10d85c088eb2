package gateway

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"sync"
)

// Return-trip query parameter names.
const (
	ParamReturn = "gateway_return"
	ParamStatus = "status"
	ParamState  = "state"
	ParamError  = "error"
)

// ReturnParams are the query parameters the gateway appends on the way back.
type ReturnParams struct {
	Returned bool
	Status   string
	State    string
	Error    string
}

// ParseReturnParams reads the return-trip parameters from q. gateway_return
// accepts any boolean spelling; a bare "gateway_return" counts as true.
func ParseReturnParams(q url.Values) ReturnParams {
	p := ReturnParams{
		Status: strings.TrimSpace(q.Get(ParamStatus)),
		State:  strings.TrimSpace(q.Get(ParamState)),
		Error:  strings.TrimSpace(q.Get(ParamError)),
	}
	if vs, ok := q[ParamReturn]; ok {
		v := ""
		if len(vs) > 0 {
			v = strings.TrimSpace(vs[0])
		}
		b, err := strconv.ParseBool(v)
		p.Returned = v == "" || (err == nil && b)
	}
	return p
}

// Signaled reports whether the parameters announce a return from authorization.
func (p ReturnParams) Signaled() bool {
	return p.Returned
}

// Inbox holds the latest undelivered return trip. Take consumes it, so a
// refresh cannot re-trigger reconciliation.
type Inbox struct {
	mu     sync.Mutex
	params *ReturnParams
	notify chan struct{}
}

func NewInbox() *Inbox {
	return &Inbox{notify: make(chan struct{}, 1)}
}

// Deliver stores p, replacing anything not yet taken.
func (in *Inbox) Deliver(p ReturnParams) {
	in.mu.Lock()
	in.params = &p
	in.mu.Unlock()

	select {
	case in.notify <- struct{}{}:
	default:
	}
}

// Take returns and clears the pending parameters.
func (in *Inbox) Take() (ReturnParams, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.params == nil {
		return ReturnParams{}, false
	}
	p := *in.params
	in.params = nil
	return p, true
}

// Wait blocks until parameters are delivered, then takes them.
func (in *Inbox) Wait(ctx context.Context) (ReturnParams, error) {
	for {
		if p, ok := in.Take(); ok {
			return p, nil
		}
		select {
		case <-in.notify:
		case <-ctx.Done():
			return ReturnParams{}, ctx.Err()
		}
	}
}
