// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package nlcore

import (
	"context"
	"errors"

	"grimm.is/nlcore/nlmsg"
)

// Execute submits a request and collects the complete response sequence.
// A dump returns every entry; an acked change returns an empty slice.
func (c *Conn) Execute(ctx context.Context, m *nlmsg.Message, flags uint16, opts ...SubmitOption) ([]*nlmsg.Message, error) {
	r, err := c.Submit(ctx, m, flags, opts...)
	if err != nil {
		return nil, err
	}
	defer r.Cancel()

	var out []*nlmsg.Message
	for {
		resp, err := r.Next(ctx)
		if errors.Is(err, ErrEndOfStream) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, resp)
	}
}

// Call submits a request expecting at most one response message and
// discards the rest of the stream. A bare ack yields a nil message.
func (c *Conn) Call(ctx context.Context, m *nlmsg.Message, flags uint16, opts ...SubmitOption) (*nlmsg.Message, error) {
	r, err := c.Submit(ctx, m, flags, opts...)
	if err != nil {
		return nil, err
	}
	defer r.Cancel()

	resp, err := r.Next(ctx)
	if errors.Is(err, ErrEndOfStream) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}
