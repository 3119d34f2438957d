package framing

import (
	"context"
	"fmt"

	"github.com/ipiis/ipiis-go/account"
	"github.com/ipiis/ipiis-go/envelope"
)

// Call writes a complete request (opcode, then a guarantee envelope
// wrapping req) to stream, reads the response, and returns the verified
// typed payload or a *HandlerError carrying the server's own error
// message (spec.md §6's wire format; §7's error propagation policy).
//
// self signs the outgoing request and is also the expected target of the
// response's guarantee, so a reply meant for a different caller — or
// countersigned by a peer other than target — is rejected before Call
// returns it (spec.md's replay-prevention invariant).
func Call[Req, Resp any](ctx context.Context, stream Stream, self *account.Account, op OpCode, target account.AccountRef, req Req) (Resp, error) {
	var zero Resp
	if err := WriteOpCode(stream, op); err != nil {
		return zero, fmt.Errorf("framing: write opcode: %w", err)
	}
	g, err := envelope.Build(self, target, req)
	if err != nil {
		return zero, fmt.Errorf("framing: build request envelope: %w", err)
	}
	envBytes, err := g.Bytes()
	if err != nil {
		return zero, err
	}
	if err := WriteField(stream, envBytes); err != nil {
		return zero, fmt.Errorf("framing: write request envelope: %w", err)
	}

	flag, err := ReadResult(stream)
	if err != nil {
		return zero, err
	}
	selfRef := self.Ref()

	switch flag {
	case AckOK:
		b, err := ReadField(stream)
		if err != nil {
			return zero, err
		}
		cs, err := envelope.DecodeCountersigned[Resp](b)
		if err != nil {
			return zero, fmt.Errorf("framing: decode response: %w", err)
		}
		if err := envelope.VerifyCountersigned(cs, &selfRef); err != nil {
			return zero, err
		}
		if !cs.GuarantorAccount.Equals(target) {
			return zero, ErrWrongGuarantor
		}
		return cs.Guarantee.Payload, nil

	case AckErr:
		b, err := ReadField(stream)
		if err != nil {
			return zero, err
		}
		cs, err := envelope.DecodeCountersigned[ErrorPayload](b)
		if err != nil {
			return zero, fmt.Errorf("framing: decode error response: %w", err)
		}
		if err := envelope.VerifyCountersigned(cs, &selfRef); err != nil {
			return zero, err
		}
		if !cs.GuarantorAccount.Equals(target) {
			return zero, ErrWrongGuarantor
		}
		return zero, &HandlerError{Message: cs.Guarantee.Payload.Message}

	default:
		return zero, fmt.Errorf("%w: result flag %#x", ErrProtocol, flag)
	}
}
