package framing

import (
	"context"
	"fmt"
	"io"

	"github.com/ipiis/ipiis-go/account"
	"github.com/ipiis/ipiis-go/envelope"
)

// Stream is the minimal read/write surface an Op needs: a single
// bidirectional stream returned by a transport.Channel.
type Stream = io.ReadWriter

// ErrorPayload is the fixed response payload carried by an ACK|ERR reply:
// a guarantor-signed string (spec.md §4.4, §7). Every operation shares
// this one type for its error path, so a caller can decode an error
// response without knowing the operation's success-path Resp type.
type ErrorPayload struct {
	Message string
}

// HandlerFunc is the business logic bound to one opcode: given the
// caller's verified guarantee envelope, it produces a response payload or
// an application error that becomes the HandlerError surfaced to the
// caller (spec.md §4.7).
type HandlerFunc[Req, Resp any] func(ctx context.Context, guarantee *envelope.Guaranteed[Req]) (Resp, error)

// Op is a table entry binding an opcode to its request/response field
// types, its self-signed requirement and its handler — the "operation
// table" spec.md §9 describes in place of generated opcode modules: each
// entry is built once, by NewOp, and carries no further type parameters,
// so a Server can keep a plain map[OpCode]*Op (see server.Server.RegisterOp).
type Op struct {
	Code           OpCode
	Name           string
	SelfSignedOnly bool

	serve func(ctx context.Context, self *account.Account, stream Stream) error
}

// NewOp builds a table entry for an operation whose request is Req and
// whose successful response is Resp — both plain codec-serializable
// structs (spec.md §9's "declared binary schema" contract). The returned
// Op no longer carries Req/Resp as type parameters: that is the "table
// entry" shape the dispatch loop in Serve requires.
func NewOp[Req, Resp any](code OpCode, name string, selfSignedOnly bool, handler HandlerFunc[Req, Resp]) *Op {
	op := &Op{Code: code, Name: name, SelfSignedOnly: selfSignedOnly}
	op.serve = func(ctx context.Context, self *account.Account, stream Stream) error {
		envBytes, err := ReadField(stream)
		if err != nil {
			return fmt.Errorf("framing: %s: read request envelope: %w", name, err)
		}
		g, err := envelope.DecodeGuaranteed[Req](envBytes)
		if err != nil {
			return fmt.Errorf("framing: %s: decode request: %w", name, err)
		}
		selfRef := self.Ref()
		if verr := envelope.Verify(g, &selfRef); verr != nil {
			return replyErr(self, stream, g.Meta.Guarantee, verr)
		}
		if selfSignedOnly {
			if verr := envelope.EnsureSelfSigned(g); verr != nil {
				return replyErr(self, stream, g.Meta.Guarantee, verr)
			}
		}
		resp, herr := handler(ctx, g)
		if herr != nil {
			return replyErr(self, stream, g.Meta.Guarantee, herr)
		}
		return replyOK(self, stream, g.Meta.Guarantee, resp)
	}
	return op
}

// Serve reads the one opcode and request envelope heading a freshly
// accepted stream and dispatches it to the matching Op, writing a
// symmetric ACK|OK or ACK|ERR reply (spec.md §4.6's per-stream handler).
// An unknown opcode is a fatal protocol error: the caller gets no reply,
// because without a successfully decoded request envelope there is no
// known target to address a guarantor-signed error to.
func Serve(ctx context.Context, self *account.Account, stream Stream, ops map[OpCode]*Op) error {
	code, err := ReadOpCode(stream)
	if err != nil {
		return err
	}
	op, ok := ops[code]
	if !ok {
		return fmt.Errorf("%w: unknown opcode %d", ErrProtocol, code)
	}
	return op.serve(ctx, self, stream)
}

func replyOK[Resp any](self *account.Account, stream Stream, target account.AccountRef, resp Resp) error {
	if err := WriteResult(stream, AckOK); err != nil {
		return err
	}
	b, err := signResponse(self, target, resp)
	if err != nil {
		return err
	}
	return WriteField(stream, b)
}

func replyErr(self *account.Account, stream Stream, target account.AccountRef, cause error) error {
	if err := WriteResult(stream, AckErr); err != nil {
		return err
	}
	b, err := signResponse(self, target, ErrorPayload{Message: cause.Error()})
	if err != nil {
		return err
	}
	return WriteField(stream, b)
}

// signResponse wraps resp in a guarantee envelope addressed back to the
// original caller, then countersigns it as the guarantor — the same
// account plays both roles, but in two distinct signing contexts
// (spec.md §4.3's Build then SignAsGuarantor), and the guarantee's target
// field binds the reply to the original caller so it cannot be replayed
// to a different peer.
func signResponse[T any](self *account.Account, target account.AccountRef, resp T) ([]byte, error) {
	g, err := envelope.Build(self, target, resp)
	if err != nil {
		return nil, fmt.Errorf("framing: build response envelope: %w", err)
	}
	cs, err := envelope.SignAsGuarantor(g, self)
	if err != nil {
		return nil, fmt.Errorf("framing: countersign response: %w", err)
	}
	return cs.Bytes()
}
