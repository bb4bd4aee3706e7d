package provider

import (
	"context"
	"sync"
)

const jsonrpcVersion = "2.0"

// Request is the canonical JSON-RPC request envelope. The id is an
// opaque correlation token preserved end-to-end.
type Request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// Response is the JSON-RPC response envelope. Result and Error are
// mutually exclusive; ID always echoes the request id.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int64       `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// RequestArguments is the structured argument of the primary
// asynchronous entry point: a method name plus array or object params.
type RequestArguments struct {
	Method string      `json:"method"`
	Params interface{} `json:"params,omitempty"`
}

// ResponseCallback receives a single asynchronous response. The error,
// when set, is already serialized to the structured shape.
type ResponseCallback func(resp *Response, err error)

// BatchResponseCallback receives the ordered responses of a batch, or
// the first error when any request of the batch fails.
type BatchResponseCallback func(resps []*Response, err error)

// errCallbackRequired is returned by Send when the method has no
// synchronous handler and can only be served asynchronously.
var errCallbackRequired = errInvalidRequest(
	"please pass a callback to call this method asynchronously", nil)

// Do is the primary asynchronous entry point ("request" in EIP-1193
// terms). It validates the argument shape, assigns a fresh correlation
// id and routes the call. Any escaping failure is serialized to the
// canonical structured error.
func (p *Provider) Do(ctx context.Context, args *RequestArguments) (interface{}, error) {
	if args == nil {
		return nil, errInvalidRequest("expected a single, non-array, object argument", nil)
	}
	if args.Method == "" {
		return nil, errInvalidRequest("'args.method' must be a non-empty string", args.Method)
	}

	params, ok := normalizeParams(args.Params)
	if !ok {
		return nil, errInvalidRequest("'args.params' must be an object or array if provided", args.Params)
	}

	req := Request{
		JSONRPC: jsonrpcVersion,
		ID:      int64(p.nextID.Add(1)),
		Method:  args.Method,
		Params:  params,
	}

	result, err := p.dispatch(ctx, req)
	if err != nil {
		return nil, Serialize(err)
	}
	return result, nil
}

// Call dispatches a bare method name with positional params and
// returns the bare result. Legacy promise-style "send(method, params)".
func (p *Provider) Call(ctx context.Context, method string, callParams ...interface{}) (interface{}, error) {
	return p.Do(ctx, &RequestArguments{Method: method, Params: callParams})
}

// Send answers a single request through the legacy synchronous
// interface. Only synchronous-local methods can be served this way;
// everything else needs a callback or the asynchronous entry points.
func (p *Provider) Send(req Request) (*Response, error) {
	result, handled := p.trySynchronous(req.Method)
	if !handled || result == nil {
		return nil, errCallbackRequired
	}
	return &Response{JSONRPC: jsonrpcVersion, ID: req.ID, Result: result}, nil
}

// SendBatch answers an ordered request sequence strictly in order
// through the legacy synchronous interface. The first request whose
// method has no synchronous handler aborts the remainder.
func (p *Provider) SendBatch(reqs []Request) ([]*Response, error) {
	resps := make([]*Response, 0, len(reqs))
	for _, req := range reqs {
		resp, err := p.Send(req)
		if err != nil {
			return nil, err
		}
		resps = append(resps, resp)
	}
	return resps, nil
}

// SendAsync dispatches a single request and delivers the response
// through the callback.
func (p *Provider) SendAsync(ctx context.Context, req Request, cb ResponseCallback) {
	go func() {
		resp, err := p.do(ctx, req)
		cb(resp, err)
	}()
}

// SendBatchAsync fans the batch out concurrently, then joins preserving
// input order. The batch fails as a whole on any single failure; no
// partial results reach the caller. Side effects of concurrently
// dispatched requests may interleave unpredictably.
func (p *Provider) SendBatchAsync(ctx context.Context, reqs []Request, cb BatchResponseCallback) {
	go func() {
		resps := make([]*Response, len(reqs))

		var (
			wg       sync.WaitGroup
			errOnce  sync.Once
			firstErr error
		)
		for i := range reqs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				resp, err := p.do(ctx, reqs[i])
				if err != nil {
					errOnce.Do(func() { firstErr = err })
					return
				}
				resps[i] = resp
			}(i)
		}
		wg.Wait()

		if firstErr != nil {
			cb(nil, firstErr)
			return
		}
		cb(resps, nil)
	}()
}

// do routes one request and wraps the outcome into a response envelope
// with the structured error shape applied at the boundary.
func (p *Provider) do(ctx context.Context, req Request) (*Response, error) {
	result, err := p.dispatch(ctx, req)
	if err != nil {
		return nil, Serialize(err)
	}
	return &Response{JSONRPC: jsonrpcVersion, ID: req.ID, Result: result}, nil
}

// normalizeParams reshapes the params of the structured call argument:
// absent params become an empty sequence, an array stays as is, a plain
// object becomes a single-element sequence. Anything else is rejected.
func normalizeParams(raw interface{}) ([]interface{}, bool) {
	switch v := raw.(type) {
	case nil:
		return []interface{}{}, true
	case []interface{}:
		return v, true
	case map[string]interface{}:
		return []interface{}{v}, true
	}
	return nil, false
}
