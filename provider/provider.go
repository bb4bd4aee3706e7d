// Package provider implements the request-dispatch core of a
// browser-injected wallet provider. It classifies each JSON-RPC call,
// enforces authorization and session invariants, normalizes parameters
// and either answers locally or forwards to the relay collaborator.
package provider

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/dappbridge/provider-go/params"
	"github.com/dappbridge/provider-go/relay"
	"github.com/dappbridge/provider-go/session"
	"github.com/dappbridge/provider-go/storage"
)

// handler runs an asynchronous local method. Every handler performs its
// own validation and defaulting before optionally touching the relay.
type handler func(ctx context.Context, params []interface{}) (interface{}, error)

// Provider dispatches JSON-RPC calls. Methods split three ways:
// synchronous-local (answered from the session, never suspend),
// asynchronous-local (registered handlers, may touch the relay) and
// opaque-delegate (forwarded verbatim over the relay passthrough).
type Provider struct {
	config  params.Config
	session *session.Session
	logger  *zap.Logger

	handlers map[string]handler

	relayFactory relay.Factory
	relayMu      sync.Mutex
	relay        relay.Relay

	nextID atomic.Uint64
}

// New builds a provider, restoring session state from store.
func New(config params.Config, store storage.Store, factory relay.Factory, logger *zap.Logger) (*Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("instance", uuid.NewString()))

	sess, err := session.New(config, store, logger)
	if err != nil {
		return nil, errors.Wrap(err, "restore session")
	}

	p := &Provider{
		config:       config,
		session:      sess,
		logger:       logger,
		relayFactory: factory,
	}
	p.registerHandlers()
	return p, nil
}

func (p *Provider) registerHandlers() {
	p.handlers = map[string]handler{
		"eth_requestAccounts":        p.ethRequestAccounts,
		"eth_sign":                   p.ethSign,
		"eth_ecRecover":              p.ethEcRecover,
		"personal_sign":              p.personalSign,
		"personal_ecRecover":         p.personalEcRecover,
		"eth_signTransaction":        p.ethSignTransaction,
		"eth_sendRawTransaction":     p.ethSendRawTransaction,
		"eth_sendTransaction":        p.ethSendTransaction,
		"eth_signTypedData_v1":       p.ethSignTypedDataV1,
		"eth_signTypedData_v2":       p.ethSignTypedDataV2,
		"eth_signTypedData_v3":       p.ethSignTypedDataV3,
		"eth_signTypedData_v4":       p.ethSignTypedDataV4,
		"eth_signTypedData":          p.ethSignTypedDataV4,
		"wallet_addEthereumChain":    p.walletAddEthereumChain,
		"wallet_switchEthereumChain": p.walletSwitchEthereumChain,
		"wallet_watchAsset":          p.walletWatchAsset,
	}
}

// SetListener registers a sink for chainChanged/accountsChanged
// notifications emitted on session mutation.
func (p *Provider) SetListener(listener session.Listener) {
	p.session.SetListener(listener)
}

// Session exposes the session for read access.
func (p *Provider) Session() *session.Session {
	return p.session
}

// Accounts implements eth_accounts.
func (p *Provider) Accounts() []string {
	return p.session.Addresses()
}

// Coinbase implements eth_coinbase; returns the selected address or
// the empty string when disconnected.
func (p *Provider) Coinbase() string {
	addr, ok := p.session.SelectedAddress()
	if !ok {
		return ""
	}
	return addr.Hex()
}

// NetVersion implements net_version.
func (p *Provider) NetVersion() string {
	return strconv.FormatUint(p.session.ChainID(), 10)
}

// ChainID implements eth_chainId.
func (p *Provider) ChainID() string {
	return hexutil.EncodeUint64(p.session.ChainID())
}

// trySynchronous answers a synchronous-local method. It is always
// attempted before any other classification because these methods must
// never incur network latency. A handled method with a nil result means
// the caller has to use an asynchronous entry point.
func (p *Provider) trySynchronous(method string) (result interface{}, handled bool) {
	switch method {
	case "eth_accounts":
		return p.Accounts(), true
	case "eth_coinbase":
		if addr, ok := p.session.SelectedAddress(); ok {
			return addr.Hex(), true
		}
		return nil, true
	case "net_version":
		return p.NetVersion(), true
	case "eth_chainId":
		return p.ChainID(), true
	}
	return nil, false
}

// dispatch routes one canonical request: synchronous table first, then
// the asynchronous handler registry, then the relay passthrough with
// the currently configured RPC URL.
func (p *Provider) dispatch(ctx context.Context, req Request) (interface{}, error) {
	if req.Method == "" {
		return nil, errInvalidParams("method is required")
	}

	if result, handled := p.trySynchronous(req.Method); handled {
		return result, nil
	}

	if h, ok := p.handlers[req.Method]; ok {
		return h(ctx, req.Params)
	}

	p.logger.Debug("delegating method to relay", zap.String("method", req.Method))
	return p.ensureRelay().Call(ctx, p.session.JSONRPCURL(), req.Method, req.Params)
}

// ensureRelay returns the memoized relay handle, constructing it on
// first use. Construction is synchronous, so a single instance is
// guaranteed; the mutex only orders true parallel callers.
func (p *Provider) ensureRelay() relay.Relay {
	p.relayMu.Lock()
	defer p.relayMu.Unlock()
	if p.relay == nil {
		p.relay = p.relayFactory()
	}
	return p.relay
}

// requireAuthorization gates privileged methods: it fails before any
// further work when no address has been granted.
func (p *Provider) requireAuthorization() error {
	if !p.session.IsConnected() {
		return errUnauthorized()
	}
	return nil
}

// ethRequestAccounts answers from the session when already connected,
// otherwise asks the relay for an account grant and records it.
func (p *Provider) ethRequestAccounts(ctx context.Context, _ []interface{}) (interface{}, error) {
	if p.session.IsConnected() {
		return p.session.Addresses(), nil
	}

	addresses, err := p.ensureRelay().RequestAccounts(ctx)
	if err != nil {
		return nil, translateRejection(err, deniedAccountAuthorization)
	}
	if err := p.session.SetAddresses(addresses); err != nil {
		return nil, err
	}
	return p.session.Addresses(), nil
}
