package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"

	"github.com/dappbridge/provider-go/params"
	"github.com/dappbridge/provider-go/relay"
	"github.com/dappbridge/provider-go/session"
	"github.com/dappbridge/provider-go/storage"
)

const testRPCURL = "https://node.example.org/rpc"

var testAddresses = []string{
	"0xCD2a3d9F938E13CD947Ec05AbC7FE734Df8DD826",
	"0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB",
}

// relayMock is a hand-written relay double: each operation delegates to
// an optional function field and records the call.
type relayMock struct {
	mu    sync.Mutex
	calls map[string]int

	requestAccountsFn func(ctx context.Context) ([]string, error)
	signMessageFn     func(ctx context.Context, args relay.SignMessageArgs) (hexutil.Bytes, error)
	signTxFn          func(ctx context.Context, params relay.TxParams) (hexutil.Bytes, error)
	submitTxFn        func(ctx context.Context, signedTx hexutil.Bytes, chainID uint64) (common.Hash, error)
	signAndSubmitFn   func(ctx context.Context, params relay.TxParams) (common.Hash, error)
	addChainFn        func(ctx context.Context, args relay.AddChainArgs) (relay.ChainResult, error)
	switchChainFn     func(ctx context.Context, args relay.SwitchChainArgs) (relay.ChainResult, error)
	watchAssetFn      func(ctx context.Context, args relay.WatchAssetArgs) (bool, error)
	callFn            func(ctx context.Context, url, method string, params []interface{}) (json.RawMessage, error)
}

func newRelayMock() *relayMock {
	return &relayMock{calls: make(map[string]int)}
}

func (m *relayMock) record(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[op]++
}

func (m *relayMock) callCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *relayMock) RequestAccounts(ctx context.Context) ([]string, error) {
	m.record("RequestAccounts")
	if m.requestAccountsFn == nil {
		return nil, fmt.Errorf("unexpected relay call RequestAccounts")
	}
	return m.requestAccountsFn(ctx)
}

func (m *relayMock) SignMessage(ctx context.Context, args relay.SignMessageArgs) (hexutil.Bytes, error) {
	m.record("SignMessage")
	if m.signMessageFn == nil {
		return nil, fmt.Errorf("unexpected relay call SignMessage")
	}
	return m.signMessageFn(ctx, args)
}

func (m *relayMock) SignTransaction(ctx context.Context, params relay.TxParams) (hexutil.Bytes, error) {
	m.record("SignTransaction")
	if m.signTxFn == nil {
		return nil, fmt.Errorf("unexpected relay call SignTransaction")
	}
	return m.signTxFn(ctx, params)
}

func (m *relayMock) SubmitTransaction(ctx context.Context, signedTx hexutil.Bytes, chainID uint64) (common.Hash, error) {
	m.record("SubmitTransaction")
	if m.submitTxFn == nil {
		return common.Hash{}, fmt.Errorf("unexpected relay call SubmitTransaction")
	}
	return m.submitTxFn(ctx, signedTx, chainID)
}

func (m *relayMock) SignAndSubmitTransaction(ctx context.Context, params relay.TxParams) (common.Hash, error) {
	m.record("SignAndSubmitTransaction")
	if m.signAndSubmitFn == nil {
		return common.Hash{}, fmt.Errorf("unexpected relay call SignAndSubmitTransaction")
	}
	return m.signAndSubmitFn(ctx, params)
}

func (m *relayMock) AddChain(ctx context.Context, args relay.AddChainArgs) (relay.ChainResult, error) {
	m.record("AddChain")
	if m.addChainFn == nil {
		return relay.ChainResult{}, fmt.Errorf("unexpected relay call AddChain")
	}
	return m.addChainFn(ctx, args)
}

func (m *relayMock) SwitchChain(ctx context.Context, args relay.SwitchChainArgs) (relay.ChainResult, error) {
	m.record("SwitchChain")
	if m.switchChainFn == nil {
		return relay.ChainResult{}, fmt.Errorf("unexpected relay call SwitchChain")
	}
	return m.switchChainFn(ctx, args)
}

func (m *relayMock) WatchAsset(ctx context.Context, args relay.WatchAssetArgs) (bool, error) {
	m.record("WatchAsset")
	if m.watchAssetFn == nil {
		return false, fmt.Errorf("unexpected relay call WatchAsset")
	}
	return m.watchAssetFn(ctx, args)
}

func (m *relayMock) Call(ctx context.Context, url, method string, params []interface{}) (json.RawMessage, error) {
	m.record("Call")
	if m.callFn == nil {
		return nil, fmt.Errorf("unexpected relay call Call")
	}
	return m.callFn(ctx, url, method, params)
}

// listenerMock records session notifications.
type listenerMock struct {
	mu              sync.Mutex
	chainChanges    []uint64
	accountsChanges [][]string
}

func (l *listenerMock) ChainChanged(chainID uint64, _ string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.chainChanges = append(l.chainChanges, chainID)
}

func (l *listenerMock) AccountsChanged(addresses []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accountsChanges = append(l.accountsChanges, addresses)
}

func (l *listenerMock) chainChangeCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.chainChanges)
}

func newTestProvider(t *testing.T, mock *relayMock) *Provider {
	t.Helper()
	p, err := New(
		params.Config{AppName: "test dapp", JSONRPCURL: testRPCURL},
		storage.NewMemoryStore(),
		func() relay.Relay { return mock },
		nil,
	)
	require.NoError(t, err)
	return p
}

func connect(t *testing.T, p *Provider, addresses ...string) {
	t.Helper()
	if len(addresses) == 0 {
		addresses = testAddresses
	}
	require.NoError(t, p.Session().SetAddresses(addresses))
}

var _ relay.Relay = (*relayMock)(nil)
var _ session.Listener = (*listenerMock)(nil)
