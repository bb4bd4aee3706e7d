package session

import (
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/dappbridge/provider-go/params"
	"github.com/dappbridge/provider-go/storage"
)

// Storage keys owned by the session. Values are strings: addresses are
// space-joined in canonical checksum form, the chain id is a decimal
// string, the RPC URL is stored raw.
const (
	addressesKey  = "Addresses"
	chainIDKey    = "DefaultChainID"
	jsonRPCURLKey = "DefaultJSONRPCURL"
)

// errors
var (
	ErrInvalidAddress = errors.New("session: invalid address")
)

// Listener receives session change notifications. Notifications are
// delivered synchronously from the mutating call.
type Listener interface {
	ChainChanged(chainID uint64, jsonRPCURL string)
	AccountsChanged(addresses []string)
}

// Session holds the authorized address list, the active chain id and
// the RPC URL, and persists every change through the injected store.
//
// The address sequence is never mutated in place: each change replaces
// the whole slice and is compared by value to the previous one first,
// so repeated identical updates produce no storage write and no
// notification.
type Session struct {
	mu       sync.Mutex
	store    storage.Store
	logger   *zap.Logger
	listener Listener

	addresses  []common.Address
	chainID    uint64
	jsonRPCURL string

	// set after the first chain-changed emission; the first emission
	// always fires so consumers observe at least one definitive value
	chainNotified bool
}

// New restores a session from storage, falling back to the config
// defaults for anything storage does not hold.
func New(config params.Config, store storage.Store, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Session{
		store:      store,
		logger:     logger,
		chainID:    config.ActiveChainID(),
		jsonRPCURL: config.JSONRPCURL,
	}

	persisted, err := store.Get(addressesKey)
	if err != nil {
		return nil, err
	}
	if persisted != "" {
		addresses, err := canonicalize(strings.Fields(persisted))
		if err != nil {
			return nil, err
		}
		s.addresses = addresses
	}

	rawChainID, err := store.Get(chainIDKey)
	if err != nil {
		return nil, err
	}
	if rawChainID != "" {
		chainID, err := strconv.ParseUint(rawChainID, 10, 64)
		if err != nil {
			logger.Warn("ignoring malformed persisted chain id", zap.String("value", rawChainID))
		} else {
			s.chainID = chainID
		}
	}

	url, err := store.Get(jsonRPCURLKey)
	if err != nil {
		return nil, err
	}
	if url != "" {
		s.jsonRPCURL = url
	}

	return s, nil
}

// SetListener registers the change notification sink.
func (s *Session) SetListener(listener Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = listener
}

// Addresses returns the authorized addresses in canonical form,
// selected address first.
func (s *Session) Addresses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.addresses))
	for i, addr := range s.addresses {
		out[i] = addr.Hex()
	}
	return out
}

// SelectedAddress returns the first authorized address.
func (s *Session) SelectedAddress() (common.Address, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.addresses) == 0 {
		return common.Address{}, false
	}
	return s.addresses[0], true
}

// IsConnected reports whether any address is authorized.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.addresses) > 0
}

// IsAuthorized reports whether address is in the authorized sequence.
// Comparison happens after canonicalization.
func (s *Session) IsAuthorized(address common.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, addr := range s.addresses {
		if addr == address {
			return true
		}
	}
	return false
}

func (s *Session) ChainID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chainID
}

func (s *Session) JSONRPCURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jsonRPCURL
}

// SetAddresses replaces the authorized address sequence. Ordering is
// preserved and duplicates are dropped. A sequence equal to the current
// one is a no-op: no storage write, no notification.
func (s *Session) SetAddresses(raw []string) error {
	addresses, err := canonicalize(raw)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if equalAddresses(s.addresses, addresses) {
		s.mu.Unlock()
		return nil
	}
	listener := s.listener
	s.mu.Unlock()

	// persist first: a failed write must leave memory and storage in
	// agreement and emit nothing
	hexes := make([]string, len(addresses))
	for i, addr := range addresses {
		hexes[i] = addr.Hex()
	}
	if err := s.store.Set(addressesKey, strings.Join(hexes, " ")); err != nil {
		return err
	}

	s.mu.Lock()
	s.addresses = addresses
	s.mu.Unlock()

	if listener != nil {
		listener.AccountsChanged(hexes)
	}
	return nil
}

// UpdateProviderInfo persists a new RPC URL and chain id. It is the
// single choke point for chain-changed notification: the notification
// fires when the chain id changed, and unconditionally on the first
// call for this session instance.
func (s *Session) UpdateProviderInfo(jsonRPCURL string, chainID uint64) error {
	s.mu.Lock()
	changed := s.chainID != chainID
	notify := changed || !s.chainNotified
	listener := s.listener
	s.mu.Unlock()

	if err := s.store.Set(jsonRPCURLKey, jsonRPCURL); err != nil {
		return err
	}
	if err := s.store.Set(chainIDKey, strconv.FormatUint(chainID, 10)); err != nil {
		return err
	}

	// the first-emission flag is consumed only once the notification
	// is actually going out, so a failed write keeps the next call
	// eligible to fire
	s.mu.Lock()
	s.chainID = chainID
	s.jsonRPCURL = jsonRPCURL
	if notify {
		s.chainNotified = true
	}
	s.mu.Unlock()

	if notify && listener != nil {
		listener.ChainChanged(chainID, jsonRPCURL)
	}
	return nil
}

func canonicalize(raw []string) ([]common.Address, error) {
	seen := make(map[common.Address]struct{}, len(raw))
	out := make([]common.Address, 0, len(raw))
	for _, r := range raw {
		if !common.IsHexAddress(r) {
			return nil, ErrInvalidAddress
		}
		addr := common.HexToAddress(r)
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	return out, nil
}

func equalAddresses(a, b []common.Address) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
