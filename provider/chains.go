package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/dappbridge/provider-go/relay"
)

// ErrorCodeChainNotAdded is the protocol-level error answered when an
// add-chain proposal carries no RPC URL. Legacy callers expect an error
// response envelope here, not a thrown validation failure.
const ErrorCodeChainNotAdded = 2

type addChainParams struct {
	ChainID           json.RawMessage       `json:"chainId"`
	BlockExplorerURLs []string              `json:"blockExplorerUrls"`
	ChainName         string                `json:"chainName"`
	IconURLs          []string              `json:"iconUrls"`
	RPCURLs           []string              `json:"rpcUrls"`
	NativeCurrency    *relay.NativeCurrency `json:"nativeCurrency"`
}

type switchChainParams struct {
	ChainID json.RawMessage `json:"chainId"`
}

type watchAssetParams struct {
	Type    string `json:"type"`
	Options struct {
		Address  string `json:"address"`
		Symbol   string `json:"symbol"`
		Decimals int    `json:"decimals"`
		Image    string `json:"image"`
	} `json:"options"`
}

// walletAddEthereumChain implements wallet_addEthereumChain. A proposal
// matching the active chain short-circuits to failure before the relay
// so the wallet never shows a redundant approval prompt. Success mutates
// the session with the first supplied RPC URL; any other outcome leaves
// state untouched.
func (p *Provider) walletAddEthereumChain(ctx context.Context, params []interface{}) (interface{}, error) {
	var args addChainParams
	if err := decodeObjectParam(params, &args); err != nil {
		return nil, err
	}

	proposed, err := decodeChainID(args.ChainID)
	if err != nil {
		return nil, err
	}

	if proposed == p.session.ChainID() {
		return false, nil
	}

	if len(args.RPCURLs) == 0 {
		return nil, &Error{Code: ErrorCodeChainNotAdded, Message: "please pass in at least 1 rpcUrl"}
	}
	if args.ChainName == "" {
		return nil, errInvalidParams("chainName is a required field")
	}
	if args.NativeCurrency == nil {
		return nil, errInvalidParams("nativeCurrency is a required field")
	}

	// implicit connect: a chain proposal from a dapp that never got an
	// account grant first asks for one
	if !p.session.IsConnected() {
		if _, err := p.ethRequestAccounts(ctx, nil); err != nil {
			return nil, err
		}
	}

	res, err := p.ensureRelay().AddChain(ctx, relay.AddChainArgs{
		ChainID:           proposed,
		RPCURLs:           args.RPCURLs,
		BlockExplorerURLs: args.BlockExplorerURLs,
		ChainName:         args.ChainName,
		IconURLs:          args.IconURLs,
		NativeCurrency:    args.NativeCurrency,
	})
	if err != nil {
		return nil, err
	}

	if !res.IsApproved {
		return false, nil
	}

	p.logger.Info("chain added", zap.Uint64("chainID", proposed))
	if err := p.session.UpdateProviderInfo(args.RPCURLs[0], proposed); err != nil {
		return nil, err
	}
	return nil, nil
}

// walletSwitchEthereumChain implements wallet_switchEthereumChain.
// Older relays signal "unsupported" with a codeless error shape, which
// resolves as a silent no-op; the reserved unsupported-chain code maps
// to the typed 4902 error; any other coded error surfaces with its
// original code and message.
func (p *Provider) walletSwitchEthereumChain(ctx context.Context, params []interface{}) (interface{}, error) {
	var args switchChainParams
	if err := decodeObjectParam(params, &args); err != nil {
		return nil, err
	}

	target, err := decodeChainID(args.ChainID)
	if err != nil {
		return nil, err
	}

	var address *common.Address
	if selected, ok := p.session.SelectedAddress(); ok {
		address = &selected
	}

	res, err := p.ensureRelay().SwitchChain(ctx, relay.SwitchChainArgs{
		ChainID: target,
		Address: address,
	})
	if err != nil {
		if rerr, ok := err.(*relay.Error); ok {
			if rerr.Code == nil {
				return nil, nil
			}
			if *rerr.Code == relay.ErrorCodeUnsupportedChain {
				return nil, &Error{
					Code:    ErrorCodeUnsupportedChain,
					Message: fmt.Sprintf("Unrecognized chain ID %d. Try adding the chain using wallet_addEthereumChain first.", target),
				}
			}
			return nil, &Error{Code: *rerr.Code, Message: rerr.Message}
		}
		return nil, err
	}

	if res.IsApproved && res.RPCURL != "" {
		if err := p.session.UpdateProviderInfo(res.RPCURL, target); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// walletWatchAsset implements wallet_watchAsset for ERC20 tokens.
func (p *Provider) walletWatchAsset(ctx context.Context, params []interface{}) (interface{}, error) {
	var args watchAssetParams
	if err := decodeObjectParam(params, &args); err != nil {
		return nil, err
	}

	if args.Type == "" {
		return nil, errInvalidParams("type is required")
	}
	if args.Type != "ERC20" {
		return nil, errInvalidParams(fmt.Sprintf("asset of type %q is not supported", args.Type))
	}
	if args.Options.Address == "" {
		return nil, errInvalidParams("address is required")
	}

	ok, err := p.ensureRelay().WatchAsset(ctx, relay.WatchAssetArgs{
		Type:     args.Type,
		Address:  args.Options.Address,
		Symbol:   args.Options.Symbol,
		Decimals: args.Options.Decimals,
		Image:    args.Options.Image,
	})
	if err != nil {
		return nil, err
	}
	return ok, nil
}

// decodeChainID parses a required chainId field. Ids beyond uint64 are
// rejected rather than truncated.
func decodeChainID(raw json.RawMessage) (uint64, error) {
	chainID, err := quantityOrNil(raw)
	if err != nil || chainID == nil {
		return 0, errInvalidParams("chainId is a required field")
	}
	if !chainID.IsUint64() {
		return 0, errInvalidParams("invalid chainId " + chainID.String())
	}
	return chainID.Uint64(), nil
}

// decodeObjectParam unpacks the first positional param into target via
// a JSON round trip.
func decodeObjectParam(params []interface{}, target interface{}) error {
	param, err := paramAt(params, 0)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(param)
	if err != nil {
		return errInvalidParams("parameter is not a valid object")
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return errInvalidParams("parameter is not a valid object")
	}
	return nil
}
