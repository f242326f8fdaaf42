package types

import (
	errorsmod "cosmossdk.io/errors"
)

var (
	ErrInvalidSignature   = errorsmod.Register(ModuleName, 2, "signature does not recover to airnode")
	ErrValueOutOfRange    = errorsmod.Register(ModuleName, 3, "value is outside the int224 range")
	ErrInvalidEncoding    = errorsmod.Register(ModuleName, 4, "encoded value is not a 32 byte int256")
	ErrIDMismatch         = errorsmod.Register(ModuleName, 5, "derived id does not match declared id")
	ErrNoCachedValue      = errorsmod.Register(ModuleName, 6, "no cached signed data")
	ErrDataFeedNotFound   = errorsmod.Register(ModuleName, 7, "data feed not found")
	ErrAllGatewaysFailed  = errorsmod.Register(ModuleName, 8, "all gateway requests have failed with an error. No response to be used")
	ErrInvalidConfig      = errorsmod.Register(ModuleName, 9, "invalid config")
	ErrInvalidGatewayData = errorsmod.Register(ModuleName, 10, "invalid signed data response")
)
