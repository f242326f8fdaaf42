package types

const (
	// ModuleName is the codespace of every registered keeper error.
	ModuleName = "feedkeeper"

	// ProtocolID is the airnode protocol identifier of signed-data beacon updates.
	// It is the fourth segment of every sponsor wallet derivation path.
	ProtocolID = "5"
)
