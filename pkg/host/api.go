package host

import (
	"fmt"
	"strings"

	"github.com/Layr-Labs/multiswap-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
)

// EthAddressAPI accepts Ethereum-style addresses in canonical form: a 0x
// prefix followed by 40 lower-case hex characters.
type EthAddressAPI struct{}

var _ types.AddressAPI = EthAddressAPI{}

func (EthAddressAPI) ValidateAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("address is empty")
	}
	if !strings.HasPrefix(addr, "0x") || !common.IsHexAddress(addr) {
		return fmt.Errorf("address %q is not a 0x-prefixed 20 byte hex address", addr)
	}
	if addr != strings.ToLower(addr) {
		return fmt.Errorf("address %q is not in canonical lower-case form", addr)
	}
	return nil
}

// CanonicalAddress lower-cases a hex address so it passes ValidateAddress.
func CanonicalAddress(addr string) string {
	return strings.ToLower(addr)
}
