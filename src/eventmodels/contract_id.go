package eventmodels

import (
	"fmt"
	"strconv"
	"strings"
)

// ContractID is the broker's opaque key for a single instrument (an IBKR conid).
type ContractID int64

func (id ContractID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

func ParseContractID(s string) (ContractID, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("ParseContractID: invalid contract id %q: %w", s, err)
	}

	if v <= 0 {
		return 0, fmt.Errorf("ParseContractID: contract id must be positive, found %d", v)
	}

	return ContractID(v), nil
}

// UnmarshalJSON accepts both numeric and quoted ids, since broker payloads use either.
func (id *ContractID) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*id = 0
		return nil
	}

	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("ContractID: invalid json value %s: %w", data, err)
	}

	*id = ContractID(v)
	return nil
}
