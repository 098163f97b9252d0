package near

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// YoctoPerNEAR is the number of yoctoNEAR in one NEAR (10^24).
var YoctoPerNEAR = uint256.MustFromDecimal("1000000000000000000000000")

// Gas is an amount of prepaid or burnt gas.
type Gas uint64

// TGas is 10^12 gas units.
const TGas Gas = 1_000_000_000_000

func (g Gas) String() string {
	if g%TGas == 0 {
		return fmt.Sprintf("%d TGas", uint64(g/TGas))
	}
	return fmt.Sprintf("%d gas", uint64(g))
}

// NEAR returns n NEAR in yoctoNEAR.
func NEAR(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), YoctoPerNEAR)
}

// Yocto returns n yoctoNEAR.
func Yocto(n uint64) *uint256.Int {
	return uint256.NewInt(n)
}

// ParseYocto parses a decimal yoctoNEAR amount. Amounts must fit the protocol's u128.
func ParseYocto(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if v.BitLen() > 128 {
		return nil, fmt.Errorf("amount %q exceeds u128", s)
	}
	return v, nil
}

// MustParseYocto is ParseYocto for literals; it panics on malformed input.
func MustParseYocto(s string) *uint256.Int {
	v, err := ParseYocto(s)
	if err != nil {
		panic(err)
	}
	return v
}

// FormatNEAR renders a yoctoNEAR amount as NEAR with trailing zeros trimmed.
func FormatNEAR(y *uint256.Int) string {
	if y == nil {
		return "0 NEAR"
	}
	whole := new(uint256.Int).Div(y, YoctoPerNEAR)
	frac := new(uint256.Int).Mod(y, YoctoPerNEAR)
	if frac.IsZero() {
		return whole.Dec() + " NEAR"
	}
	fracStr := frac.Dec()
	fracStr = strings.Repeat("0", 24-len(fracStr)) + fracStr
	fracStr = strings.TrimRight(fracStr, "0")
	return whole.Dec() + "." + fracStr + " NEAR"
}
