package types

// AccountStorageOverhead is the per-account byte overhead charged on top of
// the data length when computing the rent-exempt minimum.
const AccountStorageOverhead = 128

const (
	DefaultLamportsPerByteYear uint64 = 3480
	DefaultExemptionYears      uint64 = 2
)

// Rent prices the storage an account occupies. Program accounts are always
// created holding MinimumBalance for their size, and closing an account
// returns that deposit to whoever the program designates.
type Rent struct {
	LamportsPerByteYear uint64 `json:"lamportsPerByteYear"`
	ExemptionYears      uint64 `json:"exemptionYears"`
}

// DefaultRent returns the rent schedule used when none is configured.
func DefaultRent() Rent {
	return Rent{LamportsPerByteYear: DefaultLamportsPerByteYear, ExemptionYears: DefaultExemptionYears}
}

// MinimumBalance is the deposit needed for an account holding dataLen bytes.
func (r Rent) MinimumBalance(dataLen int) uint64 {
	if dataLen < 0 {
		dataLen = 0
	}
	return (AccountStorageOverhead + uint64(dataLen)) * r.LamportsPerByteYear * r.ExemptionYears
}
