package rentledger

import "github.com/xraph/rentledger/types"

// Re-export common types so callers don't have to import the types package.

// Money is re-exported from types package.
type Money = types.Money

// Entity is re-exported from types package.
type Entity = types.Entity

// Re-export Money constructors
var (
	INR        = types.INR
	USD        = types.USD
	Zero       = types.Zero
	Sum        = types.Sum
	ParseMoney = types.ParseMoney
)

// Re-export Entity constructor
var NewEntity = types.NewEntity
