package entitlement

import (
	"strconv"
	"strings"
)

// Amount is a requested consumption or refund quantity: either an integer
// count of units or a storage quantity such as "500MB". The zero Amount is
// a count of zero.
type Amount struct {
	text   string
	count  int64
	isText bool
}

// Count builds an amount of n units (or n bytes for storage features)
func Count(n int64) Amount {
	return Amount{count: n}
}

// Size builds an amount from a storage quantity or numeric string
func Size(s string) Amount {
	return Amount{text: s, isText: true}
}

// IsZero reports whether the amount is a literal zero: the integer 0 or one
// of the spellings "0", "0B", "0KB", "0MB", "0GB". Zero amounts are always
// a no-op for the consumption engine.
func (a Amount) IsZero() bool {
	if !a.isText {
		return a.count == 0
	}
	switch strings.ToUpper(strings.TrimSpace(a.text)) {
	case "0", "0B", "0KB", "0MB", "0GB":
		return true
	}
	return false
}

// Delta resolves the amount against a feature type, returning the
// non-negative integer delta in that type's unit: a count for INTEGER
// features, bytes for STORAGE features. Returns ErrInvalidAmount when the
// amount does not parse, is negative, or the feature type is not metered.
func (a Amount) Delta(t FeatureType) (int64, error) {
	switch t {
	case FeatureTypeInteger:
		if !a.isText {
			if a.count < 0 {
				return 0, ErrInvalidAmount
			}
			return a.count, nil
		}
		s := strings.TrimSpace(a.text)
		if s == "" || !isDigits(s) {
			return 0, ErrInvalidAmount
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, ErrInvalidAmount
		}
		return n, nil
	case FeatureTypeStorage:
		if !a.isText {
			if a.count < 0 {
				return 0, ErrInvalidAmount
			}
			return a.count, nil
		}
		return ToBytes(a.text)
	}
	return 0, ErrInvalidAmount
}

// String renders the amount as supplied
func (a Amount) String() string {
	if a.isText {
		return a.text
	}
	return strconv.FormatInt(a.count, 10)
}
