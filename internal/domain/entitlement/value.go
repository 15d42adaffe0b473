package entitlement

import (
	"strconv"
	"strings"
)

// GrantValue is the raw, heterogeneous input accepted when granting a
// feature on a plan: a boolean, an integer, a string ("true", "42",
// "1.5GB", "unlimited") or nothing at all. The zero value means "no value",
// which encodes as unlimited for metered features.
type GrantValue struct {
	kind grantKind
	b    bool
	n    int64
	s    string
}

type grantKind int

const (
	grantNil grantKind = iota
	grantBool
	grantInt
	grantString
)

// NoValue returns the absent grant value, encoded as unlimited
func NoValue() GrantValue {
	return GrantValue{kind: grantNil}
}

// BoolValue wraps a boolean grant input
func BoolValue(v bool) GrantValue {
	return GrantValue{kind: grantBool, b: v}
}

// IntValue wraps an integer grant input
func IntValue(v int64) GrantValue {
	return GrantValue{kind: grantInt, n: v}
}

// StringValue wraps a string grant input
func StringValue(v string) GrantValue {
	return GrantValue{kind: grantString, s: v}
}

// isUnlimitedSentinel reports whether the raw input spells "unlimited":
// absent, the integer -1, or the case-insensitive string "unlimited".
func (g GrantValue) isUnlimitedSentinel() bool {
	switch g.kind {
	case grantNil:
		return true
	case grantInt:
		return g.n == -1
	case grantString:
		return strings.EqualFold(strings.TrimSpace(g.s), "unlimited")
	}
	return false
}

// EncodeValue normalizes a raw grant input into the canonical stored
// representation for a feature type: "1"/"0" for booleans, decimal digits
// for integers, "<number><unit>" for storage. A nil stored value with
// unlimited=true represents an unbounded entitlement; boolean features can
// never be unlimited.
func EncodeValue(t FeatureType, raw GrantValue, forceUnlimited bool) (value *string, unlimited bool, err error) {
	if forceUnlimited || raw.isUnlimitedSentinel() {
		if t == FeatureTypeBoolean {
			return nil, false, ErrBooleanUnlimited
		}
		return nil, true, nil
	}

	var stored string
	switch t {
	case FeatureTypeBoolean:
		stored, err = encodeBoolean(raw)
	case FeatureTypeInteger:
		stored, err = encodeInteger(raw)
	case FeatureTypeStorage:
		stored, err = encodeStorage(raw)
	default:
		err = ErrInvalidAmount
	}
	if err != nil {
		return nil, false, err
	}
	return &stored, false, nil
}

func encodeBoolean(raw GrantValue) (string, error) {
	switch raw.kind {
	case grantBool:
		if raw.b {
			return "1", nil
		}
		return "0", nil
	case grantInt:
		switch raw.n {
		case 1:
			return "1", nil
		case 0:
			return "0", nil
		}
	case grantString:
		switch strings.ToLower(strings.TrimSpace(raw.s)) {
		case "1", "true", "yes", "y", "on":
			return "1", nil
		case "0", "false", "no", "n", "off":
			return "0", nil
		}
	}
	return "", ErrInvalidBoolean
}

func encodeInteger(raw GrantValue) (string, error) {
	switch raw.kind {
	case grantInt:
		if raw.n < 0 {
			return "", ErrInvalidInteger
		}
		return strconv.FormatInt(raw.n, 10), nil
	case grantString:
		s := strings.TrimSpace(raw.s)
		if s == "" || !isDigits(s) {
			return "", ErrInvalidInteger
		}
		s = strings.TrimLeft(s, "0")
		if s == "" {
			s = "0"
		}
		return s, nil
	}
	return "", ErrInvalidInteger
}

func encodeStorage(raw GrantValue) (string, error) {
	switch raw.kind {
	case grantInt:
		if raw.n < 0 {
			return "", ErrInvalidStorage
		}
		return strconv.FormatInt(raw.n, 10) + "B", nil
	case grantString:
		return NormalizeByteString(raw.s)
	}
	return "", ErrInvalidStorage
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// DecodeEnabled reports whether a stored boolean entitlement is switched on
func DecodeEnabled(value *string) bool {
	return value != nil && *value == "1"
}

// DecodeQuota converts a stored entitlement back into its numeric quota.
// Boolean features and absent values have no numeric quota.
func DecodeQuota(t FeatureType, value *string, unlimited bool) (Quota, error) {
	if unlimited {
		return UnlimitedQuota(), nil
	}
	if t == FeatureTypeBoolean || value == nil {
		return NoQuota(), nil
	}
	switch t {
	case FeatureTypeInteger:
		n, err := strconv.ParseInt(*value, 10, 64)
		if err != nil || n < 0 {
			return NoQuota(), ErrInvalidInteger
		}
		return CountQuota(n), nil
	case FeatureTypeStorage:
		n, err := ToBytes(*value)
		if err != nil {
			return NoQuota(), ErrInvalidStorage
		}
		return ByteQuota(n), nil
	}
	return NoQuota(), nil
}

// QuotaKind discriminates the three states a quota can be in
type QuotaKind int

const (
	// QuotaNone means no numeric quota applies (feature absent or boolean)
	QuotaNone QuotaKind = iota

	// QuotaUnlimited means consumption is never bounded
	QuotaUnlimited

	// QuotaBounded means consumption is capped at a concrete limit
	QuotaBounded
)

// Quota is the three-state numeric entitlement of a feature: not applicable,
// unlimited, or bounded by a concrete count or byte limit.
type Quota struct {
	kind  QuotaKind
	limit int64
	bytes bool
}

// NoQuota returns the not-applicable quota
func NoQuota() Quota {
	return Quota{kind: QuotaNone}
}

// UnlimitedQuota returns the unbounded quota
func UnlimitedQuota() Quota {
	return Quota{kind: QuotaUnlimited}
}

// CountQuota returns a quota bounded at a number of units
func CountQuota(limit int64) Quota {
	return Quota{kind: QuotaBounded, limit: limit}
}

// ByteQuota returns a quota bounded at a number of bytes
func ByteQuota(limit int64) Quota {
	return Quota{kind: QuotaBounded, limit: limit, bytes: true}
}

// Kind returns the quota's state discriminator
func (q Quota) Kind() QuotaKind {
	return q.kind
}

// IsNone reports whether no numeric quota applies
func (q Quota) IsNone() bool {
	return q.kind == QuotaNone
}

// IsUnlimited reports whether consumption is unbounded
func (q Quota) IsUnlimited() bool {
	return q.kind == QuotaUnlimited
}

// IsBounded reports whether consumption is capped
func (q Quota) IsBounded() bool {
	return q.kind == QuotaBounded
}

// Limit returns the bound for a bounded quota: a unit count, or bytes for
// storage features. Zero otherwise.
func (q Quota) Limit() int64 {
	if q.kind != QuotaBounded {
		return 0
	}
	return q.limit
}

// IsBytes reports whether the bound is expressed in bytes
func (q Quota) IsBytes() bool {
	return q.bytes
}

// String renders the quota for display: "none", "unlimited", a plain count,
// or a human-readable byte quantity.
func (q Quota) String() string {
	switch q.kind {
	case QuotaUnlimited:
		return "unlimited"
	case QuotaBounded:
		if q.bytes {
			return FromBytes(q.limit)
		}
		return strconv.FormatInt(q.limit, 10)
	}
	return "none"
}
