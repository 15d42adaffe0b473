package entitlement

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// byteStringPattern matches a canonical byte quantity: a decimal number
// immediately followed by a base-1024 unit.
var byteStringPattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)(B|KB|MB|GB|TB)$`)

var byteUnitMultipliers = map[string]float64{
	"B":  1,
	"KB": 1 << 10,
	"MB": 1 << 20,
	"GB": 1 << 30,
	"TB": 1 << 40,
}

var byteUnits = [...]string{"B", "KB", "MB", "GB", "TB"}

// NormalizeByteString validates a human-readable byte quantity such as
// "500MB" or "1.5 gb" and returns its canonical form: upper-cased with all
// whitespace removed. Returns ErrInvalidStorage when the text does not match
// the <number><unit> grammar.
func NormalizeByteString(value string) (string, error) {
	v := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(value), " ", ""))
	if !byteStringPattern.MatchString(v) {
		return "", ErrInvalidStorage
	}
	return v, nil
}

// ToBytes converts a byte quantity such as "500MB", "1GB" or "1.5GB" into an
// integer byte count using base-1024 multipliers, rounded to the nearest
// byte. Returns ErrInvalidAmount when the text does not parse.
func ToBytes(value string) (int64, error) {
	v, err := NormalizeByteString(value)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	m := byteStringPattern.FindStringSubmatch(v)
	number, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	bytes := int64(math.Round(number * byteUnitMultipliers[m[2]]))
	if bytes < 0 {
		return 0, ErrInvalidAmount
	}
	return bytes, nil
}

// FromBytes renders a byte count in the largest unit that keeps the scaled
// value below 1024 (stopping at TB), with at most one decimal digit and no
// trailing ".0". Negative inputs clamp to "0B".
func FromBytes(bytes int64) string {
	if bytes < 0 {
		return "0B"
	}
	val := float64(bytes)
	i := 0
	for val >= 1024 && i < len(byteUnits)-1 {
		val /= 1024
		i++
	}
	var formatted string
	if math.Abs(val-math.Round(val)) < 0.00001 {
		formatted = strconv.FormatInt(int64(math.Round(val)), 10)
	} else {
		formatted = strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.1f", val), "0"), ".")
	}
	return formatted + byteUnits[i]
}
