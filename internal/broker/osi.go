package broker

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/eddiefleurent/scranton_condor/internal/models"
)

// FormatOSI builds an OSI option symbol, e.g. SPY250314P00490000.
func FormatOSI(underlying string, expiry time.Time, right models.OptionRight, strike float64) string {
	typeChar := "C"
	if right == models.RightPut {
		typeChar = "P"
	}
	return fmt.Sprintf("%s%s%s%08d", strings.ToUpper(underlying), expiry.Format("060102"), typeChar,
		int64(math.Round(strike*1000)))
}

// ParseOSI splits an OSI option symbol into its parts.
func ParseOSI(symbol string) (underlying string, expiry time.Time, right models.OptionRight, strike float64, err error) {
	s := strings.TrimSpace(symbol)
	underlying = extractUnderlyingFromOSI(s)
	if underlying == "" {
		return "", time.Time{}, "", 0, fmt.Errorf("%w: %q is not an OSI symbol", ErrMalformedOption, symbol)
	}
	rest := s[len(underlying):]
	expiry, err = time.Parse("060102", rest[:6])
	if err != nil {
		return "", time.Time{}, "", 0, fmt.Errorf("%w: %q expiry: %v", ErrMalformedOption, symbol, err)
	}
	right = models.OptionRight(optionTypeFromSymbol(s))
	milli, err := strconv.ParseInt(rest[7:], 10, 64)
	if err != nil {
		return "", time.Time{}, "", 0, fmt.Errorf("%w: %q strike: %v", ErrMalformedOption, symbol, err)
	}
	return underlying, expiry, right, float64(milli) / 1000, nil
}

// extractUnderlyingFromOSI extracts the underlying symbol from an OSI-formatted option symbol
// e.g., "SPY241220P00450000" -> "SPY"
func extractUnderlyingFromOSI(s string) string {
	trimmed := strings.TrimSpace(s)
	if len(trimmed) < 16 {
		return ""
	}

	// UNDERLYING + YYMMDD + P/C + 8-digit strike, ending exactly after the strike
	for i := 0; i <= len(trimmed)-15; i++ {
		if !isSixDigits(trimmed[i : i+6]) {
			continue
		}
		if i > 0 && trimmed[i-1] >= '0' && trimmed[i-1] <= '9' {
			continue
		}
		switch trimmed[i+6] {
		case 'P', 'C', 'p', 'c':
		default:
			continue
		}
		strikeStart := i + 7
		if !isEightDigits(trimmed[strikeStart : strikeStart+8]) {
			continue
		}
		if strikeStart+8 != len(trimmed) {
			continue
		}
		return strings.TrimSpace(trimmed[:i])
	}
	return ""
}

// optionTypeFromSymbol returns "put" | "call" | "" from OSI-like symbols, e.g. SPY241220P00450000
func optionTypeFromSymbol(s string) string {
	if len(s) < 9 {
		return ""
	}
	i := len(s) - 1
	digits := 0
	for i >= 0 && digits < 8 {
		if s[i] < '0' || s[i] > '9' {
			return ""
		}
		i--
		digits++
	}
	if i < 0 {
		return ""
	}
	switch s[i] {
	case 'P', 'p':
		return string(models.RightPut)
	case 'C', 'c':
		return string(models.RightCall)
	default:
		return ""
	}
}

func isSixDigits(s string) bool {
	return len(s) == 6 && allDigits(s)
}

func isEightDigits(s string) bool {
	return len(s) == 8 && allDigits(s)
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
