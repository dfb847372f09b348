package strategy

import (
	"errors"
	"fmt"

	"github.com/eddiefleurent/scranton_condor/internal/models"
)

var (
	// ErrNoChain is reported when the chain snapshot is missing or empty
	ErrNoChain = errors.New("option chain unavailable")
	// ErrNoValidExpiries is reported when no expiry falls inside the DTE range
	ErrNoValidExpiries = errors.New("no expiries within dte range")
	// ErrNoCandidates is reported when no candidate passes the gates on any expiry
	ErrNoCandidates = errors.New("no iron condor candidate passed the gates")
	// ErrMalformedQuote is wrapped by CandidateError for unusable quote data
	ErrMalformedQuote = errors.New("malformed quote")
)

// CandidateError carries the candidate context of a scoring or selection fault.
type CandidateError struct {
	Err             error
	Expiry          string
	ShortPutStrike  float64
	LongPutStrike   float64
	ShortCallStrike float64
	LongCallStrike  float64
}

func (e *CandidateError) Error() string {
	return fmt.Sprintf("candidate %s %.2f/%.2f/%.2f/%.2f: %v", e.Expiry,
		e.LongPutStrike, e.ShortPutStrike, e.ShortCallStrike, e.LongCallStrike, e.Err)
}

func (e *CandidateError) Unwrap() error {
	return e.Err
}

func newCandidateError(put, call models.VerticalSpread, err error) *CandidateError {
	return &CandidateError{
		Err:             err,
		Expiry:          put.Short.ExpiryKey(),
		ShortPutStrike:  put.Short.Strike,
		LongPutStrike:   put.Long.Strike,
		ShortCallStrike: call.Short.Strike,
		LongCallStrike:  call.Long.Strike,
	}
}
