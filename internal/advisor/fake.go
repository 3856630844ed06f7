package advisor

import "context"

// Fake is a scriptable Advisor for classifier and dispatcher tests;
// it never calls out to a provider.
type Fake struct {
	Results []Result
	Err     error
	QuotaV  Quota

	Calls []Request
}

// Classify returns the next scripted result in order, repeating the
// last one once exhausted.
func (f *Fake) Classify(ctx context.Context, req Request) (Result, error) {
	f.Calls = append(f.Calls, req)
	if f.Err != nil {
		return Result{}, f.Err
	}
	if len(f.Results) == 0 {
		return Result{Severity: "info", Summary: "ok"}, nil
	}
	idx := len(f.Calls) - 1
	if idx >= len(f.Results) {
		idx = len(f.Results) - 1
	}
	return f.Results[idx], nil
}

// Quota reports the scripted quota state, defaulting to QuotaOK.
func (f *Fake) Quota() Quota {
	if f.QuotaV == "" {
		return QuotaOK
	}
	return f.QuotaV
}

var _ Advisor = (*Fake)(nil)
