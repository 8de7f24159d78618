package analyzer

import (
	"regexp"
	"strings"
)

// CashFlowClassifier splits an order's profit amount into cash-flow
// components. Implementations are selected per statement template.
type CashFlowClassifier interface {
	Classify(o Order) CashFlow
}

// PatternClassifier recognises deposits by a comment pattern on balance rows.
type PatternClassifier struct {
	Deposit *regexp.Regexp
}

var DefaultDepositPattern = regexp.MustCompile(`(?i)deposit|transfer`)

func NewPatternClassifier(pattern string) (*PatternClassifier, error) {
	if strings.TrimSpace(pattern) == "" {
		return &PatternClassifier{Deposit: DefaultDepositPattern}, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return &PatternClassifier{Deposit: re}, nil
}

func (c *PatternClassifier) Classify(o Order) CashFlow {
	if o.Side != SideBalance {
		return CashFlow{Profit: o.Profit}
	}

	var cf CashFlow
	switch {
	case o.Profit > 0 && c.Deposit.MatchString(o.Comment):
		cf.Deposit = o.Profit
	case o.Profit < 0:
		cf.Withdrawal = o.Profit
	}
	cf.Misc = o.Profit - cf.Deposit - cf.Withdrawal
	return cf
}
