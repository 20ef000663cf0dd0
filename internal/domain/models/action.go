package models

import (
	"fmt"
	"strings"
)

// Action is the ternary trading decision emitted by the predictor.
type Action int8

const (
	ActionSell Action = -1
	ActionHold Action = 0
	ActionBuy  Action = 1
)

func (a Action) String() string {
	switch a {
	case ActionBuy:
		return "BUY"
	case ActionSell:
		return "SELL"
	default:
		return "HOLD"
	}
}

func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Action) UnmarshalText(b []byte) error {
	switch strings.ToUpper(string(b)) {
	case "BUY", "1":
		*a = ActionBuy
	case "SELL", "-1":
		*a = ActionSell
	case "HOLD", "0":
		*a = ActionHold
	default:
		return fmt.Errorf("unknown action %q", b)
	}
	return nil
}

// ExecutionMode selects the batch execution path.
type ExecutionMode int

const (
	ModeCPU ExecutionMode = iota
	ModeAccelerated
)

func (m ExecutionMode) String() string {
	if m == ModeAccelerated {
		return "accelerated"
	}
	return "cpu"
}

// ParseExecutionMode accepts "cpu", "accelerated" and the alias "gpu".
func ParseExecutionMode(s string) (ExecutionMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cpu":
		return ModeCPU, nil
	case "accelerated", "gpu":
		return ModeAccelerated, nil
	default:
		return ModeCPU, fmt.Errorf("unknown execution mode %q", s)
	}
}
