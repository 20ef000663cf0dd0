package models

import (
	"encoding/json"
	"testing"
)

func TestActionJSON(t *testing.T) {
	b, err := json.Marshal([]Action{ActionBuy, ActionHold, ActionSell})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `["BUY","HOLD","SELL"]` {
		t.Fatalf("unexpected encoding %s", b)
	}

	var back []Action
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatal(err)
	}
	if len(back) != 3 || back[0] != ActionBuy || back[2] != ActionSell {
		t.Fatalf("round trip mismatch: %v", back)
	}
	if err := json.Unmarshal([]byte(`["LONG"]`), &back); err == nil {
		t.Fatal("expected error for unknown action")
	}
}

func TestParseExecutionMode(t *testing.T) {
	for in, want := range map[string]ExecutionMode{
		"":              ModeCPU,
		"cpu":           ModeCPU,
		"GPU":           ModeAccelerated,
		" accelerated ": ModeAccelerated,
	} {
		got, err := ParseExecutionMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseExecutionMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseExecutionMode("fpga"); err == nil {
		t.Fatal("expected error")
	}
}
