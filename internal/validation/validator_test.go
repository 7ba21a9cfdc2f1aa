// Botboard - Telegram Bot Analytics Dashboard API
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/botboard/botboard

package validation

import (
	"strings"
	"testing"
)

type analyticsParams struct {
	BotID string `json:"bot_id" validate:"required,bot_id"`
	Days  int    `json:"days" validate:"min=1,max=365"`
}

func TestStructValid(t *testing.T) {
	if err := Struct(&analyticsParams{BotID: "demo-bot", Days: 30}); err != nil {
		t.Errorf("Struct = %v, want nil", err)
	}
}

func TestStructReportsJSONFieldNames(t *testing.T) {
	err := Struct(&analyticsParams{BotID: "demo", Days: 400})
	if err == nil {
		t.Fatal("expected error for days out of range")
	}
	fields := err.Fields()
	if len(fields) != 1 {
		t.Fatalf("fields = %+v, want 1", fields)
	}
	if fields[0].Field != "days" {
		t.Errorf("field = %q, want json name days", fields[0].Field)
	}
	if fields[0].Message != "days must be at most 365" {
		t.Errorf("message = %q", fields[0].Message)
	}
}

func TestStructJoinsMessages(t *testing.T) {
	err := Struct(&analyticsParams{BotID: "", Days: 0})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(err.Fields()) != 2 {
		t.Fatalf("fields = %+v, want 2", err.Fields())
	}
	if !strings.Contains(err.Error(), "; ") {
		t.Errorf("joined error = %q, want ;-separated", err.Error())
	}
}

func TestBotIDRule(t *testing.T) {
	for _, id := range []string{"demo", "bot_1", "a-b-c"} {
		if err := Struct(&analyticsParams{BotID: id, Days: 7}); err != nil {
			t.Errorf("bot_id %q rejected: %v", id, err)
		}
	}
	for _, id := range []string{"___", "bad id", "x/y", strings.Repeat("a", 101)} {
		if err := Struct(&analyticsParams{BotID: id, Days: 7}); err == nil {
			t.Errorf("bot_id %q accepted, want rejection", id)
		}
	}
}
