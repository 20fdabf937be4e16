package keyboard

import (
	"testing"

	"github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/callbacks"
)

func TestActionEncodesPayload(t *testing.T) {
	btn, err := Action("Pick", callbacks.BatchTo, "3")
	if err != nil {
		t.Fatalf("action: %v", err)
	}
	if btn.Data != "batch_to:3" {
		t.Fatalf("data = %q", btn.Data)
	}
	if _, err := Action("Pick", callbacks.BatchTo, "x"); err == nil {
		t.Fatal("invalid index accepted")
	}
}

func TestRowsSkipEmptyAndKeepLinks(t *testing.T) {
	m := InlineButtonsRows(
		[]InlineBtn{Static("a", callbacks.Menu), Static("b", callbacks.Help)},
		nil,
		[]InlineBtn{Link("c", "https://copperx.io")},
	)
	if len(m.InlineKeyboard) != 2 || len(m.InlineKeyboard[0]) != 2 {
		t.Fatalf("layout = %+v", m.InlineKeyboard)
	}
	if m.InlineKeyboard[1][0].URL != "https://copperx.io" {
		t.Fatal("url button lost its url")
	}
	if m.InlineKeyboard[0][0].Unique != "" {
		t.Fatal("buttons must carry raw callback data")
	}
}

func TestInlineButtonsStacks(t *testing.T) {
	m := InlineButtons([]InlineBtn{CancelButton(), CancelButton("Stop")})
	if len(m.InlineKeyboard) != 2 || m.InlineKeyboard[1][0].Text != "Stop" {
		t.Fatalf("layout = %+v", m.InlineKeyboard)
	}
}

func TestStaticPanicsOnArgTag(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	Static("x", callbacks.EmailTo)
}
