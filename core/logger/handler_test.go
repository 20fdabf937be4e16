package logger

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func newTestHandler(buf *bytes.Buffer, format logFormat) (*structuredHandler, *lineWriter) {
	w := newLineWriter([]io.Writer{buf}, 1024, 16)
	return newStructuredHandler(handlerConfig{
		level:  slog.LevelDebug,
		out:    w,
		format: format,
	}), w
}

func emit(t *testing.T, format logFormat, ctx context.Context, component, event string, attrs ...slog.Attr) string {
	t.Helper()
	buf := &bytes.Buffer{}
	h, w := newTestHandler(buf, format)
	LogEvent(ctx, slog.New(h).With("component", component), slog.LevelInfo, event, attrs...)
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return strings.TrimSpace(buf.String())
}

func TestKVLineLeadsWithKnownKeys(t *testing.T) {
	ctx := WithRID(context.Background(), "rid-123")
	ctx = WithUpdateMeta(ctx, 42, 7, 9)

	line := emit(t, formatKV, ctx, "app", "test.event",
		slog.String("status", "OK"),
		slog.String("zeta", "last"),
	)
	tokens := strings.Split(line, " ")
	want := []string{"ts=", "level=INFO", "component=app", "event=test.event", "status=ok", "rid=rid-123", "update_id=42", "user_id=7", "chat_id=9"}
	if len(tokens) < len(want) {
		t.Fatalf("line too short: %s", line)
	}
	for i, prefix := range want {
		if !strings.HasPrefix(tokens[i], prefix) {
			t.Fatalf("token %d = %s, want prefix %s", i, tokens[i], prefix)
		}
	}
	if tokens[len(tokens)-1] != "zeta=last" {
		t.Fatalf("unknown keys should trail, got %s", line)
	}
}

func TestJSONLineCarriesFlowAndHandler(t *testing.T) {
	ctx := WithHandler(WithFlow(context.Background(), "withdraw"), "cmd.withdraw")

	line := emit(t, formatJSON, ctx, CompCopperx, "copperx.request_failed",
		slog.String("status", "fail"),
		slog.Any("err", errors.New("boom")),
	)
	order := []string{`{"ts":`, `"level":"INFO"`, `"component":"copperx"`, `"event":"copperx.request_failed"`, `"status":"fail"`, `"handler":"cmd.withdraw"`, `"flow":"withdraw"`, `"err":"boom"`, `"ts_unix_nano":`}
	pos := -1
	for _, part := range order {
		idx := strings.Index(line, part)
		if idx < pos || idx == -1 {
			t.Fatalf("%s missing or out of order in %s", part, line)
		}
		pos = idx
	}
}

func TestDurationsBecomeMilliseconds(t *testing.T) {
	line := emit(t, formatKV, context.Background(), "app", "timing",
		slog.Duration("took", 1500*time.Microsecond),
		slog.Duration("startup_duration", 2*time.Second),
		slog.Duration("backoff_ms", 250*time.Millisecond),
	)
	for _, want := range []string{"took_ms=2", "startup_duration_ms=2000", "backoff_ms=250"} {
		if !strings.Contains(line, want) {
			t.Fatalf("missing %s in %s", want, line)
		}
	}
}

func TestGroupsAndPresetAttrs(t *testing.T) {
	buf := &bytes.Buffer{}
	h, w := newTestHandler(buf, formatKV)
	log := slog.New(h).With("component", "app").WithGroup("req").With("op", "quote")
	log.Info("", slog.String("event", "grouped"), slog.Int("page", 2))
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	line := buf.String()
	for _, want := range []string{"component=app", "req.op=quote", "req.page=2", "req.event=grouped", "event=unknown"} {
		if !strings.Contains(line, want) {
			t.Fatalf("missing %s in %s", want, line)
		}
	}
}

func TestRedactsSecrets(t *testing.T) {
	line := emit(t, formatJSON, context.Background(), CompFlow, "withdraw.quoted",
		slog.String("access_token", "eyJhbGciOi"),
		slog.String("quote_signature", "0xdeadbeef"),
		slog.Group("req", slog.String("otp", "123456")),
		slog.String("email", "a@x.com"),
	)
	for _, secret := range []string{"eyJhbGciOi", "0xdeadbeef", "123456"} {
		if strings.Contains(line, secret) {
			t.Fatalf("secret %q leaked into %s", secret, line)
		}
	}
	if !strings.Contains(line, `"req.otp":"[redacted]"`) {
		t.Fatalf("grouped otp not redacted: %s", line)
	}
	if !strings.Contains(line, `"email":"a@x.com"`) {
		t.Fatalf("plain attrs must pass through: %s", line)
	}
}

func TestIsSensitive(t *testing.T) {
	if !isSensitive("Access_Token") || !isSensitive("pusher.auth") {
		t.Fatal("expected token and auth keys to be sensitive")
	}
	if isSensitive("authenticated") || isSensitive("org_id") {
		t.Fatal("unexpected sensitive match")
	}
}

func TestOutcomeOutsideVocabularyIsDropped(t *testing.T) {
	line := emit(t, formatKV, context.Background(), "tg", "handler.handled",
		slog.String("outcome", "exploded"),
	)
	if strings.Contains(line, "outcome=") {
		t.Fatalf("unknown outcome kept: %s", line)
	}
}

func TestBuildRID(t *testing.T) {
	if got := BuildRID(36, 35, 1); got != "10.z.1" {
		t.Fatalf("BuildRID = %q", got)
	}
	if got := BuildRID(1, -100, 2); got != "1.-2s.2" {
		t.Fatalf("BuildRID negative chat = %q", got)
	}
}

func TestSanitizeLimit(t *testing.T) {
	if got := Sanitize("a\x00b\u200bc\td\n"); got != "abc\td\n" {
		t.Fatalf("Sanitize = %q", got)
	}
	if got := SanitizeLimit("héllo wörld", 4); got != "héll" {
		t.Fatalf("SanitizeLimit = %q", got)
	}
	if got := SanitizeLimit("abc", 0); got != "" {
		t.Fatalf("SanitizeLimit zero = %q", got)
	}
}

func TestSamplerAdmitsRatio(t *testing.T) {
	s := newSampler(2, 5)
	allowed := 0
	for i := 0; i < 50; i++ {
		if s.Allow() {
			allowed++
		}
	}
	if allowed != 20 {
		t.Fatalf("allowed = %d, want 20", allowed)
	}
	s.Set(0, 0)
	if !s.Allow() {
		t.Fatal("zero ratio must admit everything")
	}
}

func TestParseRatio(t *testing.T) {
	cases := []struct {
		in       string
		num, den int
		ok       bool
	}{
		{"1/10", 1, 10, true},
		{"25", 1, 25, true},
		{"all", 0, 0, true},
		{"0", 0, 0, true},
		{"", 0, 0, false},
		{"x/3", 0, 0, false},
		{"1/0", 0, 0, false},
	}
	for _, c := range cases {
		num, den, ok := parseRatio(c.in)
		if num != c.num || den != c.den || ok != c.ok {
			t.Fatalf("parseRatio(%q) = %d/%d %v", c.in, num, den, ok)
		}
	}
}

func TestLineWriterFlushAndClose(t *testing.T) {
	buf := &bytes.Buffer{}
	w := newLineWriter([]io.Writer{buf}, 4096, 4)
	for i := 0; i < 10; i++ {
		if err := w.Write([]byte("line\n")); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if got := strings.Count(buf.String(), "line\n"); got != 10 {
		t.Fatalf("flushed %d lines, want 10", got)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := w.Write([]byte("late\n")); !errors.Is(err, errWriterClosed) {
		t.Fatalf("write after close = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestSummarizeStrings(t *testing.T) {
	got, cut := SummarizeStrings([]string{"a", "b", "c"}, 2)
	if got != "a, b" || !cut {
		t.Fatalf("SummarizeStrings = %q %v", got, cut)
	}
	got, cut = SummarizeStrings([]string{"a"}, 2)
	if got != "a" || cut {
		t.Fatalf("SummarizeStrings short = %q %v", got, cut)
	}
}
