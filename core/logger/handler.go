package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	timeLayout = "2006-01-02T15:04:05.000Z07:00"
)

type handlerConfig struct {
	level    slog.Leveler
	out      *lineWriter
	format   logFormat
	keyOrder []string
}

// field is one flattened, normalized attribute.
type field struct {
	key string
	val any
}

// entry holds the fields of a single record keyed by their flattened name.
type entry map[string]any

func (e entry) setDefault(key string, val any) {
	if s, ok := val.(string); ok && s == "" {
		return
	}
	if _, ok := e[key]; !ok {
		e[key] = val
	}
}

// structuredHandler renders records as one JSON object or one key=value line,
// with well-known keys first and the rest sorted.
type structuredHandler struct {
	cfg    handlerConfig
	rank   map[string]int
	preset []field
	prefix string
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if len(cfg.keyOrder) == 0 {
		cfg.keyOrder = defaultKeyOrder
	}
	rank := make(map[string]int, len(cfg.keyOrder))
	for i, k := range cfg.keyOrder {
		if _, dup := rank[k]; !dup {
			rank[k] = i
		}
	}
	return &structuredHandler{cfg: cfg, rank: rank}
}

func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.out == nil {
		return errors.New("logger: writer not initialized")
	}
	e := make(entry, 16+len(h.preset))
	ts := r.Time.UTC()
	e["ts"] = ts.Truncate(time.Millisecond).Format(timeLayout)
	e["level"] = levelLabel(r.Level)
	if h.cfg.format == formatJSON {
		e["ts_unix_nano"] = ts.UnixNano()
	}
	for _, f := range h.preset {
		e[f.key] = f.val
	}
	r.Attrs(func(a slog.Attr) bool {
		flatten(h.prefix, a, func(f field) { e[f.key] = f.val })
		return true
	})
	MetaFrom(ctx).fields(e)

	e.setDefault("event", r.Message)
	e.setDefault("event", "unknown")
	e.setDefault("component", "app")
	normalizeEnums(e)
	for k, v := range e {
		if v == nil || v == "" {
			delete(e, k)
		}
	}

	line, err := h.encode(e)
	if err != nil {
		return err
	}
	return h.cfg.out.Write(append(line, '\n'))
}

func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	clone.preset = append([]field(nil), h.preset...)
	for _, a := range attrs {
		flatten(h.prefix, a, func(f field) { clone.preset = append(clone.preset, f) })
	}
	return &clone
}

func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = joinKey(h.prefix, name)
	return &clone
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	}
	return prefix + "." + key
}

// flatten emits a for every leaf of its group tree, keyed by the dotted path.
// Sensitive leaves are redacted here so no encoder ever sees them.
func flatten(prefix string, a slog.Attr, emit func(field)) {
	v := a.Value.Resolve()
	key := joinKey(prefix, a.Key)
	if v.Kind() == slog.KindGroup {
		for _, child := range v.Group() {
			flatten(key, child, emit)
		}
		return
	}
	if key == "" {
		return
	}
	key, val, ok := normalizeValue(key, v)
	if !ok {
		return
	}
	if isSensitive(key) {
		val = redactedValue
	}
	emit(field{key: key, val: val})
}

func normalizeValue(key string, v slog.Value) (string, any, bool) {
	switch v.Kind() {
	case slog.KindString:
		return key, strings.TrimSpace(v.String()), true
	case slog.KindInt64:
		return key, v.Int64(), true
	case slog.KindUint64:
		if u := v.Uint64(); u > math.MaxInt64 {
			return key, u, true
		}
		return key, int64(v.Uint64()), true
	case slog.KindFloat64:
		return key, v.Float64(), true
	case slog.KindBool:
		return key, v.Bool(), true
	case slog.KindDuration:
		k, ms := durationField(key, v.Duration())
		return k, ms, true
	case slog.KindTime:
		return key, v.Time().UTC().Format(time.RFC3339Nano), true
	}
	switch x := v.Any().(type) {
	case nil:
		return key, nil, false
	case error:
		return key, x.Error(), true
	case time.Duration:
		k, ms := durationField(key, x)
		return k, ms, true
	case fmt.Stringer:
		return key, x.String(), true
	case string:
		return key, strings.TrimSpace(x), true
	default:
		return key, fmt.Sprint(x), true
	}
}

// durationField renders durations as whole milliseconds under a "_ms" key.
func durationField(key string, d time.Duration) (string, int64) {
	if !strings.HasSuffix(key, "_ms") {
		key += "_ms"
	}
	return key, RoundMS(d).Milliseconds()
}

// normalizeEnums lowercases status and drops an outcome outside the vocabulary.
func normalizeEnums(e entry) {
	if s, ok := e["status"].(string); ok {
		e["status"], _ = statuses.lookup(s)
	}
	if o, ok := e["outcome"].(string); ok {
		if v, known := outcomes.lookup(o); known {
			e["outcome"] = v
		} else {
			delete(e, "outcome")
		}
	}
}

func (h *structuredHandler) sortedKeys(e entry) []string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ri, iok := h.rank[keys[i]]
		rj, jok := h.rank[keys[j]]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		}
		return keys[i] < keys[j]
	})
	return keys
}

func (h *structuredHandler) encode(e entry) ([]byte, error) {
	keys := h.sortedKeys(e)
	var b bytes.Buffer
	if h.cfg.format != formatJSON {
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(kvValue(e[k]))
		}
		return b.Bytes(), nil
	}

	b.WriteByte('{')
	for i, k := range keys {
		val, err := json.Marshal(e[k])
		if err != nil {
			return nil, fmt.Errorf("logger: encode %s: %w", k, err)
		}
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(k))
		b.WriteByte(':')
		b.Write(val)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

func kvValue(v any) string {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case bool:
		s = strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		s = fmt.Sprint(x)
	}
	if strings.IndexFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) >= 0 {
		return strconv.Quote(s)
	}
	return s
}
