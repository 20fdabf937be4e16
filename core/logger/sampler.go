package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// sampler admits the first num events of every window of den. A zero ratio
// admits everything.
type sampler struct {
	num atomic.Uint64
	den atomic.Uint64
	seq atomic.Uint64
}

func newSampler(num, den int) *sampler {
	s := &sampler{}
	s.Set(num, den)
	return s
}

func (s *sampler) Set(num, den int) {
	if num <= 0 || den <= 0 {
		num, den = 0, 0
	}
	if num > den {
		num = den
	}
	s.num.Store(uint64(num))
	s.den.Store(uint64(den))
	s.seq.Store(0)
}

func (s *sampler) Allow() bool {
	den := s.den.Load()
	if den == 0 {
		return true
	}
	return (s.seq.Add(1)-1)%den < s.num.Load()
}

// parseRatio reads "n/d", or "d" as shorthand for "1/d". "all" and "0" mean no
// sampling. ok is false when spec cannot be read.
func parseRatio(spec string) (num, den int, ok bool) {
	spec = strings.ToLower(strings.TrimSpace(spec))
	switch spec {
	case "":
		return 0, 0, false
	case "all", "0":
		return 0, 0, true
	}
	n, d, found := strings.Cut(spec, "/")
	if !found {
		n, d = "1", spec
	}
	num, err1 := strconv.Atoi(strings.TrimSpace(n))
	den, err2 := strconv.Atoi(strings.TrimSpace(d))
	if err1 != nil || err2 != nil || num < 0 || den <= 0 {
		return 0, 0, false
	}
	return num, den, true
}
