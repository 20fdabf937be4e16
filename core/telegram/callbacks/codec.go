// Package callbacks encodes flow actions into Telegram callback_data strings.
//
// A payload is tag[:arg...]. Every tag declares a fixed, ordered argument list and no
// argument may contain the delimiter. Values that do not fit the 64-byte budget are
// referenced by index into session state instead of being carried in the payload.
package callbacks

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"
)

const (
	// Delimiter separates the tag and its arguments.
	Delimiter = ":"
	// MaxLen is Telegram's callback_data limit in bytes.
	MaxLen = 64
)

var (
	// ErrUnrecognized marks payloads whose tag is not part of the grammar.
	ErrUnrecognized = errors.New("callbacks: unrecognized action")
	// ErrMalformed marks payloads with a known tag but invalid arguments.
	ErrMalformed = errors.New("callbacks: malformed action")
	// ErrTooLong is returned when an encoded payload exceeds MaxLen.
	ErrTooLong = errors.New("callbacks: payload exceeds 64 bytes")
)

// Tag identifies an action.
type Tag string

const (
	Login        Tag = "login"
	LoginCancel  Tag = "login_cancel"
	OTPNew       Tag = "otp_new"
	Logout       Tag = "logout"
	Menu         Tag = "menu"
	Help         Tag = "help"
	Profile      Tag = "profile"
	KYC          Tag = "kyc"
	Wallets      Tag = "wallets"
	Balance      Tag = "balance"
	Deposit      Tag = "deposit"
	DepositNet   Tag = "deposit_net"
	Default      Tag = "default"
	DefaultSet   Tag = "default_set"
	SendMenu     Tag = "send_menu"
	Send         Tag = "send"
	SendOK       Tag = "send_ok"
	Email        Tag = "email"
	EmailTo      Tag = "email_to"
	EmailOK      Tag = "email_ok"
	PayeeAdd     Tag = "payee_add"
	Withdraw     Tag = "withdraw"
	WithdrawBank Tag = "wd_bank"
	WithdrawOK   Tag = "wd_ok"
	Batch        Tag = "batch"
	BatchTo      Tag = "batch_to"
	BatchNew     Tag = "batch_new"
	BatchOK      Tag = "batch_ok"
	History      Tag = "history"
	Points       Tag = "points"
	Cancel       Tag = "cancel"
)

// ArgKind is the declared type of a positional argument.
type ArgKind int

const (
	// Identifier is an opaque API id: letters, digits, '.', '_' or '-', up to 48 bytes.
	Identifier ArgKind = iota
	// Index is a non-negative integer without leading zeros.
	Index
)

var (
	identifierRe = regexp.MustCompile(`^[A-Za-z0-9._-]{1,48}$`)
	indexRe      = regexp.MustCompile(`^(0|[1-9]\d{0,5})$`)
)

var grammar = map[Tag][]ArgKind{
	Login:        nil,
	LoginCancel:  nil,
	OTPNew:       nil,
	Logout:       nil,
	Menu:         nil,
	Help:         nil,
	Profile:      nil,
	KYC:          nil,
	Wallets:      nil,
	Balance:      nil,
	Deposit:      nil,
	DepositNet:   {Identifier},
	Default:      nil,
	DefaultSet:   {Identifier},
	SendMenu:     nil,
	Send:         nil,
	SendOK:       nil,
	Email:        nil,
	EmailTo:      {Index},
	EmailOK:      nil,
	PayeeAdd:     nil,
	Withdraw:     nil,
	WithdrawBank: {Index},
	WithdrawOK:   nil,
	Batch:        nil,
	BatchTo:      {Index},
	BatchNew:     nil,
	BatchOK:      nil,
	History:      {Index},
	Points:       nil,
	Cancel:       nil,
}

// Tags lists every known tag.
func Tags() []Tag {
	out := make([]Tag, 0, len(grammar))
	for t := range grammar {
		out = append(out, t)
	}
	return out
}

// Signature returns the declared argument kinds for tag.
func Signature(tag Tag) ([]ArgKind, bool) {
	kinds, ok := grammar[tag]
	return kinds, ok
}

// Action is a decoded payload.
type Action struct {
	Tag  Tag
	Args []string
}

// Arg returns the i-th argument or "".
func (a Action) Arg(i int) string {
	if i < 0 || i >= len(a.Args) {
		return ""
	}
	return a.Args[i]
}

// Int returns the i-th argument parsed as an index.
func (a Action) Int(i int) int {
	n, _ := strconv.Atoi(a.Arg(i))
	return n
}

func validArg(kind ArgKind, v string) bool {
	switch kind {
	case Identifier:
		return identifierRe.MatchString(v)
	case Index:
		return indexRe.MatchString(v)
	}
	return false
}

// Encode renders tag and args, validating them against the grammar.
func Encode(tag Tag, args ...string) (string, error) {
	kinds, ok := grammar[tag]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnrecognized, tag)
	}
	if len(args) != len(kinds) {
		return "", fmt.Errorf("%w: %s wants %d args, got %d", ErrMalformed, tag, len(kinds), len(args))
	}
	for i, kind := range kinds {
		if !validArg(kind, args[i]) {
			return "", fmt.Errorf("%w: %s arg %d %q", ErrMalformed, tag, i, args[i])
		}
	}
	out := string(tag)
	if len(args) > 0 {
		out += Delimiter + strings.Join(args, Delimiter)
	}
	if len(out) > MaxLen {
		return "", fmt.Errorf("%w: %s (%d bytes)", ErrTooLong, tag, len(out))
	}
	return out, nil
}

// EncodeIndex is Encode for tags whose only argument is an Index.
func EncodeIndex(tag Tag, i int) (string, error) {
	if i < 0 {
		return "", fmt.Errorf("%w: %s negative index", ErrMalformed, tag)
	}
	return Encode(tag, strconv.Itoa(i))
}

// Decode parses data. Unknown tags yield ErrUnrecognized.
func Decode(data string) (Action, error) {
	if data == "" || len(data) > MaxLen {
		return Action{}, ErrUnrecognized
	}
	parts := strings.Split(data, Delimiter)
	tag := Tag(parts[0])
	kinds, ok := grammar[tag]
	if !ok {
		return Action{}, fmt.Errorf("%w: %q", ErrUnrecognized, parts[0])
	}
	args := parts[1:]
	if len(args) != len(kinds) {
		return Action{}, fmt.Errorf("%w: %s", ErrMalformed, tag)
	}
	for i, kind := range kinds {
		if !validArg(kind, args[i]) {
			return Action{}, fmt.Errorf("%w: %s arg %d", ErrMalformed, tag, i)
		}
	}
	if len(args) == 0 {
		args = nil
	}
	return Action{Tag: tag, Args: args}, nil
}

// RawData recovers the callback_data the client sent. telebot splits
// "\funique|data" into Unique and Data; the two are rejoined here.
func RawData(cb *tele.Callback) string {
	if cb == nil {
		return ""
	}
	data := strings.TrimSpace(strings.TrimPrefix(cb.Data, "\f"))
	switch {
	case cb.Unique == "":
		return data
	case data == "":
		return cb.Unique
	}
	return cb.Unique + "|" + data
}
