// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package filter

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"bgpsdn/common/helpers"
	"bgpsdn/common/helpers/bimap"
)

// Verdict is the result of matching a route against a rule or a filter.
type Verdict uint8

const (
	// NoVerdict means the route did not match. The caller should fall
	// back to its own default.
	NoVerdict Verdict = iota
	// Accept means the route is accepted.
	Accept
	// Reject means the route is rejected.
	Reject
)

var verdictMap = bimap.New(map[Verdict]string{
	NoVerdict: "none",
	Accept:    "accept",
	Reject:    "reject",
})

func (v Verdict) String() string {
	if s, ok := verdictMap.LoadValue(v); ok {
		return s
	}
	return fmt.Sprintf("verdict(%d)", uint8(v))
}

// MarshalText turns a verdict into text.
func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText parses a verdict. "true" and "false" are accepted as
// synonyms for accept and reject.
func (v *Verdict) UnmarshalText(input []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(input)))
	switch s {
	case "true":
		*v = Accept
	case "false":
		*v = Reject
	case "":
		*v = NoVerdict
	default:
		got, ok := verdictMap.LoadKey(s)
		if !ok {
			return fmt.Errorf("unknown verdict %q", input)
		}
		*v = got
	}
	return nil
}

// or returns the verdict, or the provided default when there is none.
func (v Verdict) or(other Verdict) Verdict {
	if v == NoVerdict {
		return other
	}
	return v
}

// VerdictUnmarshallerHook decodes a verdict from a boolean.
func VerdictUnmarshallerHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Value) (any, error) {
		from = helpers.ElemOrIdentity(from)
		to = helpers.ElemOrIdentity(to)
		if !to.IsValid() || to.Type() != reflect.TypeOf(Verdict(0)) || from.Kind() != reflect.Bool {
			return from.Interface(), nil
		}
		if from.Bool() {
			return Accept, nil
		}
		return Reject, nil
	}
}

func init() {
	helpers.RegisterMapstructureUnmarshallerHook(VerdictUnmarshallerHook())
}
