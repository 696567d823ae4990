package evaluator

import (
	"strings"
	"unicode/utf8"

	"github.com/sandrolain/goirl/pkg/types"
)

func fnConcat(c *CallContext, args []*types.Value) (*types.Value, error) {
	return c.Region.NewString(args[0].Str + args[1].Str), nil
}

// likeFunc returns a like operator. Wildcard patterns and regular
// expressions both have to match the whole string.
func likeFunc(regex, negate bool) BuiltinFunc {
	return func(c *CallContext, args []*types.Value) (*types.Value, error) {
		re, err := compileMatcher(args[1].Str, regex)
		if err != nil {
			return nil, c.fail(types.InvalidRegexp, "error: invalid pattern %q: %v", args[1].Str, err)
		}
		return c.Region.NewBool(re.MatchString(args[0].Str) != negate), nil
	}
}

// fnTriml removes everything up to and including the first occurrence of
// the delimiter.
func fnTriml(c *CallContext, args []*types.Value) (*types.Value, error) {
	s, d := args[0].Str, args[1].Str
	if i := strings.Index(s, d); i >= 0 && d != "" {
		s = s[i+len(d):]
	}
	return c.Region.NewString(s), nil
}

// fnTrimr removes the last occurrence of the delimiter and everything
// after it.
func fnTrimr(c *CallContext, args []*types.Value) (*types.Value, error) {
	s, d := args[0].Str, args[1].Str
	if i := strings.LastIndex(s, d); i >= 0 && d != "" {
		s = s[:i]
	}
	return c.Region.NewString(s), nil
}

func fnStrlen(c *CallContext, args []*types.Value) (*types.Value, error) {
	return c.Region.NewInt(int64(utf8.RuneCountInString(args[0].Str))), nil
}

// fnSubstr returns the characters in [start, finish).
func fnSubstr(c *CallContext, args []*types.Value) (*types.Value, error) {
	runes := []rune(args[0].Str)
	start, finish := args[1].AsInt(), args[2].AsInt()
	if start < 0 || finish < start || finish > int64(len(runes)) {
		return nil, c.fail(types.ReRuntimeError, "invalid substr index error")
	}
	return c.Region.NewString(string(runes[start:finish])), nil
}

// fnSplit splits on any of the delimiter characters, dropping empty
// fields.
func fnSplit(c *CallContext, args []*types.Value) (*types.Value, error) {
	delims := args[1].Str
	fields := strings.FieldsFunc(args[0].Str, func(r rune) bool {
		return strings.ContainsRune(delims, r)
	})
	elems := make([]*types.Value, len(fields))
	for i, f := range fields {
		elems[i] = c.Region.NewString(f)
	}
	return c.Region.NewList(types.NewSimpleType(types.TString), elems...), nil
}
