// Package pattern compiles path patterns into anchored regular expressions
// and matches request paths against them.
//
// Three equivalent notations are accepted and compile identically:
//
//	/users/:id        /users/[id]        named parameter
//	/files/:path*     /files/[...path]   catch-all (zero or more segments)
//	/docs/[[...rest]]                    optional catch-all
//
// Parenthesised segments like /(group)/about are stripped before matching
// but retained in the display source.
package pattern

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/steerhttp/steer/internal/util"
)

// SegmentKind classifies a path segment.
type SegmentKind int

const (
	// SegmentStatic is a literal segment matched verbatim.
	SegmentStatic SegmentKind = iota
	// SegmentParam is a named parameter capturing exactly one segment.
	SegmentParam
	// SegmentCatchAll captures zero or more trailing segments as an array.
	SegmentCatchAll
	// SegmentOptionalCatchAll behaves like SegmentCatchAll and additionally
	// matches when the entire parameterized segment is absent.
	SegmentOptionalCatchAll
	// SegmentGroup is a display-only segment stripped before matching.
	SegmentGroup
)

// String returns the kind name.
func (k SegmentKind) String() string {
	switch k {
	case SegmentStatic:
		return "static"
	case SegmentParam:
		return "param"
	case SegmentCatchAll:
		return "catchAll"
	case SegmentOptionalCatchAll:
		return "optionalCatchAll"
	case SegmentGroup:
		return "group"
	default:
		return "unknown"
	}
}

// Segment is one typed piece of a compiled pattern. Segments are immutable,
// created once per compile.
type Segment struct {
	Kind SegmentKind
	Raw  string
	Name string
}

// ParamDescriptor describes one capture group of a compiled pattern, in
// positional order.
type ParamDescriptor struct {
	Name  string
	Array bool
}

// Compiled is a compiled path pattern.
type Compiled struct {
	Source   string
	Regex    *regexp.Regexp
	Segments []Segment
	Params   []ParamDescriptor
}

// Compile parses and compiles a path pattern. Malformed bracket syntax or a
// catch-all in a non-final position yields a *util.PatternError; patterns
// compile once at configuration-load time, so this never fails at request
// time.
func Compile(source string) (*Compiled, error) {
	segments, err := parseSegments(source)
	if err != nil {
		return nil, err
	}

	matchable := make([]Segment, 0, len(segments))
	for _, seg := range segments {
		if seg.Kind != SegmentGroup {
			matchable = append(matchable, seg)
		}
	}

	params := make([]ParamDescriptor, 0, len(matchable))
	for _, seg := range matchable {
		switch seg.Kind {
		case SegmentParam:
			params = append(params, ParamDescriptor{Name: seg.Name})
		case SegmentCatchAll, SegmentOptionalCatchAll:
			params = append(params, ParamDescriptor{Name: seg.Name, Array: true})
		}
	}

	regex, err := buildRegex(source, matchable)
	if err != nil {
		return nil, err
	}

	return &Compiled{
		Source:   source,
		Regex:    regex,
		Segments: matchable,
		Params:   params,
	}, nil
}

// parseSegments splits a pattern on "/" and classifies each token.
func parseSegments(source string) ([]Segment, error) {
	tokens := strings.Split(source, "/")
	segments := make([]Segment, 0, len(tokens))

	for _, token := range tokens {
		if token == "" {
			continue
		}

		seg, err := classifySegment(source, token)
		if err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}

	// Catch-all segments consume the remainder of the path and therefore
	// must be final.
	for i, seg := range segments {
		isCatchAll := seg.Kind == SegmentCatchAll || seg.Kind == SegmentOptionalCatchAll
		if isCatchAll && i != len(segments)-1 {
			return nil, util.NewPatternError(source, seg.Raw, "catch-all segment must be final")
		}
	}

	return segments, nil
}

// classifySegment determines the kind of a single non-empty token.
func classifySegment(source, token string) (Segment, error) {
	switch {
	case strings.HasPrefix(token, "(") && strings.HasSuffix(token, ")"):
		name := token[1 : len(token)-1]
		if name == "" {
			return Segment{}, util.NewPatternError(source, token, "empty group segment")
		}
		return Segment{Kind: SegmentGroup, Raw: token, Name: name}, nil

	case strings.HasPrefix(token, "[["):
		if !strings.HasSuffix(token, "]]") {
			return Segment{}, util.NewPatternError(source, token, "unbalanced optional catch-all brackets")
		}
		inner := token[2 : len(token)-2]
		name, ok := strings.CutPrefix(inner, "...")
		if !ok {
			return Segment{}, util.NewPatternError(source, token, "optional segment must be a catch-all")
		}
		if err := checkParamName(source, token, name); err != nil {
			return Segment{}, err
		}
		return Segment{Kind: SegmentOptionalCatchAll, Raw: token, Name: name}, nil

	case strings.HasPrefix(token, "["):
		if !strings.HasSuffix(token, "]") || strings.HasSuffix(token, "]]") {
			return Segment{}, util.NewPatternError(source, token, "unbalanced brackets")
		}
		inner := token[1 : len(token)-1]
		if name, ok := strings.CutPrefix(inner, "..."); ok {
			if err := checkParamName(source, token, name); err != nil {
				return Segment{}, err
			}
			return Segment{Kind: SegmentCatchAll, Raw: token, Name: name}, nil
		}
		if err := checkParamName(source, token, inner); err != nil {
			return Segment{}, err
		}
		return Segment{Kind: SegmentParam, Raw: token, Name: inner}, nil

	case strings.HasPrefix(token, ":"):
		name := token[1:]
		if star, ok := strings.CutSuffix(name, "*"); ok {
			if err := checkParamName(source, token, star); err != nil {
				return Segment{}, err
			}
			return Segment{Kind: SegmentCatchAll, Raw: token, Name: star}, nil
		}
		if err := checkParamName(source, token, name); err != nil {
			return Segment{}, err
		}
		return Segment{Kind: SegmentParam, Raw: token, Name: name}, nil

	case strings.ContainsAny(token, "[]"):
		return Segment{}, util.NewPatternError(source, token, "malformed bracket syntax")

	default:
		return Segment{Kind: SegmentStatic, Raw: token}, nil
	}
}

var paramNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// checkParamName validates a parameter name.
func checkParamName(source, token, name string) error {
	if name == "" {
		return util.NewPatternError(source, token, "empty parameter name")
	}
	if !paramNameRe.MatchString(name) {
		return util.NewPatternError(source, token, "invalid parameter name")
	}
	return nil
}

// buildRegex assembles the anchored regex segment by segment. Escaping is
// applied to literal text only, so inserted capture groups are never
// corrupted by escaping.
func buildRegex(source string, segments []Segment) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")

	for _, seg := range segments {
		switch seg.Kind {
		case SegmentStatic:
			b.WriteString("/")
			b.WriteString(regexp.QuoteMeta(seg.Raw))
		case SegmentParam:
			b.WriteString("/([^/]+)")
		case SegmentCatchAll, SegmentOptionalCatchAll:
			// The separating slash and the captured remainder may be
			// wholly absent: /a/:rest* matches /a with rest=[].
			b.WriteString("(?:/(.*))?")
		}
	}

	if b.Len() == 1 {
		b.WriteString("/")
	}
	b.WriteString("$")

	regex, err := regexp.Compile(b.String())
	if err != nil {
		return nil, util.NewPatternError(source, "", err.Error())
	}
	return regex, nil
}

// Param holds one decoded path parameter. Catch-all parameters are always
// arrays; all others are scalars.
type Param struct {
	Value  string
	Values []string
	Array  bool
}

// Params maps parameter names to decoded values.
type Params map[string]Param

// Scalar constructs a scalar Param.
func Scalar(value string) Param {
	return Param{Value: value}
}

// Array constructs an array Param.
func Array(values ...string) Param {
	if values == nil {
		values = []string{}
	}
	return Param{Values: values, Array: true}
}

// decodeParams positionally decodes regex captures per the descriptor list.
func decodeParams(descriptors []ParamDescriptor, captures []string) Params {
	params := make(Params, len(descriptors))

	for i, desc := range descriptors {
		capture := ""
		if i+1 < len(captures) {
			capture = captures[i+1]
		}

		if desc.Array {
			// An empty capture spans zero segments and decodes to an
			// empty array, never to a single empty-string element.
			if capture == "" {
				params[desc.Name] = Array()
				continue
			}
			parts := strings.Split(capture, "/")
			for j, part := range parts {
				parts[j] = unescapeSegment(part)
			}
			params[desc.Name] = Array(parts...)
			continue
		}

		params[desc.Name] = Scalar(unescapeSegment(capture))
	}

	return params
}

// unescapeSegment percent-decodes a captured segment, keeping the raw text
// when it is not valid percent-encoding.
func unescapeSegment(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	decoded, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}
