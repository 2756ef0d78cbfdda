package managed

import (
	"fmt"
	"strings"
)

// ParseOneDescriptor consumes exactly one type descriptor from the front of
// s and returns it along with the remainder, per spec.md §4.2: runs of '['
// followed by either a primitive char or an 'L...;' class descriptor, else
// a single primitive char.
func ParseOneDescriptor(s string) (descriptor string, rest string, err error) {
	if s == "" {
		return "", "", fmt.Errorf("managed: empty type descriptor")
	}
	i := 0
	for i < len(s) && s[i] == '[' {
		i++
	}
	if i >= len(s) {
		return "", "", fmt.Errorf("managed: truncated array descriptor %q", s)
	}
	switch s[i] {
	case 'L':
		j := strings.IndexByte(s[i:], ';')
		if j < 0 {
			return "", "", fmt.Errorf("managed: unterminated class descriptor %q", s)
		}
		end := i + j + 1
		return s[:end], s[end:], nil
	case 'Z', 'B', 'C', 'S', 'I', 'J', 'F', 'D', 'V':
		return s[:i+1], s[i+1:], nil
	default:
		return "", "", fmt.Errorf("managed: invalid descriptor char %q in %q", s[i], s)
	}
}

// ParseSignature decomposes a method signature "(P1P2…)R" into its
// parameter descriptors and return descriptor (spec.md §4.2).
func ParseSignature(signature string) (params []string, ret string, err error) {
	if len(signature) == 0 || signature[0] != '(' {
		return nil, "", fmt.Errorf("managed: signature %q missing '('", signature)
	}
	rest := signature[1:]
	for len(rest) > 0 && rest[0] != ')' {
		var d string
		d, rest, err = ParseOneDescriptor(rest)
		if err != nil {
			return nil, "", err
		}
		params = append(params, d)
	}
	if len(rest) == 0 || rest[0] != ')' {
		return nil, "", fmt.Errorf("managed: signature %q missing ')'", signature)
	}
	rest = rest[1:]
	ret, remainder, err := ParseOneDescriptor(rest)
	if err != nil {
		return nil, "", err
	}
	if remainder != "" {
		return nil, "", fmt.Errorf("managed: trailing data after return descriptor in %q", signature)
	}
	return params, ret, nil
}

// ShortyChar collapses a type descriptor to its shorty character: any array
// or class descriptor becomes 'L', a primitive descriptor keeps its own
// char, and the empty string (used for an implicit void) becomes 'V'.
func ShortyChar(descriptor string) byte {
	if descriptor == "" {
		return 'V'
	}
	if descriptor[0] == '[' || descriptor[0] == 'L' {
		return 'L'
	}
	return descriptor[0]
}

// ShortyOf computes the compact per-argument shorty string for a return
// descriptor and parameter descriptor list (spec.md §3 GLOSSARY "Shorty").
func ShortyOf(ret string, params []string) string {
	var sb strings.Builder
	sb.WriteByte(ShortyChar(ret))
	for _, p := range params {
		sb.WriteByte(ShortyChar(p))
	}
	return sb.String()
}

// FormatSignature reassembles a signature string from its parts, the
// inverse of ParseSignature.
func FormatSignature(params []string, ret string) string {
	var sb strings.Builder
	sb.WriteByte('(')
	for _, p := range params {
		sb.WriteString(p)
	}
	sb.WriteByte(')')
	sb.WriteString(ret)
	return sb.String()
}
