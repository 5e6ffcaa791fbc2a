package config

import (
	"errors"
	"fmt"
	"strings"
)

// maxInterpolationDepth limits chains of %(key)s references
const maxInterpolationDepth = 10

var ErrInterpolation = errors.New("bad interpolation")

// interpolate expands the values of one INI section the way configparser
// does: "%%" is a literal percent sign and "%(key)s" is replaced by another
// value of the same section, DEFAULT keys included.
func interpolate(section map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(section))
	for key, value := range section {
		expanded, err := expand(section, key, value, 1)
		if err != nil {
			return nil, err
		}
		out[key] = expanded
	}
	return out, nil
}

func expand(section map[string]string, key, value string, depth int) (string, error) {
	if !strings.Contains(value, "%") {
		return value, nil
	}
	if depth > maxInterpolationDepth {
		return "", fmt.Errorf("%w: %q references nest deeper than %d", ErrInterpolation, key, maxInterpolationDepth)
	}

	var b strings.Builder
	for i := 0; i < len(value); {
		if value[i] != '%' {
			b.WriteByte(value[i])
			i++
			continue
		}

		if i+1 < len(value) && value[i+1] == '%' {
			b.WriteByte('%')
			i += 2
			continue
		}

		if i+1 < len(value) && value[i+1] == '(' {
			end := strings.Index(value[i:], ")s")
			if end < 0 {
				return "", fmt.Errorf("%w: %q has an unterminated reference", ErrInterpolation, key)
			}
			name := strings.ToLower(value[i+2 : i+end])
			ref, ok := section[name]
			if !ok {
				return "", fmt.Errorf("%w: %q references missing key %q", ErrInterpolation, key, name)
			}
			sub, err := expand(section, name, ref, depth+1)
			if err != nil {
				return "", err
			}
			b.WriteString(sub)
			i += end + 2
			continue
		}

		return "", fmt.Errorf("%w: %q: '%%' must be followed by '%%' or '('", ErrInterpolation, key)
	}
	return b.String(), nil
}
