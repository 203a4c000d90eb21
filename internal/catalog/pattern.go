package catalog

// Match reports whether s matches the ODBC search pattern p: '%' matches any
// run of characters, '_' exactly one, and '\' escapes the next character.
// Matching is case-sensitive. An empty pattern matches everything.
func Match(p, s string) bool {
	if p == "" {
		return true
	}
	return match([]rune(p), []rune(s))
}

func match(p, s []rune) bool {
	// star remembers the last '%' so a failed literal run can retry one
	// character further on.
	pi, si := 0, 0
	star, mark := -1, 0
	for si < len(s) {
		if pi < len(p) {
			switch c := p[pi]; {
			case c == '%':
				star, mark = pi, si
				pi++
				continue
			case c == '_':
				pi++
				si++
				continue
			case c == '\\' && pi+1 < len(p):
				if p[pi+1] == s[si] {
					pi += 2
					si++
					continue
				}
			case c == s[si]:
				pi++
				si++
				continue
			}
		}
		if star < 0 {
			return false
		}
		mark++
		pi, si = star+1, mark
	}
	for pi < len(p) && p[pi] == '%' {
		pi++
	}
	return pi == len(p)
}

// isLiteral reports whether p contains no wildcard, so it names exactly one
// object.
func isLiteral(p string) bool {
	escaped := false
	for _, r := range p {
		switch {
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case r == '%' || r == '_':
			return false
		}
	}
	return true
}

// unescape removes pattern escapes from a literal pattern.
func unescape(p string) string {
	out := make([]rune, 0, len(p))
	escaped := false
	for _, r := range p {
		if r == '\\' && !escaped {
			escaped = true
			continue
		}
		escaped = false
		out = append(out, r)
	}
	return string(out)
}
