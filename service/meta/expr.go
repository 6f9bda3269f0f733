package meta

import (
	"os"
	"strings"
	"unicode"
)

// expandEnvExpr replaces ${env.KEY} with the value of the environment
// variable KEY, and ${env.KEY:-default} with default when KEY is unset or
// empty. Malformed expressions are kept literally.
func expandEnvExpr(value string) string {
	const prefix = "${env."
	var b strings.Builder
	i := 0
	for {
		idx := strings.Index(value[i:], prefix)
		if idx < 0 {
			b.WriteString(value[i:])
			break
		}
		b.WriteString(value[i : i+idx])
		startKey := i + idx + len(prefix)
		endKey := strings.IndexByte(value[startKey:], '}')
		if endKey < 0 {
			b.WriteString(value[i+idx:])
			break
		}
		expr := value[startKey : startKey+endKey]
		key, fallback, hasFallback := strings.Cut(expr, ":-")
		if !isEnvKey(key) {
			// consume the prefix only, nested expressions are still expanded
			b.WriteString(value[i+idx : startKey])
			i = startKey
			continue
		}
		resolved := os.Getenv(key)
		if resolved == "" && hasFallback {
			resolved = fallback
		}
		b.WriteString(resolved)
		i = startKey + endKey + 1
	}
	return b.String()
}

func isEnvKey(key string) bool {
	for _, r := range key {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
			return false
		}
	}
	return true
}
