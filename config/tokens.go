package config

import (
	"fmt"
	"io/ioutil"
	"path/filepath"
	"sort"
	"strings"

	"github.com/activecm/logvigil/util"
)

type (
	//Token is one lexical element of a rule file along with its origin
	Token struct {
		Text string // token text with quotes stripped
		File string // path of the file the token came from
		Line int    // 1-based line number
	}
)

// Brace and include tokens keep their literal spelling in Token.Text. Quoted
// strings are unwrapped so the parser never needs to care about quoting.

// Tokenize reads a rule file and returns its token stream. Include
// directives (<path>) are resolved inline: relative paths are taken from the
// including file's directory, directories include every immediate entry once
// in lexicographic order, and a missing path is only an error when it names
// a literal file (a glob with no matches is silently empty).
func Tokenize(path string) ([]Token, error) {
	seen := make(map[string]bool)
	return tokenizeFile(path, seen)
}

func tokenizeFile(path string, seen map[string]bool) ([]Token, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if seen[abs] {
		return nil, nil
	}
	seen[abs] = true

	contents, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open config file %s: %v", path, err)
	}

	var tokens []Token
	for lineNo, line := range strings.Split(string(contents), "\n") {
		lineTokens, err := splitLine(line, path, lineNo+1)
		if err != nil {
			return nil, err
		}
		for _, tok := range lineTokens {
			if strings.HasPrefix(tok.Text, "<") && strings.HasSuffix(tok.Text, ">") && len(tok.Text) > 2 {
				included, err := tokenizeInclude(tok.Text[1:len(tok.Text)-1], path, seen)
				if err != nil {
					return nil, err
				}
				tokens = append(tokens, included...)
				continue
			}
			tokens = append(tokens, tok)
		}
	}
	return tokens, nil
}

// tokenizeInclude resolves one <path> directive relative to the including file.
func tokenizeInclude(include string, from string, seen map[string]bool) ([]Token, error) {
	if !filepath.IsAbs(include) {
		include = filepath.Join(filepath.Dir(from), include)
	}

	if util.IsDir(include) {
		entries, err := ioutil.ReadDir(include)
		if err != nil {
			return nil, fmt.Errorf("cannot read config directory %s: %v", include, err)
		}
		names := make([]string, 0, len(entries))
		for _, entry := range entries {
			if !entry.IsDir() {
				names = append(names, entry.Name())
			}
		}
		sort.Strings(names)
		var tokens []Token
		for _, name := range names {
			sub, err := tokenizeFile(filepath.Join(include, name), seen)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, sub...)
		}
		return tokens, nil
	}

	if strings.ContainsAny(include, "*?[") {
		matches, err := filepath.Glob(include)
		if err != nil {
			return nil, fmt.Errorf("bad include pattern %s: %v", include, err)
		}
		sort.Strings(matches)
		var tokens []Token
		for _, match := range matches {
			sub, err := tokenizeFile(match, seen)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, sub...)
		}
		return tokens, nil
	}

	if !util.Exists(include) {
		return nil, fmt.Errorf("missing include file %s (included from %s)", include, from)
	}
	return tokenizeFile(include, seen)
}

// splitLine lexes one line into tokens: bare words, quoted strings (no
// escapes, no nesting), braces, and include directives. A '#' outside quotes
// discards the rest of the line.
func splitLine(line string, file string, lineNo int) ([]Token, error) {
	var tokens []Token
	i := 0
	for i < len(line) {
		c := line[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c == '#':
			return tokens, nil
		case c == '{' || c == '}':
			tokens = append(tokens, Token{Text: string(c), File: file, Line: lineNo})
			i++
		case c == '"' || c == '\'':
			end := strings.IndexByte(line[i+1:], c)
			if end < 0 {
				return nil, fmt.Errorf("%s:%d: unterminated %c-quoted string", file, lineNo, c)
			}
			tokens = append(tokens, Token{Text: line[i+1 : i+1+end], File: file, Line: lineNo})
			i += end + 2
		default:
			j := i
			for j < len(line) {
				c := line[j]
				if c == ' ' || c == '\t' || c == '\r' || c == '{' || c == '}' || c == '#' {
					break
				}
				j++
			}
			tokens = append(tokens, Token{Text: line[i:j], File: file, Line: lineNo})
			i = j
		}
	}
	return tokens, nil
}
