package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/activecm/logvigil/pkg/action"
	"github.com/activecm/logvigil/pkg/trigger"
	"github.com/activecm/logvigil/pkg/whitelist"
)

// errorContext is how many tokens beyond the offending one a syntax error
// reports.
const errorContext = 9

type (
	// parser consumes a token stream and fills in the config and ruleset
	parser struct {
		conf  *Config
		rules *Ruleset
		skips []string // raw skip regexes, joined into one alternation at finish

		tokens []Token
		pos    int
	}
)

func newParser(conf *Config, rules *Ruleset) *parser {
	return &parser{conf: conf, rules: rules}
}

// parse consumes one file's token stream.
func (p *parser) parse(tokens []Token) error {
	p.tokens = tokens
	p.pos = 0

	for !p.done() {
		keyword := p.next()
		var err error
		switch keyword.Text {
		case "set":
			err = p.parseSet()
		case "action":
			err = p.parseAction()
		case "whitelist":
			err = p.parseWhitelist()
		case "skip":
			err = p.parseSkip()
		case "trigger":
			err = p.parseTrigger()
		default:
			err = p.fail(keyword, "unknown keyword %q", keyword.Text)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// finish compiles the accumulated skip regexes. Called once after every
// file has been parsed.
func (p *parser) finish() error {
	if len(p.skips) == 0 {
		return nil
	}
	re, err := regexp.Compile(strings.Join(p.skips, "|"))
	if err != nil {
		return fmt.Errorf("bad skip regex: %v", err)
	}
	p.rules.Skips = re
	return nil
}

// set KEY VAL | set KEY { v1 v2 ... }
func (p *parser) parseSet() error {
	key, err := p.word("setting name")
	if err != nil {
		return err
	}
	if p.peek() == "{" {
		values, err := p.block("setting values")
		if err != nil {
			return err
		}
		p.conf.assign(key.Text, values)
		return nil
	}
	value, err := p.word("setting value")
	if err != nil {
		return err
	}
	p.conf.assign(key.Text, []string{value.Text})
	return nil
}

// action NAME [k:v ...] { TYPE ARGS... }
func (p *parser) parseAction() error {
	name, err := p.word("action name")
	if err != nil {
		return err
	}
	vars, err := p.preamble()
	if err != nil {
		return err
	}
	body, err := p.block("action body")
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return p.fail(name, "action %q has an empty body", name.Text)
	}
	kind, ok := action.ParseType(body[0])
	if !ok {
		return p.fail(name, "unknown action type %q", body[0])
	}
	p.rules.Actions[name.Text] = &action.Action{
		Name: name.Text,
		Type: kind,
		Args: body[1:],
		Vars: vars,
	}
	return nil
}

// whitelist [k:v ...] { CIDR [@class] ... }
func (p *parser) parseWhitelist() error {
	vars, err := p.preamble()
	if err != nil {
		return err
	}
	entries, err := p.block("whitelist entries")
	if err != nil {
		return err
	}
	list := whitelist.NewList(vars)
	for i := 0; i < len(entries); i++ {
		address := entries[i]
		class := ""
		if i+1 < len(entries) && strings.HasPrefix(entries[i+1], "@") {
			class = strings.TrimPrefix(entries[i+1], "@")
			i++
		}
		if err := list.Add(address, class); err != nil {
			return fmt.Errorf("bad whitelist entry %q: %v", address, err)
		}
	}
	p.rules.Whitelists = append(p.rules.Whitelists, list)
	return nil
}

// skip { regex ... }
func (p *parser) parseSkip() error {
	patterns, err := p.block("skip patterns")
	if err != nil {
		return err
	}
	p.skips = append(p.skips, patterns...)
	return nil
}

// trigger [k:v ...] { TRIGGER ... }
// Each TRIGGER is a bare regex (implicitly $url ~ REGEX) or the three-token
// form $FIELD OP OPERAND.
func (p *parser) parseTrigger() error {
	vars, err := p.preamble()
	if err != nil {
		return err
	}
	threshold := 0
	if raw, ok := vars["threshold"]; ok {
		threshold = coerceInt(raw, 0)
	}

	if err := p.expect("{"); err != nil {
		return err
	}
	for p.peek() != "}" {
		if p.done() {
			return p.fail(p.last(), "unterminated trigger block")
		}
		first := p.next()

		field := "url"
		op := trigger.Match
		operand := first.Text

		if strings.HasPrefix(first.Text, "$") {
			opToken, err := p.word("trigger operator")
			if err != nil {
				return err
			}
			parsed, ok := trigger.ParseOp(opToken.Text)
			if !ok {
				return p.fail(opToken, "unknown trigger operator %q", opToken.Text)
			}
			operandToken, err := p.word("trigger operand")
			if err != nil {
				return err
			}
			field = strings.TrimPrefix(first.Text, "$")
			op = parsed
			operand = operandToken.Text
		}

		compiled, err := trigger.New(field, op, operand, vars)
		if err != nil {
			return p.fail(first, "%v", err)
		}
		compiled.Threshold = threshold
		p.rules.Triggers = append(p.rules.Triggers, compiled)
	}
	p.next() // consume }
	return nil
}

// preamble reads the optional k:v pairs that precede a block body.
func (p *parser) preamble() (map[string]string, error) {
	vars := make(map[string]string)
	for !p.done() && p.peek() != "{" {
		tok := p.next()
		idx := strings.Index(tok.Text, ":")
		if idx <= 0 {
			return nil, p.fail(tok, "expected key:value or '{', got %q", tok.Text)
		}
		vars[tok.Text[:idx]] = tok.Text[idx+1:]
	}
	return vars, nil
}

// block reads { t1 t2 ... } and returns the body token texts.
func (p *parser) block(what string) ([]string, error) {
	if err := p.expect("{"); err != nil {
		return nil, err
	}
	var body []string
	for {
		if p.done() {
			return nil, p.fail(p.last(), "unterminated %s block", what)
		}
		tok := p.next()
		if tok.Text == "}" {
			return body, nil
		}
		body = append(body, tok.Text)
	}
}

func (p *parser) word(what string) (Token, error) {
	if p.done() {
		return Token{}, p.fail(p.last(), "missing %s", what)
	}
	tok := p.next()
	if tok.Text == "{" || tok.Text == "}" {
		return Token{}, p.fail(tok, "expected %s, got %q", what, tok.Text)
	}
	return tok, nil
}

func (p *parser) expect(text string) error {
	if p.done() {
		return p.fail(p.last(), "expected %q", text)
	}
	tok := p.next()
	if tok.Text != text {
		return p.fail(tok, "expected %q, got %q", text, tok.Text)
	}
	return nil
}

func (p *parser) done() bool { return p.pos >= len(p.tokens) }

func (p *parser) next() Token {
	tok := p.tokens[p.pos]
	p.pos++
	return tok
}

func (p *parser) peek() string {
	if p.done() {
		return ""
	}
	return p.tokens[p.pos].Text
}

func (p *parser) last() Token {
	if len(p.tokens) == 0 {
		return Token{}
	}
	return p.tokens[len(p.tokens)-1]
}

// fail formats a fatal syntax error: the offending token's position, the
// message, and up to errorContext following tokens for context.
func (p *parser) fail(tok Token, format string, args ...interface{}) error {
	message := fmt.Sprintf(format, args...)
	var context []string
	for i := p.pos; i < len(p.tokens) && len(context) < errorContext; i++ {
		context = append(context, p.tokens[i].Text)
	}
	if len(context) > 0 {
		return fmt.Errorf("%s:%d: %s (near: %s)", tok.File, tok.Line, message, strings.Join(context, " "))
	}
	return fmt.Errorf("%s:%d: %s", tok.File, tok.Line, message)
}
