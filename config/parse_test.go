package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/activecm/logvigil/pkg/action"
	"github.com/activecm/logvigil/pkg/trigger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeRules drops a rule file into a temp dir and returns its path.
func writeRules(t *testing.T, dir string, name string, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, ioutil.WriteFile(path, []byte(contents), 0644))
	return path
}

func tempDir(t *testing.T) string {
	t.Helper()
	dir, err := ioutil.TempDir("", "logvigil-config")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func TestParseSetScalarAndList(t *testing.T) {
	dir := tempDir(t)
	file := writeRules(t, dir, "main.conf", `
set threshold 2
set window 30s
set duration 60s
set action block
set logfiles { /var/log/a.log /var/log/b.log }
`)

	conf, _, err := LoadConfig([]string{file}, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, conf.S.Threshold)
	assert.Equal(t, 30, conf.S.Window)
	assert.Equal(t, 60, conf.S.Duration)
	assert.Equal(t, "block", conf.S.Action)
	assert.Equal(t, []string{"/var/log/a.log", "/var/log/b.log"}, conf.S.Logfiles)
	assert.Equal(t, "/var/log/a.log /var/log/b.log", conf.Vars["logfiles"])
}

func TestParseDefaults(t *testing.T) {
	dir := tempDir(t)
	file := writeRules(t, dir, "empty.conf", "")

	conf, _, err := LoadConfig([]string{file}, nil)
	require.NoError(t, err)

	assert.Equal(t, "block", conf.S.Action)
	assert.Equal(t, "unblock", conf.S.Expire)
	assert.Equal(t, 3600, conf.S.Duration)
	assert.Equal(t, 10, conf.S.Threshold)
	assert.Equal(t, 30, conf.S.Window)
	assert.Equal(t, "client", conf.S.Hit)
	assert.True(t, conf.S.Flush)
	assert.False(t, conf.S.Multitrigger)
}

func TestParseDefinesWin(t *testing.T) {
	dir := tempDir(t)
	file := writeRules(t, dir, "main.conf", "set threshold 5\n")

	conf, _, err := LoadConfig([]string{file}, map[string]string{"threshold": "7"})
	require.NoError(t, err)
	assert.Equal(t, 7, conf.S.Threshold)
}

func TestParseAction(t *testing.T) {
	dir := tempDir(t)
	file := writeRules(t, dir, "main.conf", `
action block port:80 { exec iptables -I INPUT -s %(client) -j DROP }
action note { print seen %(client) }
action bail { exit 3 going down }
action nothing { null }
`)

	_, rules, err := LoadConfig([]string{file}, nil)
	require.NoError(t, err)
	require.Len(t, rules.Actions, 4)

	block := rules.Actions["block"]
	require.NotNil(t, block)
	assert.Equal(t, action.Exec, block.Type)
	assert.Equal(t, []string{"iptables", "-I", "INPUT", "-s", "%(client)", "-j", "DROP"}, block.Args)
	assert.Equal(t, "80", block.Vars["port"])

	assert.Equal(t, action.Print, rules.Actions["note"].Type)
	assert.Equal(t, action.Exit, rules.Actions["bail"].Type)
	assert.Equal(t, action.Null, rules.Actions["nothing"].Type)
}

func TestParseWhitelistClasses(t *testing.T) {
	dir := tempDir(t)
	file := writeRules(t, dir, "main.conf", `
whitelist {
    192.168.0.0/16 @office
    10.0.0.0/8
    ipv6=2001:db8::/32 @lab
}
`)

	_, rules, err := LoadConfig([]string{file}, nil)
	require.NoError(t, err)
	require.Len(t, rules.Whitelists, 1)
}

func TestParseSkipAlternation(t *testing.T) {
	dir := tempDir(t)
	file := writeRules(t, dir, "main.conf", `
skip { \.css$ }
skip { \.js$ }
`)

	_, rules, err := LoadConfig([]string{file}, nil)
	require.NoError(t, err)
	require.NotNil(t, rules.Skips)
	assert.True(t, rules.Skips.MatchString("/style.css"))
	assert.True(t, rules.Skips.MatchString("/app.js"))
	assert.False(t, rules.Skips.MatchString("/index.html"))
}

func TestParseTriggerForms(t *testing.T) {
	dir := tempDir(t)
	file := writeRules(t, dir, "main.conf", `
trigger action:notify port:80 {
    ^/w00tw00t
    $status = 404
    $user_agent !~ Mozilla
}
`)

	_, rules, err := LoadConfig([]string{file}, nil)
	require.NoError(t, err)
	require.Len(t, rules.Triggers, 3)

	bare := rules.Triggers[0]
	assert.Equal(t, "url", bare.Field)
	assert.Equal(t, trigger.Match, bare.Op)
	assert.Equal(t, "notify", bare.Vars["action"])

	eq := rules.Triggers[1]
	assert.Equal(t, "status", eq.Field)
	assert.Equal(t, trigger.Eq, eq.Op)
	assert.Equal(t, "404", eq.Operand)

	noMatch := rules.Triggers[2]
	assert.Equal(t, trigger.NoMatch, noMatch.Op)
}

func TestParseTriggerThreshold(t *testing.T) {
	dir := tempDir(t)
	file := writeRules(t, dir, "main.conf", `
trigger threshold:3 action:block { $status = 404 }
`)

	_, rules, err := LoadConfig([]string{file}, nil)
	require.NoError(t, err)
	require.Len(t, rules.Triggers, 1)
	assert.Equal(t, 3, rules.Triggers[0].Threshold)
}

func TestParseSyntaxErrorContext(t *testing.T) {
	dir := tempDir(t)
	file := writeRules(t, dir, "main.conf", "frobnicate a b c d\n")

	_, _, err := LoadConfig([]string{file}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frobnicate")
	assert.Contains(t, err.Error(), "a b c d")
}

func TestParseQuotedStrings(t *testing.T) {
	dir := tempDir(t)
	file := writeRules(t, dir, "main.conf", `
set threshold.message "spaces stay: %(client)"
action note { print 'single quoted arg' plain }
`)

	conf, rules, err := LoadConfig([]string{file}, nil)
	require.NoError(t, err)
	assert.Equal(t, "spaces stay: %(client)", conf.S.ThresholdMessage)
	assert.Equal(t, []string{"single quoted arg", "plain"}, rules.Actions["note"].Args)
}

func TestIncludeFile(t *testing.T) {
	dir := tempDir(t)
	writeRules(t, dir, "extra.conf", "set threshold 4\n")
	main := writeRules(t, dir, "main.conf", "<extra.conf>\n")

	conf, _, err := LoadConfig([]string{main}, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, conf.S.Threshold)
}

func TestIncludeDirectoryLexicographic(t *testing.T) {
	dir := tempDir(t)
	sub := filepath.Join(dir, "conf.d")
	require.NoError(t, os.Mkdir(sub, 0755))
	writeRules(t, sub, "20-later.conf", "set action later\n")
	writeRules(t, sub, "10-early.conf", "set action early\n")
	main := writeRules(t, dir, "main.conf", "<conf.d>\n")

	conf, _, err := LoadConfig([]string{main}, nil)
	require.NoError(t, err)
	// later file wins because it is parsed second
	assert.Equal(t, "later", conf.S.Action)
}

func TestIncludeMissingLiteralFatal(t *testing.T) {
	dir := tempDir(t)
	main := writeRules(t, dir, "main.conf", "<missing.conf>\n")

	_, _, err := LoadConfig([]string{main}, nil)
	require.Error(t, err)
}

func TestIncludeMissingGlobSilent(t *testing.T) {
	dir := tempDir(t)
	main := writeRules(t, dir, "main.conf", "<conf.d/*.conf>\nset threshold 6\n")

	conf, _, err := LoadConfig([]string{main}, nil)
	require.NoError(t, err)
	assert.Equal(t, 6, conf.S.Threshold)
}

func TestIncludeOnlyOnce(t *testing.T) {
	dir := tempDir(t)
	writeRules(t, dir, "loop.conf", "<loop.conf>\nset threshold 9\n")
	main := writeRules(t, dir, "main.conf", "<loop.conf>\n<loop.conf>\n")

	conf, _, err := LoadConfig([]string{main}, nil)
	require.NoError(t, err)
	assert.Equal(t, 9, conf.S.Threshold)
}

func TestCommentsAndBlanks(t *testing.T) {
	dir := tempDir(t)
	file := writeRules(t, dir, "main.conf", `
# full line comment

set threshold 3 # trailing comment
`)

	conf, _, err := LoadConfig([]string{file}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, conf.S.Threshold)
}
