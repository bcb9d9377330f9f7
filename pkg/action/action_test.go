package action

import (
	"bytes"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDispatcher() (*Dispatcher, *bytes.Buffer, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.Level = log.DebugLevel
	out := &bytes.Buffer{}
	d := &Dispatcher{Log: logger, Out: out}
	return d, out, hook
}

func TestParseType(t *testing.T) {
	for token, want := range map[string]Type{
		"print": Print, "exec": Exec, "exit": Exit, "null": Null,
	} {
		kind, ok := ParseType(token)
		require.True(t, ok, token)
		assert.Equal(t, want, kind)
	}
	_, ok := ParseType("spawn")
	assert.False(t, ok)
}

func TestDispatchPrint(t *testing.T) {
	d, out, hook := testDispatcher()

	a := &Action{Name: "note", Type: Print, Args: []string{"seen", "%(client)"}}
	d.Dispatch(a, map[string]string{"client": "1.2.3.4"})

	assert.Equal(t, "seen 1.2.3.4\n", out.String())
	require.Len(t, hook.Entries, 1)
	assert.Equal(t, log.InfoLevel, hook.LastEntry().Level)
	assert.Equal(t, "seen 1.2.3.4", hook.LastEntry().Message)
}

func TestDispatchNull(t *testing.T) {
	d, out, hook := testDispatcher()

	d.Dispatch(&Action{Name: "nothing", Type: Null}, nil)
	assert.Empty(t, out.String())
	assert.Empty(t, hook.Entries)
}

func TestDispatchExit(t *testing.T) {
	d, _, hook := testDispatcher()
	status := -1
	d.OnExit = func(s int) { status = s }

	a := &Action{Name: "bail", Type: Exit, Args: []string{"3", "going", "down"}}
	d.Dispatch(a, nil)

	assert.Equal(t, 3, status)
	require.Len(t, hook.Entries, 1)
	assert.Equal(t, "going down", hook.LastEntry().Message)
}

func TestDispatchExitDefaultStatus(t *testing.T) {
	d, _, _ := testDispatcher()
	status := -1
	d.OnExit = func(s int) { status = s }

	d.Dispatch(&Action{Name: "bail", Type: Exit}, nil)
	assert.Equal(t, 0, status)
}

func TestDispatchExecDryRun(t *testing.T) {
	d, out, _ := testDispatcher()
	d.DryRun = true

	a := &Action{Name: "block", Type: Exec, Args: []string{"iptables", "-s", "%(client)"}}
	d.Dispatch(a, map[string]string{"client": "1.2.3.4"})

	// dry-run prepends echo, so the command line itself lands on Out
	assert.Equal(t, "iptables -s 1.2.3.4\n", out.String())
}

func TestDispatchExecFailureLogged(t *testing.T) {
	d, _, hook := testDispatcher()
	d.Debug = true

	a := &Action{Name: "broken", Type: Exec, Args: []string{"false"}}
	d.Dispatch(a, map[string]string{"client": "1.2.3.4"})

	require.NotEmpty(t, hook.Entries)
	entry := hook.LastEntry()
	assert.Equal(t, log.ErrorLevel, entry.Level)
	assert.Equal(t, "broken", entry.Data["action"])
	assert.NotNil(t, entry.Data["bindings"])
}

func TestDispatchExecEmptyArgv(t *testing.T) {
	d, _, hook := testDispatcher()

	d.Dispatch(&Action{Name: "empty", Type: Exec}, nil)
	require.Len(t, hook.Entries, 1)
	assert.Equal(t, log.ErrorLevel, hook.LastEntry().Level)
}
