package whitelist

import (
	"net"
	"strings"
	"sync"
)

type (
	//Matcher evaluates a client address against an ordered set of whitelists
	Matcher struct {
		Lists []*List

		mutex sync.Mutex
		cache map[string]Result
	}

	//Result is the memoized outcome of one client lookup
	Result struct {
		Hit     bool
		Silent  bool
		Classes []string
		Vars    map[string]string // vars of the first matching list
	}
)

// silentAddresses short-circuit evaluation entirely: no action, no message.
var silentAddresses = map[string]bool{
	"127.0.0.1": true,
	"::1":       true,
}

// NewMatcher creates a matcher over the given whitelists.
func NewMatcher(lists []*List) *Matcher {
	return &Matcher{
		Lists: lists,
		cache: make(map[string]Result),
	}
}

// Plausible reports whether the client string looks like a numeric address
// literal. Anything containing a letter outside the hex range skips
// whitelist evaluation entirely; hostnames and scoped IPv6 addresses still
// reach the trigger stage but are never whitelisted.
func Plausible(client string) bool {
	for i := 0; i < len(client); i++ {
		c := client[i]
		if (c >= 'G' && c <= 'Z') || (c >= 'g' && c <= 'z') {
			return false
		}
	}
	return true
}

// Lookup resolves the whitelist status of a client address. The first
// result per client is cached until ClearCache.
func (m *Matcher) Lookup(client string) Result {
	if silentAddresses[client] {
		return Result{Hit: true, Silent: true}
	}
	if !Plausible(client) {
		return Result{}
	}

	m.mutex.Lock()
	cached, ok := m.cache[client]
	m.mutex.Unlock()
	if ok {
		return cached
	}

	result := m.lookup(client)

	m.mutex.Lock()
	m.cache[client] = result
	m.mutex.Unlock()
	return result
}

func (m *Matcher) lookup(client string) Result {
	ip := net.ParseIP(client)
	if ip == nil {
		return Result{}
	}
	v6 := strings.Contains(client, ":")

	var result Result
	for _, list := range m.Lists {
		classes, ok := list.Match(ip, v6)
		if !ok {
			continue
		}
		if !result.Hit {
			result.Hit = true
			result.Vars = list.Vars
		}
		for _, class := range classes {
			result.Classes = append(result.Classes, class)
		}
	}
	return result
}

// ClearCache drops every memoized lookup. Called on date or timezone
// rollover and on ruleset reload.
func (m *Matcher) ClearCache() {
	m.mutex.Lock()
	m.cache = make(map[string]Result)
	m.mutex.Unlock()
}

// Class renders the matched classes for message templating.
func (r Result) Class() string {
	return strings.Join(r.Classes, ",")
}
