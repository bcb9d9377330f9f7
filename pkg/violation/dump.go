package violation

import (
	"io"
	"sort"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/olekukonko/tablewriter"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// expirationFormat renders the human-readable expiration column.
const expirationFormat = "2006-01-02 15:04:05"

// Dump renders every live entry as a table: one row per entry with its
// sorted argument map and a human-readable expiration.
func (q *Queue) Dump(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Key", "Expiration", "Arguments"})

	for _, entry := range q.Entries() {
		table.Append([]string{
			entry.VKey,
			time.Unix(entry.ExpireAt, 0).Format(expirationFormat),
			formatArgs(entry.Args),
		})
	}
	table.Render()
}

// DumpJSON writes one JSON object per live entry, argument map plus the
// expiration and id fields.
func (q *Queue) DumpJSON(w io.Writer) error {
	for _, entry := range q.Entries() {
		doc := make(map[string]string, len(entry.Args)+3)
		for key, value := range entry.Args {
			doc[key] = value
		}
		doc["id"] = entry.ID
		doc["vkey"] = entry.VKey
		doc["expiration"] = time.Unix(entry.ExpireAt, 0).Format(expirationFormat)

		out, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		if _, err := w.Write(append(out, '\n')); err != nil {
			return err
		}
	}
	return nil
}

func formatArgs(args map[string]string) string {
	keys := make([]string, 0, len(args))
	for key := range args {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := ""
	for i, key := range keys {
		if i > 0 {
			out += " "
		}
		out += key + "=" + args[key]
	}
	return out
}
