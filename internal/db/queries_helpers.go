package db

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// sqliteTime is sortable as text, which ORDER BY created_at relies on.
const sqliteTime = "2006-01-02 15:04:05.000000000"

// rebind rewrites ? placeholders to $N for Postgres.
func (d *DB) rebind(query string) string {
	if d.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d *DB) timeArg(t time.Time) any {
	if d.dialect == dialectPostgres {
		return t.UTC()
	}
	return t.UTC().Format(sqliteTime)
}

func parseTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		return time.ParseInLocation(sqliteTime, t, time.UTC)
	case []byte:
		return time.ParseInLocation(sqliteTime, string(t), time.UTC)
	}
	return time.Time{}, fmt.Errorf("unexpected time value %T", v)
}

// nextCreatedAt returns a creation time that never goes backwards within this
// process, even if the wall clock does.
func (d *DB) nextCreatedAt() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now().UTC()
	if now.Before(d.lastCreated) {
		now = d.lastCreated
	}
	d.lastCreated = now
	return now
}
