package cookies

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// chromeEpochOffsetSeconds is the distance between 1601-01-01 and the
// Unix epoch.
const chromeEpochOffsetSeconds int64 = 11_644_473_600

// chromeToTime converts microseconds since 1601-01-01. Zero means session.
func chromeToTime(usec int64) time.Time {
	if usec <= 0 {
		return time.Time{}
	}
	return time.Unix(usec/1_000_000-chromeEpochOffsetSeconds, 0)
}

type rowScanner func(rows *sql.Rows) (Cookie, error)

const firefoxQuery = `SELECT name, value, host, path, expiry, isSecure, isHttpOnly, sameSite FROM moz_cookies ORDER BY host, path, name`

func scanFirefox(rows *sql.Rows) (Cookie, error) {
	var (
		c                              Cookie
		expiry                         int64
		secure, httpOnly, sameSiteFlag int
	)
	if err := rows.Scan(&c.Name, &c.Value, &c.Domain, &c.Path, &expiry, &secure, &httpOnly, &sameSiteFlag); err != nil {
		return c, err
	}
	if expiry > 0 {
		c.Expiry = time.Unix(expiry, 0)
	}
	c.Secure = secure != 0
	c.HttpOnly = httpOnly != 0
	c.SameSite = sameSiteFromStore(sameSiteFlag)
	return c, nil
}

// Encrypted Chrome values have an empty value column and are skipped.
const chromeQuery = `SELECT name, value, host_key, path, expires_utc, is_secure, is_httponly, samesite FROM cookies WHERE value != '' ORDER BY host_key, path, name`

func scanChrome(rows *sql.Rows) (Cookie, error) {
	var (
		c                              Cookie
		expires                        int64
		secure, httpOnly, sameSiteFlag int
	)
	if err := rows.Scan(&c.Name, &c.Value, &c.Domain, &c.Path, &expires, &secure, &httpOnly, &sameSiteFlag); err != nil {
		return c, err
	}
	c.Expiry = chromeToTime(expires)
	c.Secure = secure != 0
	c.HttpOnly = httpOnly != 0
	c.SameSite = sameSiteFromStore(sameSiteFlag)
	return c, nil
}

// readSQLite runs query against a copy of a browser database. The copy
// must not be in use by the browser.
func readSQLite(dbPath, query string, scan rowScanner, domain string, now time.Time) ([]Cookie, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?immutable=1", dbPath))
	if err != nil {
		return nil, fmt.Errorf("opening cookie database: %w", err)
	}
	defer db.Close()

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("querying cookie database: %w", err)
	}
	defer rows.Close()

	var out []Cookie
	for rows.Next() {
		c, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning cookie row: %w", err)
		}
		if !matchesDomain(c.Domain, domain) {
			continue
		}
		if !c.Session() && c.Expiry.Before(now) {
			continue
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cookie rows: %w", err)
	}
	return out, nil
}

// detectSQLiteFormat tells Firefox and Chrome databases apart by their
// cookie table.
func detectSQLiteFormat(path string) (Format, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return FormatUnknown, fmt.Errorf("opening sqlite database: %w", err)
	}
	defer db.Close()

	var name string
	if err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='moz_cookies'`).Scan(&name); err == nil {
		return FormatFirefox, nil
	}
	if err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='cookies'`).Scan(&name); err == nil {
		return FormatChrome, nil
	}
	return FormatUnknown, errUnsupportedSchema
}
