package index

import (
	"database/sql"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"workmesh/internal/util"
)

// statCache caches content hashes keyed by (path, size, mtime) so
// refresh can skip rehashing unchanged task files. It lives next to
// the index projection and may be deleted at any time.
type statCache struct {
	db *sql.DB
}

const statCacheSchema = `
CREATE TABLE IF NOT EXISTS file_cache (
	path TEXT PRIMARY KEY,
	size INTEGER NOT NULL,
	mtime INTEGER NOT NULL,
	hash TEXT NOT NULL
);
`

func openStatCache(indexDir string) (*statCache, error) {
	if err := os.MkdirAll(indexDir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", filepath.Join(indexDir, "cache.db"))
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(statCacheSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &statCache{db: db}, nil
}

func (c *statCache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// hashFor returns the content hash for path, reading and hashing only
// when the cached stat no longer matches. A nil cache always hashes.
func (c *statCache) hashFor(path string, info os.FileInfo, read func() ([]byte, error)) (string, error) {
	size := info.Size()
	mtime := info.ModTime().UnixNano()

	if c != nil {
		var cachedSize, cachedMtime int64
		var cachedHash string
		err := c.db.QueryRow(
			"SELECT size, mtime, hash FROM file_cache WHERE path = ?",
			path,
		).Scan(&cachedSize, &cachedMtime, &cachedHash)
		if err == nil && cachedSize == size && cachedMtime == mtime {
			return cachedHash, nil
		}
	}

	content, err := read()
	if err != nil {
		return "", err
	}
	hash := util.Blake3HashHex(content)
	if c != nil {
		c.db.Exec(
			"INSERT OR REPLACE INTO file_cache (path, size, mtime, hash) VALUES (?, ?, ?, ?)",
			path, size, mtime, hash,
		)
	}
	return hash, nil
}

func (c *statCache) remove(path string) {
	if c != nil {
		c.db.Exec("DELETE FROM file_cache WHERE path = ?", path)
	}
}
