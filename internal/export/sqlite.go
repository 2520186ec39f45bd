package export

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// turnNamespace 轮次 ID 使用 UUIDv5，同样的输入每次导出得到同样的 ID
var turnNamespace = uuid.MustParse("6f1c2d3e-8a4b-4c5d-9e6f-7a8b9c0d1e2f")

const schema = `
CREATE TABLE subjects (
	position INTEGER PRIMARY KEY,
	name     TEXT NOT NULL UNIQUE,
	is_main  INTEGER NOT NULL
);
CREATE TABLE turns (
	id            TEXT PRIMARY KEY,
	seq           INTEGER NOT NULL,
	sender        TEXT NOT NULL,
	start_at      TEXT NOT NULL,
	end_at        TEXT NOT NULL,
	text          TEXT NOT NULL,
	message_count INTEGER NOT NULL
);
CREATE TABLE messages (
	seq       INTEGER PRIMARY KEY,
	line      INTEGER NOT NULL,
	timestamp TEXT NOT NULL,
	sender    TEXT NOT NULL,
	text      TEXT NOT NULL,
	turn_id   TEXT NOT NULL REFERENCES turns(id)
);
CREATE TABLE pairs (
	seq        INTEGER PRIMARY KEY,
	prompt     TEXT NOT NULL,
	completion TEXT NOT NULL
);
`

// TurnID 轮次的确定性 ID
func TurnID(seq int, sender string, start string) string {
	return uuid.NewSHA1(turnNamespace, []byte(strconv.Itoa(seq)+"|"+sender+"|"+start)).String()
}

// WriteSQLite 一次性写出 SQLite 文件。没有主发送者时 pairs 表为空
func WriteSQLite(ctx context.Context, path string, d Dataset) (Stats, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Stats{}, fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".chat-export-*.db")
	if err != nil {
		return Stats{}, fmt.Errorf("create temp db: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	stats, err := fillSQLite(ctx, tmpPath, d)
	if err != nil {
		os.Remove(tmpPath)
		return Stats{}, fmt.Errorf("export sqlite: %w", err)
	}
	if err := os.Chmod(tmpPath, outputPerm); err != nil {
		os.Remove(tmpPath)
		return Stats{}, fmt.Errorf("chmod output: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return Stats{}, fmt.Errorf("rename output: %w", err)
	}
	return stats, nil
}

func fillSQLite(ctx context.Context, path string, d Dataset) (Stats, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return Stats{}, fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Stats{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return Stats{}, fmt.Errorf("create schema: %w", err)
	}

	for i, name := range d.Subjects {
		isMain := 0
		if d.HasMain && name == d.Main {
			isMain = 1
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO subjects (position, name, is_main) VALUES (?, ?, ?)`,
			i, name, isMain); err != nil {
			return Stats{}, fmt.Errorf("insert subject %q: %w", name, err)
		}
	}

	seq := 0
	for i, t := range d.Turns {
		start := formatTime(t.Start)
		id := TurnID(i, t.Sender, start)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO turns (id, seq, sender, start_at, end_at, text, message_count) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, i, t.Sender, start, formatTime(t.End), t.Text, len(t.Messages)); err != nil {
			return Stats{}, fmt.Errorf("insert turn %d: %w", i, err)
		}
		for _, m := range t.Messages {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO messages (seq, line, timestamp, sender, text, turn_id) VALUES (?, ?, ?, ?, ?, ?)`,
				seq, m.Line, formatTime(m.Timestamp), m.Sender, m.Text, id); err != nil {
				return Stats{}, fmt.Errorf("insert message %d: %w", seq, err)
			}
			seq++
		}
	}

	stats := Stats{Rows: len(d.Turns)}
	if d.HasMain {
		pairs, pstats, err := PromptCompletionPairs(d)
		if err != nil {
			return Stats{}, err
		}
		for i, p := range pairs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO pairs (seq, prompt, completion) VALUES (?, ?, ?)`,
				i, p.Prompt, p.Completion); err != nil {
				return Stats{}, fmt.Errorf("insert pair %d: %w", i, err)
			}
		}
		stats.Pairs = pstats.Pairs
		stats.Dropped = pstats.Dropped
	}

	if err := tx.Commit(); err != nil {
		return Stats{}, fmt.Errorf("commit: %w", err)
	}
	return stats, nil
}
