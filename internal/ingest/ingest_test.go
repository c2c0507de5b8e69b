package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/edubot/tutord/internal/knowledge"
	"github.com/edubot/tutord/internal/testutil"
)

type execCall struct {
	sql  string
	args []any
}

// fakeDB records every Exec and can fail calls by SQL prefix.
type fakeDB struct {
	calls   []execCall
	failOn  string
	failErr error
}

func (db *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.calls = append(db.calls, execCall{sql: sql, args: args})
	if db.failOn != "" && strings.HasPrefix(sql, db.failOn) {
		return pgconn.CommandTag{}, db.failErr
	}
	return pgconn.CommandTag{}, nil
}

func (db *fakeDB) inserts() []execCall {
	var out []execCall
	for _, c := range db.calls {
		if strings.HasPrefix(c.sql, "INSERT") {
			out = append(out, c)
		}
	}
	return out
}

func newTestIngester(t *testing.T, db Execer, emb *testutil.MockEmbedder) *Ingester {
	t.Helper()

	g := genkit.Init(context.Background())
	in, err := New(Config{
		DB:       db,
		Embedder: emb.Register(g),
		Logger:   testutil.DiscardLogger(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return in
}

func writeDoc(t *testing.T, dir, relPath, content string) {
	t.Helper()
	path := filepath.Join(dir, relPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New() with empty config, want error")
	}

	g := genkit.Init(context.Background())
	emb := testutil.NewMockEmbedder(int(knowledge.VectorDimension)).Register(g)
	if _, err := New(Config{Embedder: emb}); err == nil {
		t.Error("New() without db, want error")
	}
	if _, err := New(Config{DB: &fakeDB{}}); err == nil {
		t.Error("New() without embedder, want error")
	}
}

func TestRunIndexesMarkdownTree(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "intro.md", "# Introduction to Robotics\n\nA robot senses, plans, and acts.")
	writeDoc(t, dir, "control/pid.md", "# PID Control\n\nThe proportional term reacts to present error.")
	writeDoc(t, dir, "notes.txt", "not a course document")
	writeDoc(t, dir, ".draft.md", "# Unfinished")

	db := &fakeDB{}
	in := newTestIngester(t, db, testutil.NewMockEmbedder(int(knowledge.VectorDimension)))

	res, err := in.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.FilesIndexed != 2 {
		t.Errorf("FilesIndexed = %d, want 2", res.FilesIndexed)
	}
	if res.FilesSkipped != 2 {
		t.Errorf("FilesSkipped = %d, want 2", res.FilesSkipped)
	}
	if res.FilesFailed != 0 {
		t.Errorf("FilesFailed = %d, want 0", res.FilesFailed)
	}
	if res.ChunksWritten != 2 {
		t.Errorf("ChunksWritten = %d, want 2", res.ChunksWritten)
	}

	inserts := db.inserts()
	if len(inserts) != 2 {
		t.Fatalf("got %d INSERTs, want 2", len(inserts))
	}

	byURL := map[string]execCall{}
	for _, c := range inserts {
		byURL[c.args[1].(string)] = c
	}
	pid, ok := byURL["/docs/control/pid"]
	if !ok {
		t.Fatalf("no insert for /docs/control/pid, got %v", byURL)
	}
	if got := pid.args[0].(string); got != "PID Control" {
		t.Errorf("chapter_title = %q, want %q", got, "PID Control")
	}
	if got := pid.args[2].(string); !strings.Contains(got, "proportional term") {
		t.Errorf("content = %q, want passage text", got)
	}
	vec, ok := pid.args[3].(pgvector.Vector)
	if !ok {
		t.Fatalf("embedding arg is %T, want pgvector.Vector", pid.args[3])
	}
	if got := len(vec.Slice()); got != int(knowledge.VectorDimension) {
		t.Errorf("embedding width = %d, want %d", got, knowledge.VectorDimension)
	}
}

func TestRunReplacesPreviousChunks(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "kinematics.md", "# Kinematics\n\nForward kinematics maps joint angles to pose.")

	db := &fakeDB{}
	in := newTestIngester(t, db, testutil.NewMockEmbedder(int(knowledge.VectorDimension)))

	if _, err := in.Run(context.Background(), dir); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(db.calls) < 2 {
		t.Fatalf("got %d calls, want DELETE then INSERT", len(db.calls))
	}
	first := db.calls[0]
	if !strings.HasPrefix(first.sql, "DELETE FROM textbook_chunks") {
		t.Errorf("first statement = %q, want DELETE", first.sql)
	}
	if got := first.args[0].(string); got != "/docs/kinematics" {
		t.Errorf("DELETE doc_url = %q, want /docs/kinematics", got)
	}
}

func TestRunChunksLongDocuments(t *testing.T) {
	section := strings.Repeat("Sensors convert physical quantities into signals. ", 40)
	content := "# Sensing\n\n## Encoders\n\n" + section + "\n\n## Lidar\n\n" + section

	dir := t.TempDir()
	writeDoc(t, dir, "sensing.md", content)

	db := &fakeDB{}
	in := newTestIngester(t, db, testutil.NewMockEmbedder(int(knowledge.VectorDimension)))

	res, err := in.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ChunksWritten < 2 {
		t.Fatalf("ChunksWritten = %d, want at least 2", res.ChunksWritten)
	}
	for _, c := range db.inserts() {
		if got := c.args[0].(string); got != "Sensing" {
			t.Errorf("chapter_title = %q, want Sensing on every chunk", got)
		}
		if n := len([]rune(c.args[2].(string))); n > DefaultChunkSize {
			t.Errorf("chunk length = %d runes, exceeds %d", n, DefaultChunkSize)
		}
	}
}

func TestRunContinuesPastBrokenFile(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "empty.md", "\n\n\n")
	writeDoc(t, dir, "ok.md", "# Actuators\n\nMotors turn current into torque.")

	db := &fakeDB{}
	in := newTestIngester(t, db, testutil.NewMockEmbedder(int(knowledge.VectorDimension)))

	res, err := in.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.FilesFailed != 1 {
		t.Errorf("FilesFailed = %d, want 1 (empty document)", res.FilesFailed)
	}
	if res.FilesIndexed != 1 {
		t.Errorf("FilesIndexed = %d, want 1", res.FilesIndexed)
	}
}

func TestRunCountsDatabaseFailures(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "a.md", "# A\n\ncontent a")
	writeDoc(t, dir, "b.md", "# B\n\ncontent b")

	db := &fakeDB{failOn: "INSERT", failErr: errors.New("connection refused")}
	in := newTestIngester(t, db, testutil.NewMockEmbedder(int(knowledge.VectorDimension)))

	res, err := in.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.FilesFailed != 2 {
		t.Errorf("FilesFailed = %d, want 2", res.FilesFailed)
	}
	if res.ChunksWritten != 0 {
		t.Errorf("ChunksWritten = %d, want 0", res.ChunksWritten)
	}
}

func TestRunMissingDirectory(t *testing.T) {
	db := &fakeDB{}
	in := newTestIngester(t, db, testutil.NewMockEmbedder(int(knowledge.VectorDimension)))

	if _, err := in.Run(context.Background(), filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("Run() on missing directory, want error")
	}
}

func TestDocURL(t *testing.T) {
	tests := []struct {
		relPath string
		want    string
	}{
		{"intro.md", "/docs/intro"},
		{"control/pid.md", "/docs/control/pid"},
		{"perception/slam.mdx", "/docs/perception/slam"},
	}
	for _, tt := range tests {
		if got := DocURL(tt.relPath); got != tt.want {
			t.Errorf("DocURL(%q) = %q, want %q", tt.relPath, got, tt.want)
		}
	}
}
