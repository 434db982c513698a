package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"

	"gigchat/internal/model"
)

func TestMain(m *testing.M) {
	// プロジェクトルートの.envを読み込み
	_ = godotenv.Load("../../.env")
	os.Exit(m.Run())
}

// setupTestDB テスト用データベース接続をセットアップ
func setupTestDB(t *testing.T) *MySQL {
	t.Helper()

	host := os.Getenv("DB_HOST")
	if host == "" {
		t.Skip("Skipping: DB_HOST not set")
	}

	port := os.Getenv("DB_PORT")
	if port == "" {
		port = "3306"
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		os.Getenv("DB_USER"), os.Getenv("DB_PASSWORD"), host, port, os.Getenv("DB_NAME"))

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("Skipping: could not connect to test database: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("Skipping: could not ping test database: %v", err)
	}

	s := NewMySQL(db, nil)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Failed to create test table: %v", err)
	}
	// テストデータをクリア
	db.Exec("DELETE FROM messages")

	t.Cleanup(func() {
		db.Exec("DELETE FROM messages")
		db.Close()
	})
	return s
}

// stepClock 呼ばれるたびに1秒進む時計
func stepClock() func() time.Time {
	t := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func text(from, to, body string) model.Message {
	return model.Message{SenderUsername: from, ReceiverUsername: to, Body: body}
}

// exerciseStore 両実装で共通の振る舞い
func exerciseStore(t *testing.T, s MessageStore) {
	ctx := context.Background()

	first, err := s.Save(ctx, text("Alice", "Bob", "m1"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if first.ID == "" || first.ConversationID == "" || !first.HasConversationID || first.CreatedAt == nil {
		t.Errorf("Server fields not set: %+v", first)
	}

	reply := text("Bob", "Alice", "m2")
	reply.ConversationID = first.ConversationID
	saved, err := s.Save(ctx, reply)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if saved.ConversationID != first.ConversationID {
		t.Error("Existing conversation id must be kept")
	}

	for i := 3; i <= 5; i++ {
		if _, err := s.Save(ctx, text("Alice", "Bob", fmt.Sprintf("m%d", i))); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}
	if _, err := s.Save(ctx, text("Carol", "Bob", "other thread")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := s.Save(ctx, text("Alice", "Bob", "  ")); !errors.Is(err, model.ErrEmptyMessage) {
		t.Errorf("Expected ErrEmptyMessage, got %v", err)
	}

	page1, err := s.List(ctx, "Bob", "Alice", 1, 3)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if got := bodies(page1); got != "m3 m4 m5 " {
		t.Errorf("Expected newest window oldest-first, got %s", got)
	}

	page2, _ := s.List(ctx, "Alice", "Bob", 2, 3)
	if got := bodies(page2); got != "m1 m2 " {
		t.Errorf("Unexpected second page %s", got)
	}

	page3, _ := s.List(ctx, "Alice", "Bob", 3, 3)
	if len(page3) != 0 {
		t.Errorf("Past the end should be empty, got %d", len(page3))
	}

	n, err := s.MarkRead(ctx, "Alice", "Bob")
	if err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	if n != 4 {
		t.Errorf("Expected 4 messages marked, got %d", n)
	}
	if n, _ := s.MarkRead(ctx, "Alice", "Bob"); n != 0 {
		t.Errorf("Second MarkRead should change nothing, got %d", n)
	}

	all, _ := s.List(ctx, "Alice", "Bob", 1, 10)
	for _, m := range all {
		if m.SenderUsername == "Bob" && m.IsRead {
			t.Error("Messages in the other direction must stay unread")
		}
	}
}

func bodies(msgs []model.Message) string {
	s := ""
	for _, m := range msgs {
		s += m.Body + " "
	}
	return s
}

// TestMemory メモリ実装
func TestMemory(t *testing.T) {
	s := NewMemory()
	s.now = stepClock()
	exerciseStore(t, s)
}

// TestMySQL MySQL実装（DB_HOST未設定ならスキップ）
func TestMySQL(t *testing.T) {
	s := setupTestDB(t)
	s.now = stepClock()
	exerciseStore(t, s)
}

// TestMySQL_Offer オファーはJSONとして往復する
func TestMySQL_Offer(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	msg := text("Alice", "Bob", "Here's your custom offer")
	msg.HasOffer = true
	msg.Offer = &model.Offer{GigTitle: "Logo", Price: 40, DeliveryInDays: 3}
	if _, err := s.Save(ctx, msg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := s.List(ctx, "Alice", "Bob", 1, 10)
	if err != nil || len(got) != 1 {
		t.Fatalf("List failed: %v (%d rows)", err, len(got))
	}
	if got[0].Offer == nil || got[0].Offer.Price != 40 {
		t.Errorf("Offer lost: %+v", got[0].Offer)
	}
}

// TestDirectory ユーザー名は大文字小文字を区別しない
func TestDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seed.json")
	seed := `{"buyers":[{"_id":"b1","username":"Bob","profilePicture":"bob.png"}],"gigs":[{"_id":"g1","sellerId":"s1","title":"Logo design","price":40}]}`
	if err := os.WriteFile(path, []byte(seed), 0o600); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadSeed(path)
	if err != nil {
		t.Fatalf("LoadSeed failed: %v", err)
	}
	d := NewDirectory(loaded)

	b, err := d.Buyer("bob")
	if err != nil || b.ProfilePicture != "bob.png" {
		t.Errorf("Expected Bob, got %+v (%v)", b, err)
	}
	if _, err := d.Buyer("nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if g, err := d.Gig("g1"); err != nil || g.Title != "Logo design" {
		t.Errorf("Expected gig g1, got %+v (%v)", g, err)
	}
	if _, err := d.Gig("649db27404c0c7b7d4b112ec"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	if _, err := LoadSeed(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("Expected an error for a missing seed file")
	}
}
