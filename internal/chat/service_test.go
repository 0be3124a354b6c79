package chat

import (
	"context"
	"fmt"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/mzhao28/medichat/internal/ai"
)

type recordingProvider struct {
	last []ai.Message
}

func (p *recordingProvider) Chat(ctx context.Context, messages []ai.Message) (string, error) {
	_ = ctx
	p.last = append([]ai.Message(nil), messages...)
	return "ok", nil
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Conversation{}, &Message{}, &RecentQuery{}, &FavoriteQuery{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB) (*Service, *recordingProvider) {
	t.Helper()
	prov := &recordingProvider{}
	reg := ai.NewRegistry()
	reg.Register("fake", func(ctx context.Context, model string) (ai.Provider, error) {
		_, _ = ctx, model
		return prov, nil
	})
	return NewService(NewRepo(db), reg, "fake", "default", 20), prov
}

func TestSendMessage_WritesUserAndAssistant(t *testing.T) {
	db := openTestDB(t)
	svc, _ := newTestService(t, db)

	convID, reply, err := svc.SendMessage(context.Background(), 1, "", "Hello")
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	if reply != "ok" {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if convID == "" {
		t.Fatalf("expected a conversation to be created")
	}

	var msgs []Message
	if err := db.Where("conversation_id = ?", convID).
		Order("id ASC").
		Find(&msgs).Error; err != nil {
		t.Fatalf("query messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[0].Content != "Hello" {
		t.Fatalf("unexpected user msg: role=%q content=%q", msgs[0].Role, msgs[0].Content)
	}
	if msgs[1].Role != RoleAssistant || msgs[1].Content != "ok" {
		t.Fatalf("unexpected assistant msg: role=%q content=%q", msgs[1].Role, msgs[1].Content)
	}
}

func TestSendMessage_RejectsForeignConversation(t *testing.T) {
	db := openTestDB(t)
	svc, _ := newTestService(t, db)

	conv, err := svc.CreateConversation(context.Background(), 21, "")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	if _, _, err := svc.SendMessage(context.Background(), 22, conv.ConversationID, "hi"); err != gorm.ErrRecordNotFound {
		t.Fatalf("expected record-not-found for foreign conversation, got %v", err)
	}
}

func TestAppendMessage_BumpsConversation(t *testing.T) {
	db := openTestDB(t)
	svc, _ := newTestService(t, db)

	conv, err := svc.CreateConversation(context.Background(), 2, "")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	before := conv.LastUpdated
	time.Sleep(5 * time.Millisecond)

	if _, err := svc.AppendMessage(context.Background(), 2, conv.ConversationID, RoleUser, "what causes fever"); err != nil {
		t.Fatalf("append message: %v", err)
	}

	reloaded, err := NewRepo(db).GetConversation(context.Background(), conv.ConversationID)
	if err != nil {
		t.Fatalf("reload conversation: %v", err)
	}
	if !reloaded.LastUpdated.After(before) {
		t.Fatalf("expected last_updated bump, before=%v after=%v", before, reloaded.LastUpdated)
	}

	var rq []RecentQuery
	if err := db.Where("user_id = ?", uint64(2)).Find(&rq).Error; err != nil {
		t.Fatalf("load recent queries: %v", err)
	}
	if len(rq) != 1 || rq[0].Query != "what causes fever" || rq[0].ConversationID != conv.ConversationID {
		t.Fatalf("unexpected recent queries: %+v", rq)
	}
}

func TestAppendMessage_AssistantSkipsRecentQueries(t *testing.T) {
	db := openTestDB(t)
	svc, _ := newTestService(t, db)

	conv, err := svc.CreateConversation(context.Background(), 12, "")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	if _, err := svc.AppendMessage(context.Background(), 12, conv.ConversationID, RoleAssistant, "rest and fluids"); err != nil {
		t.Fatalf("append assistant message: %v", err)
	}

	var cnt int64
	if err := db.Model(&RecentQuery{}).Where("user_id = ?", uint64(12)).Count(&cnt).Error; err != nil {
		t.Fatalf("count recent queries: %v", err)
	}
	if cnt != 0 {
		t.Fatalf("assistant message must not create recent queries, got %d", cnt)
	}
}

func TestRecentQueries_PrunedToTen(t *testing.T) {
	db := openTestDB(t)
	svc, _ := newTestService(t, db)

	conv, err := svc.CreateConversation(context.Background(), 3, "")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	for i := 0; i < 11; i++ {
		if _, err := svc.AppendMessage(context.Background(), 3, conv.ConversationID, RoleUser, fmt.Sprintf("q%d", i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	queries, err := svc.ListRecentQueries(context.Background(), 3, 0)
	if err != nil {
		t.Fatalf("list recent queries: %v", err)
	}
	if len(queries) != RecentQueryKeep {
		t.Fatalf("expected %d recent queries, got %d", RecentQueryKeep, len(queries))
	}

	// oldest (q0) evicted, newest first
	if queries[0].Query != "q10" {
		t.Fatalf("expected q10 first, got %q", queries[0].Query)
	}
	for _, q := range queries {
		if q.Query == "q0" {
			t.Fatalf("q0 should have been evicted")
		}
	}

	var cnt int64
	if err := db.Model(&RecentQuery{}).Where("user_id = ?", uint64(3)).Count(&cnt).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if cnt != RecentQueryKeep {
		t.Fatalf("expected %d rows in store, got %d", RecentQueryKeep, cnt)
	}
}

func TestRecentQueries_ReaskPromotes(t *testing.T) {
	db := openTestDB(t)
	svc, _ := newTestService(t, db)

	conv, err := svc.CreateConversation(context.Background(), 4, "")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := svc.AppendMessage(context.Background(), 4, conv.ConversationID, RoleUser, fmt.Sprintf("q%d", i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	// re-ask q1: no new row, promoted to most recent
	if _, err := svc.AppendMessage(context.Background(), 4, conv.ConversationID, RoleUser, "q1"); err != nil {
		t.Fatalf("re-append q1: %v", err)
	}

	queries, err := svc.ListRecentQueries(context.Background(), 4, 0)
	if err != nil {
		t.Fatalf("list recent queries: %v", err)
	}
	if len(queries) != 5 {
		t.Fatalf("expected 5 recent queries, got %d", len(queries))
	}
	if queries[0].Query != "q1" {
		t.Fatalf("expected q1 promoted to most recent, got %q", queries[0].Query)
	}
}

func TestGetConversationHistory_AscendingAcrossInterleaving(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	svc, _ := newTestService(t, db)

	convA, err := svc.CreateConversation(context.Background(), 5, "a")
	if err != nil {
		t.Fatalf("create conversation a: %v", err)
	}
	convB, err := svc.CreateConversation(context.Background(), 5, "b")
	if err != nil {
		t.Fatalf("create conversation b: %v", err)
	}

	base := time.Now().Add(-time.Hour)
	// insert out of order, interleaved across conversations
	inserts := []struct {
		conv    string
		content string
		offset  time.Duration
	}{
		{convA.ConversationID, "third", 3 * time.Minute},
		{convB.ConversationID, "other-1", 90 * time.Second},
		{convA.ConversationID, "first", 1 * time.Minute},
		{convB.ConversationID, "other-2", 4 * time.Minute},
		{convA.ConversationID, "second", 2 * time.Minute},
	}
	for _, in := range inserts {
		if err := repo.AppendMessage(context.Background(), &Message{
			UserID:         5,
			ConversationID: in.conv,
			Role:           RoleUser,
			Content:        in.content,
			Timestamp:      base.Add(in.offset),
		}); err != nil {
			t.Fatalf("append %q: %v", in.content, err)
		}
	}

	history, err := svc.GetConversationHistory(context.Background(), 5, convA.ConversationID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(history))
	}
	want := []string{"first", "second", "third"}
	for i, w := range want {
		if history[i].Content != w {
			t.Fatalf("position %d: expected %q, got %q", i, w, history[i].Content)
		}
	}
	for i := 1; i < len(history); i++ {
		if history[i].Timestamp.Before(history[i-1].Timestamp) {
			t.Fatalf("history not ascending at %d", i)
		}
	}
}

func TestToggleFavoriteAndTitle(t *testing.T) {
	db := openTestDB(t)
	svc, _ := newTestService(t, db)

	conv, err := svc.CreateConversation(context.Background(), 6, "")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	updated, err := svc.ToggleFavoriteConversation(context.Background(), conv.ConversationID)
	if err != nil || !updated {
		t.Fatalf("toggle: updated=%v err=%v", updated, err)
	}
	reloaded, err := NewRepo(db).GetConversation(context.Background(), conv.ConversationID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reloaded.IsFavorite {
		t.Fatalf("expected is_favorite=true after toggle")
	}

	updated, err = svc.ToggleFavoriteConversation(context.Background(), conv.ConversationID)
	if err != nil || !updated {
		t.Fatalf("second toggle: updated=%v err=%v", updated, err)
	}
	reloaded, _ = NewRepo(db).GetConversation(context.Background(), conv.ConversationID)
	if reloaded.IsFavorite {
		t.Fatalf("expected is_favorite=false after second toggle")
	}

	if updated, err := svc.ToggleFavoriteConversation(context.Background(), "missing"); err != nil || updated {
		t.Fatalf("missing id: expected updated=false, got updated=%v err=%v", updated, err)
	}

	if updated, err := svc.UpdateConversationTitle(context.Background(), conv.ConversationID, "Fever questions"); err != nil || !updated {
		t.Fatalf("update title: updated=%v err=%v", updated, err)
	}
	reloaded, _ = NewRepo(db).GetConversation(context.Background(), conv.ConversationID)
	if reloaded.Title != "Fever questions" {
		t.Fatalf("expected new title, got %q", reloaded.Title)
	}

	if updated, err := svc.UpdateConversationTitle(context.Background(), "missing", "x"); err != nil || updated {
		t.Fatalf("missing id: expected updated=false, got updated=%v err=%v", updated, err)
	}
}

func TestFavoriteQueries(t *testing.T) {
	db := openTestDB(t)
	svc, _ := newTestService(t, db)

	added, err := svc.AddFavoriteQuery(context.Background(), 7, "what is a fever")
	if err != nil || !added {
		t.Fatalf("first add: added=%v err=%v", added, err)
	}
	added, err = svc.AddFavoriteQuery(context.Background(), 7, "what is a fever")
	if err != nil || added {
		t.Fatalf("duplicate add: expected added=false, got added=%v err=%v", added, err)
	}

	var cnt int64
	if err := db.Model(&FavoriteQuery{}).Where("user_id = ?", uint64(7)).Count(&cnt).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if cnt != 1 {
		t.Fatalf("expected exactly 1 favorite row, got %d", cnt)
	}

	time.Sleep(2 * time.Millisecond)
	if _, err := svc.AddFavoriteQuery(context.Background(), 7, "burn first aid"); err != nil {
		t.Fatalf("add second favorite: %v", err)
	}

	list, err := svc.ListFavoriteQueries(context.Background(), 7, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0] != "burn first aid" {
		t.Fatalf("expected most-recent-first listing, got %v", list)
	}

	removed, err := svc.RemoveFavoriteQuery(context.Background(), 7, "what is a fever")
	if err != nil || !removed {
		t.Fatalf("remove: removed=%v err=%v", removed, err)
	}
	removed, err = svc.RemoveFavoriteQuery(context.Background(), 7, "never favorited")
	if err != nil || removed {
		t.Fatalf("remove unknown: expected removed=false, got removed=%v err=%v", removed, err)
	}
}

func TestUserStats(t *testing.T) {
	db := openTestDB(t)
	svc, _ := newTestService(t, db)

	conv, err := svc.CreateConversation(context.Background(), 8, "")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	if _, err := svc.CreateConversation(context.Background(), 8, "second"); err != nil {
		t.Fatalf("create second conversation: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := svc.AppendMessage(context.Background(), 8, conv.ConversationID, RoleUser, fmt.Sprintf("question %d", i)); err != nil {
			t.Fatalf("append user msg %d: %v", i, err)
		}
	}
	for i := 0; i < 2; i++ {
		if _, err := svc.AppendMessage(context.Background(), 8, conv.ConversationID, RoleAssistant, fmt.Sprintf("answer %d", i)); err != nil {
			t.Fatalf("append assistant msg %d: %v", i, err)
		}
	}

	stats, err := svc.GetUserStats(context.Background(), 8)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalConversations != 2 {
		t.Fatalf("expected 2 conversations, got %d", stats.TotalConversations)
	}
	if stats.TotalMessages != 5 {
		t.Fatalf("expected 5 messages, got %d", stats.TotalMessages)
	}
	if stats.MessagesByRole[RoleUser] != 3 || stats.MessagesByRole[RoleAssistant] != 2 {
		t.Fatalf("unexpected role counts: %v", stats.MessagesByRole)
	}

	var activity int64
	for _, n := range stats.RecentActivity {
		activity += n
	}
	if activity != 5 {
		t.Fatalf("expected 5 messages in recent activity, got %d (%v)", activity, stats.RecentActivity)
	}
}

func TestListRecentConversations_OrderAndPreview(t *testing.T) {
	db := openTestDB(t)
	svc, _ := newTestService(t, db)

	convA, err := svc.CreateConversation(context.Background(), 9, "older")
	if err != nil {
		t.Fatalf("create conversation a: %v", err)
	}
	convB, err := svc.CreateConversation(context.Background(), 9, "newer")
	if err != nil {
		t.Fatalf("create conversation b: %v", err)
	}

	if _, err := svc.AppendMessage(context.Background(), 9, convA.ConversationID, RoleUser, "old question"); err != nil {
		t.Fatalf("append a: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	if _, err := svc.AppendMessage(context.Background(), 9, convB.ConversationID, RoleUser, "first question"); err != nil {
		t.Fatalf("append b1: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	if _, err := svc.AppendMessage(context.Background(), 9, convB.ConversationID, RoleAssistant, "an answer"); err != nil {
		t.Fatalf("append b2: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	if _, err := svc.AppendMessage(context.Background(), 9, convB.ConversationID, RoleUser, "follow-up question"); err != nil {
		t.Fatalf("append b3: %v", err)
	}

	convs, err := svc.ListRecentConversations(context.Background(), 9, 5)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(convs))
	}
	if convs[0].ConversationID != convB.ConversationID {
		t.Fatalf("expected most recently updated first, got %q", convs[0].ConversationID)
	}
	// preview is the latest user-role message, not the assistant reply
	if convs[0].LastQuery != "follow-up question" {
		t.Fatalf("unexpected preview: %q", convs[0].LastQuery)
	}
	if convs[1].LastQuery != "old question" {
		t.Fatalf("unexpected preview for older conversation: %q", convs[1].LastQuery)
	}

	limited, err := svc.ListRecentConversations(context.Background(), 9, 1)
	if err != nil {
		t.Fatalf("limited list: %v", err)
	}
	if len(limited) != 1 || limited[0].ConversationID != convB.ConversationID {
		t.Fatalf("unexpected limited listing: %+v", limited)
	}
}

func TestListFavoriteConversations(t *testing.T) {
	db := openTestDB(t)
	svc, _ := newTestService(t, db)

	plain, err := svc.CreateConversation(context.Background(), 13, "plain")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	starred, err := svc.CreateConversation(context.Background(), 13, "starred")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	if _, err := svc.ToggleFavoriteConversation(context.Background(), starred.ConversationID); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	favs, err := svc.ListFavoriteConversations(context.Background(), 13, 10)
	if err != nil {
		t.Fatalf("list favorites: %v", err)
	}
	if len(favs) != 1 || favs[0].ConversationID != starred.ConversationID {
		t.Fatalf("unexpected favorites: %+v", favs)
	}
	for _, f := range favs {
		if f.ConversationID == plain.ConversationID {
			t.Fatalf("non-favorite conversation listed")
		}
	}
}

func TestCreateConversation_Defaults(t *testing.T) {
	db := openTestDB(t)
	svc, _ := newTestService(t, db)

	conv, err := svc.CreateConversation(context.Background(), 10, "")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	if conv.Title != DefaultTitle {
		t.Fatalf("expected default title, got %q", conv.Title)
	}
	if len(conv.ConversationID) != 26 {
		t.Fatalf("expected 26-char ulid, got %q", conv.ConversationID)
	}
	if conv.IsFavorite {
		t.Fatalf("new conversation must not be favorite")
	}
}

func TestSendMessage_UsesContextWindow(t *testing.T) {
	db := openTestDB(t)

	prov := &recordingProvider{}
	reg := ai.NewRegistry()
	reg.Register("fake", func(ctx context.Context, model string) (ai.Provider, error) {
		_, _ = ctx, model
		return prov, nil
	})
	window := 3
	svc := NewService(NewRepo(db), reg, "fake", "default", window)

	conv, err := svc.CreateConversation(context.Background(), 11, "")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	for i := 0; i < 5; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		if _, err := svc.AppendMessage(context.Background(), 11, conv.ConversationID, role, "seed"); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	if _, _, err := svc.SendMessage(context.Background(), 11, conv.ConversationID, "new"); err != nil {
		t.Fatalf("send message: %v", err)
	}

	if len(prov.last) != window {
		t.Fatalf("expected provider to receive %d messages, got %d", window, len(prov.last))
	}
	last := prov.last[len(prov.last)-1]
	if last.Role != RoleUser || last.Content != "new" {
		t.Fatalf("expected newest provider msg to be the new user msg, got role=%q content=%q", last.Role, last.Content)
	}
}
