package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/parfive/go-handle-backend/internal/domain"
	"github.com/parfive/go-handle-backend/internal/repo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:handlesvc_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	if err := repo.SeedReservedHandles(context.Background(), db, repo.DefaultReservedHandles()); err != nil {
		t.Fatalf("seed reserved: %v", err)
	}
	return db
}

func seedProfile(t *testing.T, db *gorm.DB, id, handleStr string) *domain.Profile {
	t.Helper()
	p := &domain.Profile{ID: id}
	if handleStr != "" {
		lower := strings.ToLower(handleStr)
		p.Handle = &handleStr
		p.HandleLower = &lower
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("seed profile %s: %v", id, err)
	}
	return p
}

// fixedTags keeps the random suggestion variant deterministic in tests.
type fixedTags struct{ tag string }

func (f fixedTags) Tag(n int) string { return f.tag }

// recordingPublisher captures rename events.
type recordingPublisher struct {
	events []RenameEvent
	err    error
}

func (r *recordingPublisher) PublishRename(_ context.Context, ev RenameEvent) error {
	r.events = append(r.events, ev)
	return r.err
}

func newSvc(db *gorm.DB) *HandleService {
	s := NewHandleService(db)
	s.Tags = fixedTags{tag: "x7q2"}
	return s
}

func TestCheckAvailability_FormatError_NoSuggestions(t *testing.T) {
	db := newTestDB(t)
	svc := newSvc(db)

	av, err := svc.CheckAvailability(context.Background(), "ab", "")
	if err != nil {
		t.Fatalf("CheckAvailability: %v", err)
	}
	if av.Available {
		t.Fatal("ab should be unavailable")
	}
	if !strings.Contains(av.Reason, "at least") {
		t.Errorf("reason %q should mention the length rule", av.Reason)
	}
	if len(av.Suggestions) != 0 {
		t.Errorf("format errors must not carry suggestions, got %v", av.Suggestions)
	}
}

func TestCheckAvailability_Reserved(t *testing.T) {
	db := newTestDB(t)
	svc := newSvc(db)

	av, err := svc.CheckAvailability(context.Background(), "admin", "")
	if err != nil {
		t.Fatalf("CheckAvailability: %v", err)
	}
	if av.Available {
		t.Fatal("admin should be unavailable")
	}
	if !strings.Contains(av.Reason, "reserved") {
		t.Errorf("reason %q should mention reserved", av.Reason)
	}
	want := []string{"admin1", "admin_", "admin2"}
	if len(av.Suggestions) != 3 {
		t.Fatalf("got %v, want %v", av.Suggestions, want)
	}
	for i := range want {
		if av.Suggestions[i] != want[i] {
			t.Fatalf("got %v, want %v", av.Suggestions, want)
		}
	}
}

func TestCheckAvailability_Taken(t *testing.T) {
	db := newTestDB(t)
	svc := newSvc(db)
	seedProfile(t, db, "p1", "TomK")

	av, err := svc.CheckAvailability(context.Background(), "@TOMK", "")
	if err != nil {
		t.Fatalf("CheckAvailability: %v", err)
	}
	if av.Available {
		t.Fatal("tomk should be taken, case-insensitively")
	}
	if !strings.Contains(av.Reason, "taken") {
		t.Errorf("reason %q should mention taken", av.Reason)
	}
	want := []string{"tomk1", "tomk_", "tomk2", "tomk.x7q2"}
	if len(av.Suggestions) != 4 {
		t.Fatalf("got %v, want %v", av.Suggestions, want)
	}
	for i := range want {
		if av.Suggestions[i] != want[i] {
			t.Fatalf("got %v, want %v", av.Suggestions, want)
		}
	}
}

func TestCheckAvailability_ExcludesOwnProfile(t *testing.T) {
	db := newTestDB(t)
	svc := newSvc(db)
	seedProfile(t, db, "p1", "TomK")

	av, err := svc.CheckAvailability(context.Background(), "TomK", "p1")
	if err != nil {
		t.Fatalf("CheckAvailability: %v", err)
	}
	if !av.Available {
		t.Fatalf("own handle should be available to its owner, got %+v", av)
	}
}

func TestCheckAvailability_IsIdempotent(t *testing.T) {
	db := newTestDB(t)
	svc := newSvc(db)

	first, err := svc.CheckAvailability(context.Background(), "freehandle", "")
	if err != nil {
		t.Fatalf("CheckAvailability: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := svc.CheckAvailability(context.Background(), "freehandle", "")
		if err != nil {
			t.Fatalf("CheckAvailability #%d: %v", i, err)
		}
		if again.Available != first.Available || again.Reason != first.Reason {
			t.Fatalf("result changed between calls: %+v vs %+v", first, again)
		}
	}
}

func TestRename_ProfileNotFound(t *testing.T) {
	db := newTestDB(t)
	svc := newSvc(db)

	_, err := svc.Rename(context.Background(), "ghost", "tomk")
	if !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
}

func TestRename_InvalidFormat(t *testing.T) {
	db := newTestDB(t)
	svc := newSvc(db)
	seedProfile(t, db, "p1", "")

	_, err := svc.Rename(context.Background(), "p1", "a..b")
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestRename_InitialAssignment(t *testing.T) {
	db := newTestDB(t)
	svc := newSvc(db)
	seedProfile(t, db, "p1", "")

	res, err := svc.Rename(context.Background(), "p1", "@TomK")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if res.Handle != "TomK" {
		t.Errorf("handle = %q, want TomK", res.Handle)
	}

	p, _ := repo.GetProfile(context.Background(), db, "p1")
	if p.Handle == nil || *p.Handle != "TomK" || p.HandleLower == nil || *p.HandleLower != "tomk" {
		t.Errorf("stored handle = %v / %v", p.Handle, p.HandleLower)
	}
	if p.HandleUpdatedAt == nil || p.HandleChangeCount != 1 {
		t.Errorf("bookkeeping: updated_at=%v count=%d", p.HandleUpdatedAt, p.HandleChangeCount)
	}

	// No transition happened, so no history row.
	hist, _ := repo.ListHandleHistory(context.Background(), db, "p1", 10)
	if len(hist) != 0 {
		t.Errorf("initial assignment wrote %d history rows", len(hist))
	}
}

func TestRename_CaseOnly_BypassesCooldownAndCounter(t *testing.T) {
	db := newTestDB(t)
	svc := newSvc(db)
	seedProfile(t, db, "p1", "")

	// Full rename just now; the cooldown window is live.
	if _, err := svc.Rename(context.Background(), "p1", "TomK"); err != nil {
		t.Fatalf("initial rename: %v", err)
	}

	res, err := svc.Rename(context.Background(), "p1", "tomk")
	if err != nil {
		t.Fatalf("case-only rename: %v", err)
	}
	if !res.CaseOnly {
		t.Error("expected case-only result")
	}

	p, _ := repo.GetProfile(context.Background(), db, "p1")
	if p.Handle == nil || *p.Handle != "tomk" {
		t.Errorf("handle = %v, want tomk", p.Handle)
	}
	if p.HandleChangeCount != 1 {
		t.Errorf("case-only rename changed the counter: %d", p.HandleChangeCount)
	}
	hist, _ := repo.ListHandleHistory(context.Background(), db, "p1", 10)
	if len(hist) != 0 {
		t.Errorf("case-only rename wrote %d history rows", len(hist))
	}
}

func TestRename_CooldownWindow(t *testing.T) {
	db := newTestDB(t)
	svc := newSvc(db)
	seedProfile(t, db, "p1", "")

	// The initial assignment is itself a counted rename: it starts the
	// cooldown clock for the first user-initiated change.
	t0 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.Now = func() time.Time { return t0 }
	if _, err := svc.Rename(context.Background(), "p1", "first"); err != nil {
		t.Fatalf("initial rename: %v", err)
	}

	// Six days later: still inside the window.
	svc.Now = func() time.Time { return t0.Add(6 * 24 * time.Hour) }
	_, err := svc.Rename(context.Background(), "p1", "third")
	var rl *RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitedError at +6d, got %v", err)
	}
	if want := t0.Add(7 * 24 * time.Hour); !rl.NextAllowedAt.Equal(want) {
		t.Errorf("NextAllowedAt = %v, want %v", rl.NextAllowedAt, want)
	}

	// Eight days later: allowed again.
	svc.Now = func() time.Time { return t0.Add(8 * 24 * time.Hour) }
	if _, err := svc.Rename(context.Background(), "p1", "third"); err != nil {
		t.Fatalf("rename at +8d: %v", err)
	}
}

func TestRename_HistoryCompleteness(t *testing.T) {
	db := newTestDB(t)
	svc := newSvc(db)
	seedProfile(t, db, "p1", "")

	names := []string{"one11", "two22", "three33", "four44"}
	t0 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, n := range names {
		tick := t0.Add(time.Duration(i) * 8 * 24 * time.Hour)
		svc.Now = func() time.Time { return tick }
		if _, err := svc.Rename(context.Background(), "p1", n); err != nil {
			t.Fatalf("rename to %s: %v", n, err)
		}
	}

	// Initial assignment is not a transition; the three subsequent full
	// renames each produced exactly one record.
	hist, err := repo.ListHandleHistory(context.Background(), db, "p1", 10)
	if err != nil {
		t.Fatalf("ListHandleHistory: %v", err)
	}
	if len(hist) != len(names)-1 {
		t.Fatalf("got %d history rows, want %d", len(hist), len(names)-1)
	}
	// Newest first: each old_handle is the handle immediately preceding it.
	for i := 0; i < len(hist); i++ {
		wantOld := names[len(names)-2-i]
		if hist[i].OldHandle != wantOld {
			t.Errorf("hist[%d].OldHandle = %q, want %q", i, hist[i].OldHandle, wantOld)
		}
	}

	p, _ := repo.GetProfile(context.Background(), db, "p1")
	if p.HandleChangeCount != len(names) {
		t.Errorf("change count = %d, want %d", p.HandleChangeCount, len(names))
	}
}

func TestRename_TargetTakenByOther(t *testing.T) {
	db := newTestDB(t)
	svc := newSvc(db)
	seedProfile(t, db, "pa", "Alpha")
	seedProfile(t, db, "pb", "Bravo")

	_, err := svc.Rename(context.Background(), "pb", "ALPHA")
	var te *TakenError
	if !errors.As(err, &te) {
		t.Fatalf("expected TakenError, got %v", err)
	}
	if len(te.Suggestions) != 4 {
		t.Errorf("got %d suggestions, want 4", len(te.Suggestions))
	}

	// The loser's handle is untouched; uniqueness holds.
	p, _ := repo.GetProfile(context.Background(), db, "pb")
	if p.Handle == nil || *p.Handle != "Bravo" {
		t.Errorf("pb handle = %v, want Bravo", p.Handle)
	}
}

func TestRename_ConcurrentSameTarget(t *testing.T) {
	db := newTestDB(t)
	db.Exec("PRAGMA busy_timeout=5000;")
	svc := newSvc(db)
	seedProfile(t, db, "pa", "")
	seedProfile(t, db, "pb", "")

	// Both profiles go for the same handle at once. The unique index on
	// handle_lower lets exactly one commit through; the loser must come
	// back with a TakenError, never a bare constraint error.
	start := make(chan struct{})
	results := make(chan error, 2)
	var wg sync.WaitGroup
	for _, id := range []string{"pa", "pb"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			<-start
			_, err := svc.Rename(context.Background(), id, "Target")
			results <- err
		}(id)
	}
	close(start)
	wg.Wait()
	close(results)

	var wins, losses int
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		var te *TakenError
		if !errors.As(err, &te) {
			t.Fatalf("loser should get TakenError, got %v", err)
		}
		if len(te.Suggestions) == 0 {
			t.Error("TakenError should carry suggestions")
		}
		losses++
	}
	if wins != 1 || losses != 1 {
		t.Fatalf("wins=%d losses=%d, want exactly one of each", wins, losses)
	}

	var holders int64
	if err := db.Model(&domain.Profile{}).
		Where("handle_lower = ?", "target").
		Count(&holders).Error; err != nil {
		t.Fatalf("count holders: %v", err)
	}
	if holders != 1 {
		t.Fatalf("%q held by %d profiles, want 1", "target", holders)
	}
}

func TestRename_Reserved(t *testing.T) {
	db := newTestDB(t)
	svc := newSvc(db)
	seedProfile(t, db, "p1", "")

	_, err := svc.Rename(context.Background(), "p1", "admin")
	var re *ReservedError
	if !errors.As(err, &re) {
		t.Fatalf("expected ReservedError, got %v", err)
	}
	if len(re.Suggestions) != 3 {
		t.Errorf("got %d suggestions, want 3", len(re.Suggestions))
	}
}

func TestRename_PublishesEventOnFullRenameOnly(t *testing.T) {
	db := newTestDB(t)
	svc := newSvc(db)
	pub := &recordingPublisher{}
	svc.Publisher = pub
	seedProfile(t, db, "p1", "")

	t0 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.Now = func() time.Time { return t0 }
	if _, err := svc.Rename(context.Background(), "p1", "TomK"); err != nil {
		t.Fatalf("initial rename: %v", err)
	}
	if _, err := svc.Rename(context.Background(), "p1", "tomk"); err != nil {
		t.Fatalf("case-only rename: %v", err)
	}
	svc.Now = func() time.Time { return t0.Add(8 * 24 * time.Hour) }
	if _, err := svc.Rename(context.Background(), "p1", "newme"); err != nil {
		t.Fatalf("full rename: %v", err)
	}

	if len(pub.events) != 2 {
		t.Fatalf("got %d events, want 2 (initial + full, not case-only)", len(pub.events))
	}
	last := pub.events[1]
	if last.OldHandle != "tomk" || last.NewHandle != "newme" || last.ProfileID != "p1" {
		t.Errorf("unexpected event: %+v", last)
	}
}

func TestRename_PublisherFailureDoesNotFailRename(t *testing.T) {
	db := newTestDB(t)
	svc := newSvc(db)
	svc.Publisher = &recordingPublisher{err: errors.New("broker down")}
	seedProfile(t, db, "p1", "")

	if _, err := svc.Rename(context.Background(), "p1", "tomk"); err != nil {
		t.Fatalf("rename should not fail with a broken publisher: %v", err)
	}
}

func TestSearch_NormalizesQueryAndClampsLimit(t *testing.T) {
	db := newTestDB(t)
	svc := newSvc(db)
	svc.SearchMaxLimit = 2
	seedProfile(t, db, "p1", "golf")
	seedProfile(t, db, "p2", "golfer")
	seedProfile(t, db, "p3", "golfpro")

	out, err := svc.Search(context.Background(), "  @GOLF ", 50)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("limit not clamped: got %d rows", len(out))
	}
	if *out[0].Handle != "golf" {
		t.Errorf("exact match should rank first, got %q", *out[0].Handle)
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	db := newTestDB(t)
	svc := newSvc(db)
	out, err := svc.Search(context.Background(), "  @ ", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("empty query should return no rows, got %d", len(out))
	}
}

func TestHistory_RequiresProfile(t *testing.T) {
	db := newTestDB(t)
	svc := newSvc(db)
	if _, err := svc.History(context.Background(), "ghost", 10); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
}

func TestResolve_CurrentAndRedirect(t *testing.T) {
	db := newTestDB(t)
	svc := newSvc(db)
	seedProfile(t, db, "p1", "")

	t0 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.Now = func() time.Time { return t0 }
	if _, err := svc.Rename(context.Background(), "p1", "OldMe"); err != nil {
		t.Fatalf("initial rename: %v", err)
	}
	svc.Now = func() time.Time { return t0.Add(8 * 24 * time.Hour) }
	if _, err := svc.Rename(context.Background(), "p1", "NewMe"); err != nil {
		t.Fatalf("full rename: %v", err)
	}

	cur, err := svc.Resolve(context.Background(), "@newme")
	if err != nil {
		t.Fatalf("Resolve current: %v", err)
	}
	if cur.Redirected || cur.Profile.ID != "p1" {
		t.Fatalf("unexpected resolution: %+v", cur)
	}

	old, err := svc.Resolve(context.Background(), "oldme")
	if err != nil {
		t.Fatalf("Resolve former: %v", err)
	}
	if !old.Redirected || old.Profile.ID != "p1" || old.Handle != "NewMe" {
		t.Fatalf("unexpected redirect resolution: %+v", old)
	}

	if _, err := svc.Resolve(context.Background(), "neverexisted"); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
}

func TestUniquenessInvariant_AfterManyRenames(t *testing.T) {
	db := newTestDB(t)
	svc := newSvc(db)
	seedProfile(t, db, "pa", "")
	seedProfile(t, db, "pb", "")

	if _, err := svc.Rename(context.Background(), "pa", "shared"); err != nil {
		t.Fatalf("pa rename: %v", err)
	}
	if _, err := svc.Rename(context.Background(), "pb", "Shared"); err == nil {
		t.Fatal("pb must not acquire a case variant of pa's handle")
	}

	var n int64
	if err := db.Model(&domain.Profile{}).Where("handle_lower = ?", "shared").Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("uniqueness violated: %d holders of 'shared'", n)
	}
}
