package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/verte-zerg/tuispeak/internal/model"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "tuispeak.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func attemptAt(lesson string, ended time.Time, acc int) model.Attempt {
	return model.Attempt{
		SessionID:  "s-" + ended.Format("150405"),
		LessonID:   lesson,
		Target:     "the cat runs",
		Transcript: "the cat",
		Accuracy:   acc,
		Confidence: 85,
		StartedAt:  ended.Add(-3 * time.Second),
		EndedAt:    ended,
		DurationMs: 3000,
	}
}

func TestInsertAndListAttempts(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	words := []model.WordStats{
		{Word: "the", Matched: 1},
		{Word: "cat", Matched: 1},
		{Word: "runs", Missed: 1},
	}
	for i, lesson := range []string{"greetings", "daily", "greetings"} {
		if _, err := s.InsertAttempt(ctx, attemptAt(lesson, base.Add(time.Duration(i)*time.Minute), 60+i*10), words); err != nil {
			t.Fatalf("InsertAttempt: %v", err)
		}
	}

	all, err := s.ListAttempts(ctx, model.StatsConfig{})
	if err != nil {
		t.Fatalf("ListAttempts: %v", err)
	}
	if len(all) != 3 || all[0].Accuracy != 60 || all[2].Accuracy != 80 {
		t.Fatalf("unexpected attempts: %+v", all)
	}
	if all[0].Words != 3 || !all[0].EndedAt.Equal(base) {
		t.Fatalf("unexpected aggregate: %+v", all[0])
	}

	filtered, err := s.ListAttempts(ctx, model.StatsConfig{Lesson: "greetings", Last: 1})
	if err != nil {
		t.Fatalf("ListAttempts filtered: %v", err)
	}
	if len(filtered) != 1 || filtered[0].Accuracy != 80 {
		t.Fatalf("unexpected filtered attempts: %+v", filtered)
	}

	since := base.Add(90 * time.Second)
	recent, err := s.ListAttempts(ctx, model.StatsConfig{Since: &since})
	if err != nil || len(recent) != 1 {
		t.Fatalf("since filter: %+v %v", recent, err)
	}
}

func TestWeakWordsWindow(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	old := []model.WordStats{{Word: "river", Missed: 1}}
	recent := []model.WordStats{{Word: "river", Matched: 1}, {Word: "water", Near: 1}}
	if _, err := s.InsertAttempt(ctx, attemptAt("nature", base, 0), old); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := s.InsertAttempt(ctx, attemptAt("nature", base.Add(time.Minute), 50), recent); err != nil {
		t.Fatalf("insert: %v", err)
	}

	aggs, err := s.GetWeakWords(ctx, 1, "")
	if err != nil {
		t.Fatalf("GetWeakWords: %v", err)
	}
	got := map[string]model.WordAggregate{}
	for _, a := range aggs {
		got[a.Word] = a
	}
	if got["river"].Missed != 0 || got["river"].Matched != 1 || got["water"].Near != 1 {
		t.Fatalf("window should only include the latest attempt: %+v", got)
	}

	aggs, err = s.GetWeakWords(ctx, 10, "nature")
	if err != nil {
		t.Fatalf("GetWeakWords: %v", err)
	}
	for _, a := range aggs {
		if a.Word == "river" && (a.Missed != 1 || a.Matched != 1) {
			t.Fatalf("unexpected river aggregate: %+v", a)
		}
	}
	if none, _ := s.GetWeakWords(ctx, 0, ""); none != nil {
		t.Fatalf("zero window should return nil")
	}
}

func TestWordStatsForAttempts(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	id, err := s.InsertAttempt(ctx, attemptAt("x", time.Now(), 50), []model.WordStats{{Word: "cat", Matched: 2}, {Word: "dog", Missed: 1}})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	per, err := s.ListWordStatsForAttempts(ctx, []int64{id}, []string{"cat"})
	if err != nil {
		t.Fatalf("ListWordStatsForAttempts: %v", err)
	}
	if per[id]["cat"].Matched != 2 || len(per[id]) != 1 {
		t.Fatalf("unexpected per-attempt stats: %+v", per)
	}
	aggs, err := s.ListWordAggregatesForAttempts(ctx, []int64{id})
	if err != nil || len(aggs) != 2 {
		t.Fatalf("aggregates: %+v %v", aggs, err)
	}
}

func TestInsertAttemptDuplicateWordRollsBack(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	dup := []model.WordStats{{Word: "cat", Matched: 1}, {Word: "cat", Missed: 1}}
	if _, err := s.InsertAttempt(ctx, attemptAt("x", time.Now(), 50), dup); err == nil {
		t.Fatalf("expected primary key violation")
	}
	all, err := s.ListAttempts(ctx, model.StatsConfig{})
	if err != nil || len(all) != 0 {
		t.Fatalf("failed insert must not leave an attempt: %+v %v", all, err)
	}
}

func TestKV(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	if _, ok, err := s.Get(ctx, "missing"); ok || err != nil {
		t.Fatalf("missing key: %v %v", ok, err)
	}
	if err := s.Set(ctx, "pos", "3", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "pos", "4", 0); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	if v, ok, _ := s.Get(ctx, "pos"); !ok || v != "4" {
		t.Fatalf("expected overwritten value, got %q %v", v, ok)
	}

	if err := s.Set(ctx, "tmp", "x", time.Minute); err != nil {
		t.Fatalf("Set ttl: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "tmp"); !ok {
		t.Fatalf("entry should be live before expiry")
	}
	now = now.Add(time.Minute)
	if _, ok, _ := s.Get(ctx, "tmp"); ok {
		t.Fatalf("entry should expire at its deadline")
	}

	if err := s.Delete(ctx, "pos"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "pos"); ok {
		t.Fatalf("deleted key still present")
	}
	if err := s.Delete(ctx, "pos"); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
}
