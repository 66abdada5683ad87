package store

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-alert-relay/internal/domain"
	"github.com/couchcryptid/storm-alert-relay/internal/observability"
)

var testNow = time.Date(2025, 8, 24, 19, 30, 0, 0, time.UTC)

func newTestStore(t *testing.T, opts Options) (*Store, *clockwork.FakeClock) {
	t.Helper()
	fake := clockwork.NewFakeClockAt(testNow)
	opts.Clock = fake
	s := New(slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetricsForTesting(), opts)
	return s, fake
}

func warningAlert(etn int, action domain.Action) *domain.Alert {
	v := &domain.VTEC{
		ProductClass:        "O",
		Action:              action,
		Office:              "KCLE",
		Phenomenon:          "SV",
		Significance:        domain.SignificanceWarning,
		EventTrackingNumber: etn,
		EndTime:             testNow.Add(45 * time.Minute),
	}
	return &domain.Alert{
		ProductID:      v.ProductID(),
		Source:         "push",
		VTEC:           v,
		Phenomenon:     "SV",
		Significance:   domain.SignificanceWarning,
		EventName:      "Severe Thunderstorm Warning",
		Priority:       domain.PrioritySevereThunderstormWarning,
		IssuedTime:     testNow,
		ExpirationTime: v.EndTime,
		AffectedAreas:  []string{"OHC035"},
		Status:         domain.StatusActive,
	}
}

func TestUpsertInsertAndDuplicate(t *testing.T) {
	s, _ := newTestStore(t, Options{})

	assert.Equal(t, OutcomeInserted, s.Upsert(warningAlert(1, domain.ActionNew)))
	assert.Equal(t, OutcomeDuplicate, s.Upsert(warningAlert(1, domain.ActionNew)),
		"replayed NEW products must not duplicate")
	assert.Equal(t, 1, s.Len())
}

func TestUpsertUpdatePreservesIssuedTime(t *testing.T) {
	s, fake := newTestStore(t, Options{})
	require.Equal(t, OutcomeInserted, s.Upsert(warningAlert(1, domain.ActionNew)))

	fake.Advance(5 * time.Minute)
	update := warningAlert(1, domain.ActionContinue)
	update.IssuedTime = testNow.Add(5 * time.Minute)
	update.ExpirationTime = testNow.Add(60 * time.Minute)
	update.VTEC.EndTime = update.ExpirationTime
	require.Equal(t, OutcomeUpdated, s.Upsert(update))

	got, ok := s.Get("SV.CLE.0001")
	require.True(t, ok)
	assert.Equal(t, testNow, got.IssuedTime, "original issue time survives updates")
	assert.Equal(t, 1, got.UpdateCount)
	assert.Equal(t, domain.StatusUpdated, got.Status)
	assert.Equal(t, testNow.Add(60*time.Minute), got.ExpirationTime)
}

func TestUpsertUpdateForUnknownEventInserts(t *testing.T) {
	s, _ := newTestStore(t, Options{})

	assert.Equal(t, OutcomeInserted, s.Upsert(warningAlert(9, domain.ActionContinue)))
	got, ok := s.Get("SV.CLE.0009")
	require.True(t, ok)
	assert.Equal(t, domain.StatusActive, got.Status)
}

func TestUpsertCancellationRemoves(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	require.Equal(t, OutcomeInserted, s.Upsert(warningAlert(1, domain.ActionNew)))

	assert.Equal(t, OutcomeRemoved, s.Upsert(warningAlert(1, domain.ActionCancel)))
	assert.Zero(t, s.Len())

	// A cancellation for something never tracked is silently discarded.
	assert.Equal(t, OutcomeDiscarded, s.Upsert(warningAlert(2, domain.ActionCancel)))
}

func TestUpsertStaleProductDropped(t *testing.T) {
	s, fake := newTestStore(t, Options{ExpirationGrace: time.Minute})
	a := warningAlert(1, domain.ActionNew)

	fake.Advance(47 * time.Minute) // expiration 45m + grace 1m < 47m
	assert.Equal(t, OutcomeStale, s.Upsert(a))
	assert.Zero(t, s.Len())
}

func TestEvictionRespectsGrace(t *testing.T) {
	s, fake := newTestStore(t, Options{ExpirationGrace: time.Minute})
	require.Equal(t, OutcomeInserted, s.Upsert(warningAlert(1, domain.ActionNew)))

	fake.Advance(45 * time.Minute)
	assert.Zero(t, s.EvictExpired(), "inside the grace window")

	fake.Advance(61 * time.Second)
	assert.Equal(t, 1, s.EvictExpired())
	assert.Zero(t, s.Len())
}

func TestEvictionSkipsRetimedAlerts(t *testing.T) {
	s, fake := newTestStore(t, Options{ExpirationGrace: time.Minute})
	require.Equal(t, OutcomeInserted, s.Upsert(warningAlert(1, domain.ActionNew)))

	// Extend the event before its first window passes.
	ext := warningAlert(1, domain.ActionExtend)
	ext.ExpirationTime = testNow.Add(2 * time.Hour)
	ext.VTEC.EndTime = ext.ExpirationTime
	require.Equal(t, OutcomeUpdated, s.Upsert(ext))

	fake.Advance(47 * time.Minute)
	assert.Zero(t, s.EvictExpired(), "stale heap entry must not evict the extended alert")
	assert.Equal(t, 1, s.Len())
}

func TestEventSequenceIsGapless(t *testing.T) {
	s, _ := newTestStore(t, Options{})

	var events []Event
	snapshot, seq := s.Subscribe(func(ev Event) { events = append(events, ev) })
	assert.Empty(t, snapshot)
	assert.Zero(t, seq)

	s.Upsert(warningAlert(1, domain.ActionNew))
	s.Upsert(warningAlert(2, domain.ActionNew))
	s.Upsert(warningAlert(1, domain.ActionContinue))
	s.Upsert(warningAlert(2, domain.ActionCancel))

	require.Len(t, events, 4)
	for i, ev := range events {
		assert.Equal(t, seq+uint64(i+1), ev.Sequence)
	}
	assert.Equal(t, EventNew, events[0].Type)
	assert.Equal(t, EventUpdate, events[2].Type)
	assert.Equal(t, EventRemove, events[3].Type)
	assert.Equal(t, "cancelled", events[3].Reason)
	assert.Equal(t, domain.StatusCancelled, events[3].Alert.Status)
}

func TestSubscribeSnapshotMatchesSequence(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	s.Upsert(warningAlert(1, domain.ActionNew))
	s.Upsert(warningAlert(2, domain.ActionNew))

	snapshot, seq := s.Subscribe(func(Event) {})
	assert.Len(t, snapshot, 2)
	assert.Equal(t, uint64(2), seq)
}

func TestSnapshotOrderedByPriority(t *testing.T) {
	s, _ := newTestStore(t, Options{})

	sps := &domain.Alert{
		ProductID:      "SPS.adhoc.202508241930.abcd1234",
		Source:         "push",
		Phenomenon:     "SPS",
		Significance:   domain.SignificanceStatement,
		Priority:       domain.PrioritySpecialWeatherStatement,
		ExpirationTime: testNow.Add(30 * time.Minute),
	}
	require.Equal(t, OutcomeInserted, s.Upsert(sps))
	require.Equal(t, OutcomeInserted, s.Upsert(warningAlert(1, domain.ActionNew)))

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "SV.CLE.0001", snap[0].ProductID, "warnings sort before statements")
}

func TestReconcilePull(t *testing.T) {
	s, fake := newTestStore(t, Options{})

	pushAlert := warningAlert(1, domain.ActionNew)
	require.Equal(t, OutcomeInserted, s.Upsert(pushAlert))

	old := warningAlert(2, domain.ActionNew)
	old.Source = "pull"
	require.Equal(t, OutcomeInserted, s.Upsert(old))

	fresh := warningAlert(3, domain.ActionNew)
	fresh.Source = "pull"
	fresh.ExpirationTime = testNow.Add(2 * time.Hour)
	fresh.VTEC.EndTime = fresh.ExpirationTime

	applied, removed := s.ReconcilePull([]*domain.Alert{fresh})
	assert.Equal(t, 1, applied)
	assert.Zero(t, removed, "absent but unexpired alerts stay until they expire")
	assert.Equal(t, 3, s.Len())

	// The push warning and the stale pull warning have both expired by now.
	fake.Advance(46 * time.Minute)
	keep := warningAlert(3, domain.ActionContinue)
	keep.Source = "pull"
	keep.ExpirationTime = testNow.Add(2 * time.Hour)
	keep.VTEC.EndTime = keep.ExpirationTime

	_, removed = s.ReconcilePull([]*domain.Alert{keep})
	assert.Equal(t, 2, removed)

	_, ok := s.Get("SV.CLE.0001")
	assert.False(t, ok, "expired push alerts absent upstream are reconciled away")
	_, ok = s.Get("SV.CLE.0002")
	assert.False(t, ok)
	_, ok = s.Get("SV.CLE.0003")
	assert.True(t, ok)
}

func TestUpsertNoVTECReissueRefreshes(t *testing.T) {
	s, fake := newTestStore(t, Options{})

	sps := func(desc string, at time.Time) *domain.Alert {
		return &domain.Alert{
			ProductID:      "SPS.adhoc.202508241930.abcd1234",
			Source:         "push",
			Phenomenon:     "SPS",
			Significance:   domain.SignificanceStatement,
			Priority:       domain.PrioritySpecialWeatherStatement,
			Description:    desc,
			ExpirationTime: testNow.Add(30 * time.Minute),
			LastUpdated:    at,
		}
	}

	require.Equal(t, OutcomeInserted, s.Upsert(sps("gusty winds", testNow)))
	assert.Equal(t, OutcomeDuplicate, s.Upsert(sps("gusty winds", testNow)),
		"identical re-receipt is ignored")

	fake.Advance(time.Minute)
	reissued := sps("gusty winds and small hail", testNow.Add(time.Minute))
	assert.Equal(t, OutcomeUpdated, s.Upsert(reissued))

	got, ok := s.Get("SPS.adhoc.202508241930.abcd1234")
	require.True(t, ok)
	assert.Equal(t, "gusty winds and small hail", got.Description)
	assert.Equal(t, 1, got.UpdateCount)
}

func TestDelete(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	require.Equal(t, OutcomeInserted, s.Upsert(warningAlert(1, domain.ActionNew)))

	assert.True(t, s.Delete("SV.CLE.0001"))
	assert.False(t, s.Delete("SV.CLE.0001"))
}

func TestSaveRestore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.json")

	s, _ := newTestStore(t, Options{})
	keep := warningAlert(1, domain.ActionNew)
	short := warningAlert(2, domain.ActionNew)
	short.ExpirationTime = testNow.Add(10 * time.Minute)
	short.VTEC.EndTime = short.ExpirationTime
	require.Equal(t, OutcomeInserted, s.Upsert(keep))
	require.Equal(t, OutcomeInserted, s.Upsert(short))
	require.NoError(t, s.Save(path))

	// A new process starts 20 minutes later; the short-lived alert is gone.
	restoredStore, fake := newTestStore(t, Options{})
	fake.Advance(20 * time.Minute)
	n, err := restoredStore.Restore(path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, ok := restoredStore.Get("SV.CLE.0001")
	require.True(t, ok)
	assert.Equal(t, testNow, got.IssuedTime)

	_, ok = restoredStore.Get("SV.CLE.0002")
	assert.False(t, ok)
}

func TestRestoreMissingFile(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	n, err := s.Restore(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRecentRingAndStats(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	require.Equal(t, OutcomeInserted, s.Upsert(warningAlert(1, domain.ActionNew)))

	for i := 0; i < recentCapacity+5; i++ {
		s.RecordProduct(ProductRecord{Source: "push", Outcome: string(OutcomeInserted)})
	}
	s.RecordProduct(ProductRecord{Source: "push", Outcome: "parse_error", Error: "no ugc block"})

	recent := s.Recent()
	assert.Len(t, recent, recentCapacity)
	assert.Equal(t, "parse_error", recent[0].Outcome, "newest first")

	stats := s.Stats()
	assert.Equal(t, 1, stats.ActiveAlerts)
	assert.Equal(t, 1, stats.Warnings)
	assert.Zero(t, stats.Watches)
	assert.Equal(t, uint64(recentCapacity+6), stats.ProductsReceived)
	assert.Equal(t, uint64(1), stats.ParseFailures)
	assert.Equal(t, 1, stats.ByPhenomenon["SV"])
	assert.Equal(t, 1, stats.BySource["push"])
	assert.False(t, stats.LastProductAt.IsZero())
}
