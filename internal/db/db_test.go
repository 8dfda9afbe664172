package db

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/contact.monitor/internal/contact"
	"github.com/banshee-data/contact.monitor/internal/environment"
	"github.com/banshee-data/contact.monitor/internal/monitor"
	"github.com/banshee-data/contact.monitor/internal/monitoring"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

var epoch = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func vectorAt(stamp time.Time, revision int, distances ...float64) monitor.ContactResultVector {
	vec := monitor.ContactResultVector{Stamp: stamp, Revision: revision}
	for _, d := range distances {
		vec.Contacts = append(vec.Contacts, monitor.ContactRecord{
			Result:         contact.Result{LinkNames: [2]string{"A", "B"}, Distance: d},
			SafetyDistance: 0.1,
		})
	}
	return vec
}

func TestRecordCycleRoundTrip(t *testing.T) {
	db := newTestDB(t)

	id, err := db.RecordCycle(vectorAt(epoch, 3, 0.08, 0.02))
	if err != nil {
		t.Fatalf("RecordCycle failed: %v", err)
	}
	if _, err := db.RecordCycle(vectorAt(epoch.Add(time.Second), 3)); err != nil {
		t.Fatalf("RecordCycle (empty) failed: %v", err)
	}

	cycles, err := db.Cycles(epoch, 10)
	if err != nil {
		t.Fatalf("Cycles failed: %v", err)
	}
	if len(cycles) != 2 {
		t.Fatalf("got %d cycles, want 2", len(cycles))
	}
	if cycles[0].MinDistance != nil || cycles[0].ContactCount != 0 {
		t.Errorf("newest cycle = %+v, want no contacts", cycles[0])
	}
	older := cycles[1]
	if older.ID != id || older.Revision != 3 || older.ContactCount != 2 {
		t.Errorf("older cycle = %+v", older)
	}
	if older.MinDistance == nil || *older.MinDistance != 0.02 {
		t.Errorf("older min distance = %v, want 0.02", older.MinDistance)
	}
	if !older.Stamp.Equal(epoch) {
		t.Errorf("older stamp = %v, want %v", older.Stamp, epoch)
	}

	rows, err := db.CycleContacts(id)
	if err != nil {
		t.Fatalf("CycleContacts failed: %v", err)
	}
	if len(rows) != 2 || rows[0].Distance != 0.02 || rows[1].Distance != 0.08 {
		t.Errorf("contacts = %+v", rows)
	}
	if rows[0].LinkA != "A" || rows[0].LinkB != "B" || rows[0].SafetyDistance != 0.1 {
		t.Errorf("contact row = %+v", rows[0])
	}
}

func TestCyclesRespectsSinceAndLimit(t *testing.T) {
	db := newTestDB(t)
	for i := range 5 {
		if _, err := db.RecordCycle(vectorAt(epoch.Add(time.Duration(i)*time.Minute), 1, 0.5)); err != nil {
			t.Fatal(err)
		}
	}

	cycles, err := db.Cycles(epoch.Add(2*time.Minute), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(cycles) != 3 {
		t.Errorf("since filter: got %d cycles, want 3", len(cycles))
	}

	cycles, err = db.Cycles(epoch, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(cycles) != 2 || !cycles[0].Stamp.Equal(epoch.Add(4*time.Minute)) {
		t.Errorf("limit: got %+v", cycles)
	}
}

func TestPruneBefore(t *testing.T) {
	db := newTestDB(t)
	oldID, _ := db.RecordCycle(vectorAt(epoch, 1, 0.1))
	if _, err := db.RecordCycle(vectorAt(epoch.Add(time.Hour), 1, 0.2)); err != nil {
		t.Fatal(err)
	}

	n, err := db.PruneBefore(epoch.Add(time.Minute))
	if err != nil {
		t.Fatalf("PruneBefore failed: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d cycles, want 1", n)
	}
	rows, err := db.CycleContacts(oldID)
	if !errors.Is(err, ErrCycleNotFound) {
		t.Errorf("CycleContacts(pruned) = %+v, %v; want ErrCycleNotFound", rows, err)
	}
	var left int
	if err := db.QueryRow(`SELECT COUNT(*) FROM contacts WHERE cycle_id = ?`, oldID).Scan(&left); err != nil {
		t.Fatal(err)
	}
	if left != 0 {
		t.Errorf("%d contacts of pruned cycle survived", left)
	}
	cycles, _ := db.Cycles(time.Unix(0, 0), 10)
	if len(cycles) != 1 {
		t.Errorf("got %d cycles after prune, want 1", len(cycles))
	}
}

func TestRecordModification(t *testing.T) {
	db := newTestDB(t)
	req := monitor.ModifyEnvironmentRequest{
		ID:       "pair",
		Revision: 4,
		Commands: []environment.Command{environment.RemoveLinkCommand("B")},
	}
	if err := db.RecordModification(req, monitor.ModifyEnvironmentResponse{Success: true, Revision: 5}); err != nil {
		t.Fatalf("RecordModification failed: %v", err)
	}
	if err := db.RecordModification(monitor.ModifyEnvironmentRequest{ID: "other", Append: true}, monitor.ModifyEnvironmentResponse{Revision: 5}); err != nil {
		t.Fatal(err)
	}

	mods, err := db.Modifications(10)
	if err != nil {
		t.Fatalf("Modifications failed: %v", err)
	}
	if len(mods) != 2 {
		t.Fatalf("got %d modifications, want 2", len(mods))
	}
	if mods[0].EnvironmentID != "other" || !mods[0].Append || mods[0].Success {
		t.Errorf("newest modification = %+v", mods[0])
	}
	m := mods[1]
	if m.EnvironmentID != "pair" || m.RequestedRevision != 4 || m.CommandCount != 1 || !m.Success || m.Revision != 5 {
		t.Errorf("first modification = %+v", m)
	}
	if m.RecordedAt.IsZero() {
		t.Error("RecordedAt not set")
	}
}

func TestMigrations(t *testing.T) {
	db := newTestDB(t)
	migrations := MigrationsFS()

	latest, err := LatestMigrationVersion(migrations)
	if err != nil {
		t.Fatalf("LatestMigrationVersion failed: %v", err)
	}
	if latest != 2 {
		t.Errorf("latest migration = %d, want 2", latest)
	}

	version, dirty, err := db.MigrateVersion(migrations)
	if err != nil || version != latest || dirty {
		t.Fatalf("MigrateVersion = %d, %v, %v; want %d, false, nil", version, dirty, err, latest)
	}

	if err := db.MigrateDown(migrations); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}
	if _, err := db.Modifications(1); err == nil {
		t.Error("modifications table still exists after rolling back")
	}
	if err := db.MigrateUp(migrations); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	if _, err := db.Modifications(1); err != nil {
		t.Errorf("modifications table missing after migrating up: %v", err)
	}
}

func TestMigrateNilFS(t *testing.T) {
	db := newTestDB(t)
	if err := db.MigrateUp(nil); err == nil {
		t.Error("expected error for nil migrations filesystem")
	}
}

func TestCycleContactsEmptyAndUnknown(t *testing.T) {
	db := newTestDB(t)
	id, err := db.RecordCycle(vectorAt(epoch, 1))
	if err != nil {
		t.Fatal(err)
	}

	rows, err := db.CycleContacts(id)
	if err != nil {
		t.Fatalf("CycleContacts(empty cycle): %v", err)
	}
	if rows == nil || len(rows) != 0 {
		t.Errorf("rows = %#v, want an empty non-nil slice", rows)
	}

	if _, err := db.CycleContacts(id + 100); !errors.Is(err, ErrCycleNotFound) {
		t.Errorf("CycleContacts(unknown) error = %v, want ErrCycleNotFound", err)
	}
}
