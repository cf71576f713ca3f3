package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labtrail/protocol-registry/pkg/document"
)

func newTestDB(t *testing.T) (*ProtocolStore, *RunStore, *SampleStore, *UserStore) {
	t.Helper()
	db, err := Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test DB: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	users := NewUserStore(db, nil)
	return NewProtocolStore(db, users, nil), NewRunStore(db, users, nil), NewSampleStore(db, users, nil), users
}

var testStamp = Stamp{ServerVersion: "1.0-test", WebappVersion: "2.0-test"}

func TestProtocolRoundTrip(t *testing.T) {
	protocols, _, _, users := newTestDB(t)

	_, _, err := users.Create("u1", document.Document{"email": "alice@lab.example"}, "u1", testStamp)
	require.NoError(t, err)

	payload := document.Document{"name": "assay", "status": "todo"}
	protocol, version, err := protocols.Create(payload, "u1", testStamp)
	require.NoError(t, err)
	require.NotNil(t, protocol.CurrentVersionID)
	assert.Equal(t, version.ID, *protocol.CurrentVersionID)

	fetched, err := protocols.Get(protocol.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched)

	current, err := protocols.CurrentVersion(fetched)
	require.NoError(t, err)
	require.NotNil(t, current)

	rendered := protocols.Render(fetched, current, true)
	assert.Equal(t, "assay", rendered["name"])
	assert.Equal(t, protocol.ID, rendered["id"])
	assert.Equal(t, version.ID, rendered["version_id"])
	assert.Equal(t, "alice@lab.example", rendered["created_by"])
	assert.Equal(t, "alice@lab.example", rendered["updated_by"])
	assert.Equal(t, "1.0-test", rendered["server_version"])
	assert.Equal(t, "2.0-test", rendered["webapp_version"])
}

func TestProtocolMetadataStrippedOnWrite(t *testing.T) {
	protocols, _, _, _ := newTestDB(t)

	payload := document.Document{
		"name":       "assay",
		"id":         float64(99),
		"version_id": float64(7),
		"updated_by": "someone-else",
	}
	_, version, err := protocols.Create(payload, "u1", testStamp)
	require.NoError(t, err)

	stored := document.Document(version.Data)
	assert.NotContains(t, stored, "id")
	assert.NotContains(t, stored, "version_id")
	assert.NotContains(t, stored, "updated_by")
	assert.Equal(t, "assay", stored["name"])
}

func TestProtocolUpdateAppendsVersion(t *testing.T) {
	protocols, _, _, _ := newTestDB(t)

	protocol, v1, err := protocols.Create(document.Document{"name": "assay", "rev": "one"}, "u1", testStamp)
	require.NoError(t, err)

	updated, v2, err := protocols.Update(protocol.ID, document.Document{"name": "assay", "rev": "two"}, "u2", testStamp)
	require.NoError(t, err)
	assert.NotEqual(t, v1.ID, v2.ID)
	assert.Equal(t, v2.ID, *updated.CurrentVersionID)

	// The first version row stays untouched.
	old, err := protocols.GetVersion(protocol.ID, v1.ID)
	require.NoError(t, err)
	require.NotNil(t, old)
	assert.Equal(t, "one", document.Document(old.Data)["rev"])

	history, err := protocols.History(protocol.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, v1.ID, history[0].ID)
	assert.Equal(t, v2.ID, history[1].ID)
}

func TestProtocolUpdateGate(t *testing.T) {
	protocols, _, _, _ := newTestDB(t)

	protocol, _, err := protocols.Create(document.Document{"name": "assay", "status": "signed", "signature": "alice"}, "u1", testStamp)
	require.NoError(t, err)

	// Content edit on a signed record is rejected.
	_, _, err = protocols.Update(protocol.ID, document.Document{"name": "edited", "status": "signed", "signature": "alice"}, "u1", testStamp)
	assert.ErrorIs(t, err, ErrEditForbidden)

	// Witnessing flips only the status field and is allowed.
	_, _, err = protocols.Update(protocol.ID, document.Document{"name": "assay", "status": "witnessed", "signature": "alice"}, "u2", testStamp)
	assert.NoError(t, err)
}

func TestProtocolUpdateMissing(t *testing.T) {
	protocols, _, _, _ := newTestDB(t)
	_, _, err := protocols.Update(404, document.Document{"name": "x"}, "u1", testStamp)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProtocolVersionCrossIdentity(t *testing.T) {
	protocols, _, _, _ := newTestDB(t)

	a, _, err := protocols.Create(document.Document{"name": "a"}, "u1", testStamp)
	require.NoError(t, err)
	_, versionB, err := protocols.Create(document.Document{"name": "b"}, "u1", testStamp)
	require.NoError(t, err)

	// Asking protocol A for protocol B's version yields nothing.
	version, err := protocols.GetVersion(a.ID, versionB.ID)
	require.NoError(t, err)
	assert.Nil(t, version)
}

func TestProtocolSoftDeleteAndPurge(t *testing.T) {
	protocols, _, _, _ := newTestDB(t)

	protocol, _, err := protocols.Create(document.Document{"name": "a"}, "u1", testStamp)
	require.NoError(t, err)

	require.NoError(t, protocols.Delete(protocol.ID, false))

	hidden, err := protocols.Get(protocol.ID)
	require.NoError(t, err)
	assert.Nil(t, hidden)

	// Archived identities still show up when asked for.
	archived, err := protocols.List(true)
	require.NoError(t, err)
	assert.Len(t, archived, 1)
	live, err := protocols.List(false)
	require.NoError(t, err)
	assert.Empty(t, live)

	// Soft-deleted records cannot be deleted again, purge included.
	assert.ErrorIs(t, protocols.Delete(protocol.ID, true), ErrNotFound)
}

func TestProtocolPurgeRemovesHistory(t *testing.T) {
	protocols, _, _, _ := newTestDB(t)

	protocol, _, err := protocols.Create(document.Document{"name": "a"}, "u1", testStamp)
	require.NoError(t, err)
	_, _, err = protocols.Update(protocol.ID, document.Document{"name": "b"}, "u1", testStamp)
	require.NoError(t, err)

	require.NoError(t, protocols.Delete(protocol.ID, true))

	history, err := protocols.History(protocol.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestRunCreateRequiresProtocolVersion(t *testing.T) {
	_, runs, _, _ := newTestDB(t)
	_, _, err := runs.Create(12345, document.Document{"name": "run"}, "u1", testStamp)
	assert.ErrorIs(t, err, ErrBadReference)
}

func TestRunPinnedToProtocolVersion(t *testing.T) {
	protocols, runs, _, _ := newTestDB(t)

	_, protocolVersion, err := protocols.Create(document.Document{"name": "assay"}, "u1", testStamp)
	require.NoError(t, err)

	run, _, err := runs.Create(protocolVersion.ID, document.Document{"name": "run 1"}, "u1", testStamp)
	require.NoError(t, err)
	assert.Equal(t, protocolVersion.ID, run.ProtocolVersionID)
}

func TestRunPurgeCascadesSamples(t *testing.T) {
	protocols, runs, samples, _ := newTestDB(t)

	_, protocolVersion, err := protocols.Create(document.Document{"name": "assay"}, "u1", testStamp)
	require.NoError(t, err)
	run, runVersion, err := runs.Create(protocolVersion.ID, document.Document{"name": "run"}, "u1", testStamp)
	require.NoError(t, err)

	key := SampleKey{SampleID: "S1", PlateID: "Plate1", RunVersionID: runVersion.ID, ProtocolVersionID: protocolVersion.ID}
	_, written, err := samples.Upsert(key, document.Document{"plateRow": 0}, "u1", testStamp)
	require.NoError(t, err)
	require.True(t, written)

	require.NoError(t, runs.Delete(run.ID, true))

	gone, err := samples.Get(key)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestSampleUpsertIdempotent(t *testing.T) {
	protocols, runs, samples, _ := newTestDB(t)

	_, protocolVersion, err := protocols.Create(document.Document{"name": "assay"}, "u1", testStamp)
	require.NoError(t, err)
	_, runVersion, err := runs.Create(protocolVersion.ID, document.Document{"name": "run"}, "u1", testStamp)
	require.NoError(t, err)

	key := SampleKey{SampleID: "S1", PlateID: "Plate1", RunVersionID: runVersion.ID, ProtocolVersionID: protocolVersion.ID}
	payload := document.Document{"plateRow": 0, "signers": []any{"alice"}}

	sample, written, err := samples.Upsert(key, payload, "u1", testStamp)
	require.NoError(t, err)
	assert.True(t, written)
	firstVersion := *sample.CurrentVersionID

	// Same payload again: no new version row.
	sample, written, err = samples.Upsert(key, document.Document{"signers": []any{"alice"}, "plateRow": 0}, "u1", testStamp)
	require.NoError(t, err)
	assert.False(t, written)
	assert.Equal(t, firstVersion, *sample.CurrentVersionID)

	// Changed payload: a new version is appended.
	sample, written, err = samples.Upsert(key, document.Document{"plateRow": 0, "signers": []any{"alice"}, "result": "positive"}, "u1", testStamp)
	require.NoError(t, err)
	assert.True(t, written)
	assert.NotEqual(t, firstVersion, *sample.CurrentVersionID)
}

func TestSampleUpdateGate(t *testing.T) {
	protocols, runs, samples, _ := newTestDB(t)

	_, protocolVersion, err := protocols.Create(document.Document{"name": "assay"}, "u1", testStamp)
	require.NoError(t, err)
	_, runVersion, err := runs.Create(protocolVersion.ID, document.Document{"name": "run"}, "u1", testStamp)
	require.NoError(t, err)

	key := SampleKey{SampleID: "S1", PlateID: "Plate1", RunVersionID: runVersion.ID, ProtocolVersionID: protocolVersion.ID}
	_, _, err = samples.Upsert(key, document.Document{"status": "signed", "signature": "alice", "note": "v1"}, "u1", testStamp)
	require.NoError(t, err)

	_, _, err = samples.Update(key, document.Document{"status": "signed", "signature": "alice", "note": "v2"}, "u1", testStamp)
	assert.ErrorIs(t, err, ErrEditForbidden)
}

func TestUserDisplayName(t *testing.T) {
	_, _, _, users := newTestDB(t)

	_, _, err := users.Create("u1", document.Document{"email": "alice@lab.example"}, "u1", testStamp)
	require.NoError(t, err)

	display, ok := users.DisplayName("u1")
	assert.True(t, ok)
	assert.Equal(t, "alice@lab.example", display)

	_, ok = users.DisplayName("missing")
	assert.False(t, ok)
}

func TestUserUpdateGate(t *testing.T) {
	_, _, _, users := newTestDB(t)

	_, _, err := users.Create("u1", document.Document{"email": "alice@lab.example"}, "u1", testStamp)
	require.NoError(t, err)

	// Plain profile edits pass the gate.
	_, _, err = users.Update("u1", document.Document{"email": "alice@example.org"}, "u1", testStamp)
	require.NoError(t, err)

	// A signed profile rejects content edits like every other record.
	_, _, err = users.Update("u1", document.Document{"email": "alice@example.org", "status": "signed", "signature": "alice"}, "u1", testStamp)
	require.NoError(t, err)
	_, _, err = users.Update("u1", document.Document{"email": "changed@example.org", "status": "signed", "signature": "alice"}, "u1", testStamp)
	assert.ErrorIs(t, err, ErrEditForbidden)
}

func TestSaveMigratedRewritesVersionRow(t *testing.T) {
	protocols, _, _, _ := newTestDB(t)

	protocol, version, err := protocols.Create(document.Document{"name": "assay"}, "u1", testStamp)
	require.NoError(t, err)

	doc := document.Document(version.Data)
	doc["migrated"] = true
	version.Data = JSONDocument(doc)
	require.NoError(t, protocols.SaveMigrated(version))

	reloaded, err := protocols.GetVersion(protocol.ID, version.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded)
	assert.Equal(t, true, document.Document(reloaded.Data)["migrated"])
}
