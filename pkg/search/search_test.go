package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labtrail/protocol-registry/pkg/document"
	"github.com/labtrail/protocol-registry/pkg/store"
)

type fixture struct {
	composer  *Composer
	protocols *store.ProtocolStore
	runs      *store.RunStore
	samples   *store.SampleStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := store.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test DB: %v", err)
	}
	if err := store.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	users := store.NewUserStore(db, nil)
	return &fixture{
		composer:  NewComposer(db),
		protocols: store.NewProtocolStore(db, users, nil),
		runs:      store.NewRunStore(db, users, nil),
		samples:   store.NewSampleStore(db, users, nil),
	}
}

var stamp = store.Stamp{ServerVersion: "test"}

func plateRunDoc(plateLabel string) document.Document {
	return document.Document{
		"sections": []any{
			map[string]any{
				"blocks": []any{
					map[string]any{"type": "plate-sampler", "plateLabel": plateLabel},
				},
			},
		},
	}
}

// seed creates two protocols with one run each: run A references Plate1,
// run B references Plate2.
func (f *fixture) seed(t *testing.T) (protocolA, protocolB *store.Protocol, runA, runB *store.Run) {
	t.Helper()
	protocolA, versionA, err := f.protocols.Create(document.Document{"name": "assay A"}, "alice", stamp)
	require.NoError(t, err)
	protocolB, versionB, err := f.protocols.Create(document.Document{"name": "assay B"}, "bob", stamp)
	require.NoError(t, err)

	runA, _, err = f.runs.Create(versionA.ID, plateRunDoc("Plate1"), "alice", stamp)
	require.NoError(t, err)
	runB, _, err = f.runs.Create(versionB.ID, plateRunDoc("Plate2"), "bob", stamp)
	require.NoError(t, err)
	return
}

func TestProtocolsNoFilters(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	protocols, err := f.composer.Protocols(Filters{})
	require.NoError(t, err)
	assert.Len(t, protocols, 2)
}

func TestProtocolsByCreator(t *testing.T) {
	f := newFixture(t)
	protocolA, _, _, _ := f.seed(t)

	protocols, err := f.composer.Protocols(Filters{Creator: "alice"})
	require.NoError(t, err)
	require.Len(t, protocols, 1)
	assert.Equal(t, protocolA.ID, protocols[0].ID)
}

func TestProtocolsByPlateLabel(t *testing.T) {
	f := newFixture(t)
	_, protocolB, _, _ := f.seed(t)

	protocols, err := f.composer.Protocols(Filters{Plate: "Plate2"})
	require.NoError(t, err)
	require.Len(t, protocols, 1)
	assert.Equal(t, protocolB.ID, protocols[0].ID)
}

func TestProtocolsFilterIntersection(t *testing.T) {
	f := newFixture(t)
	protocolA, _, _, _ := f.seed(t)

	// Creator alice AND Plate1 both match protocol A only.
	protocols, err := f.composer.Protocols(Filters{Creator: "alice", Plate: "Plate1"})
	require.NoError(t, err)
	require.Len(t, protocols, 1)
	assert.Equal(t, protocolA.ID, protocols[0].ID)

	// Creator alice AND Plate2 intersect to nothing.
	protocols, err = f.composer.Protocols(Filters{Creator: "alice", Plate: "Plate2"})
	require.NoError(t, err)
	assert.Empty(t, protocols)
}

func TestProtocolsArchivedExcludedByDefault(t *testing.T) {
	f := newFixture(t)
	protocolA, _, _, _ := f.seed(t)
	require.NoError(t, f.protocols.Delete(protocolA.ID, false))

	protocols, err := f.composer.Protocols(Filters{})
	require.NoError(t, err)
	require.Len(t, protocols, 1)

	protocols, err = f.composer.Protocols(Filters{Archived: true})
	require.NoError(t, err)
	assert.Len(t, protocols, 2)
}

func TestRunsByProtocol(t *testing.T) {
	f := newFixture(t)
	protocolA, _, runA, _ := f.seed(t)

	runs, err := f.composer.Runs(Filters{Protocol: &protocolA.ID})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runA.ID, runs[0].ID)
}

func samplerRunDoc(plateLabel, sampleLabel string) document.Document {
	return document.Document{
		"sections": []any{
			map[string]any{
				"blocks": []any{
					map[string]any{
						"type":       "plate-sampler",
						"plateLabel": plateLabel,
						"plates": []any{
							map[string]any{
								"label": plateLabel,
								"coordinates": []any{
									map[string]any{"row": 0, "col": 0, "sampleLabel": sampleLabel},
								},
							},
						},
					},
				},
			},
		},
	}
}

func TestRunsByCombinedLabelFilters(t *testing.T) {
	f := newFixture(t)
	protocolA, _, _, _ := f.seed(t)

	runC, _, err := f.runs.Create(*protocolA.CurrentVersionID, samplerRunDoc("Plate7", "S7"), "alice", stamp)
	require.NoError(t, err)
	_, _, err = f.runs.Create(*protocolA.CurrentVersionID, samplerRunDoc("Plate7", "S8"), "alice", stamp)
	require.NoError(t, err)

	// Both runs carry Plate7; only one assigns S7, so the combined
	// filters intersect down to it.
	runs, err := f.composer.Runs(Filters{Plate: "Plate7", Sample: "S7"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runC.ID, runs[0].ID)

	runs, err = f.composer.Runs(Filters{Plate: "Plate7", Sample: "S404"})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestProtocolsByCombinedLabelFilters(t *testing.T) {
	f := newFixture(t)
	protocolA, _, _, _ := f.seed(t)

	_, _, err := f.runs.Create(*protocolA.CurrentVersionID, samplerRunDoc("Plate7", "S7"), "alice", stamp)
	require.NoError(t, err)

	protocols, err := f.composer.Protocols(Filters{Plate: "Plate7", Sample: "S7"})
	require.NoError(t, err)
	require.Len(t, protocols, 1)
	assert.Equal(t, protocolA.ID, protocols[0].ID)

	protocols, err = f.composer.Protocols(Filters{Plate: "Plate7", Sample: "S404"})
	require.NoError(t, err)
	assert.Empty(t, protocols)
}

func TestRunsByPlateLabel(t *testing.T) {
	f := newFixture(t)
	_, _, _, runB := f.seed(t)

	runs, err := f.composer.Runs(Filters{Plate: "Plate2"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runB.ID, runs[0].ID)
}

func TestSamplesByRunAndPlate(t *testing.T) {
	f := newFixture(t)
	protocolA, _, runA, _ := f.seed(t)

	runVersion, err := f.runs.CurrentVersion(runA)
	require.NoError(t, err)

	keyOne := store.SampleKey{SampleID: "S1", PlateID: "Plate1", RunVersionID: runVersion.ID, ProtocolVersionID: *protocolA.CurrentVersionID}
	keyTwo := store.SampleKey{SampleID: "S2", PlateID: "Plate9", RunVersionID: runVersion.ID, ProtocolVersionID: *protocolA.CurrentVersionID}
	_, _, err = f.samples.Upsert(keyOne, document.Document{"plateRow": 0}, "alice", stamp)
	require.NoError(t, err)
	_, _, err = f.samples.Upsert(keyTwo, document.Document{"plateRow": 1}, "alice", stamp)
	require.NoError(t, err)

	samples, err := f.composer.Samples(Filters{Run: &runA.ID})
	require.NoError(t, err)
	assert.Len(t, samples, 2)

	samples, err = f.composer.Samples(Filters{Run: &runA.ID, Plate: "Plate9"})
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, "S2", samples[0].SampleID)
}

func TestSamplesBySampleLabel(t *testing.T) {
	f := newFixture(t)
	protocolA, _, runA, _ := f.seed(t)

	runVersion, err := f.runs.CurrentVersion(runA)
	require.NoError(t, err)

	key := store.SampleKey{SampleID: "S1", PlateID: "Plate1", RunVersionID: runVersion.ID, ProtocolVersionID: *protocolA.CurrentVersionID}
	_, _, err = f.samples.Upsert(key, document.Document{}, "alice", stamp)
	require.NoError(t, err)

	samples, err := f.composer.Samples(Filters{Sample: "S1"})
	require.NoError(t, err)
	assert.Len(t, samples, 1)

	samples, err = f.composer.Samples(Filters{Sample: "S404"})
	require.NoError(t, err)
	assert.Empty(t, samples)
}
