package snapshot

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fleetops/butterfly/pkg/dat"
	"github.com/fleetops/butterfly/pkg/rumor"
)

func TestRunnerRestoreRoundTrip(t *testing.T) {
	file, err := dat.New(filepath.Join(t.TempDir(), "butterfly.dat"))
	require.NoError(t, err)

	st := rumor.NewState(nil)
	st.InsertMembership(&rumor.Membership{
		Member:     rumor.Member{ID: "m1", Incarnation: 1, Address: "10.0.0.1"},
		Health:     rumor.Alive,
		FromID:     "m1",
		Expiration: rumor.Forever(),
	})
	st.InsertDeparture(rumor.NewDeparture("m2"))
	require.NoError(t, file.Write(st))

	restored := rumor.NewState(nil)
	r := &Runner{State: restored, File: file, Interval: time.Minute}
	require.NoError(t, r.Restore())
	require.True(t, restored.Memberships.ContainsRumor("", "m1"))
	require.True(t, restored.Departures.ContainsRumor(rumor.DepartureKey, "m2"))
}

func TestRunnerRestoreMissingFile(t *testing.T) {
	file, err := dat.New(filepath.Join(t.TempDir(), "butterfly.dat"))
	require.NoError(t, err)
	r := &Runner{State: rumor.NewState(nil), File: file, Interval: time.Minute}
	require.NoError(t, r.Restore())
}

func TestRunnerUpdateCounterFoldsAllStores(t *testing.T) {
	st := rumor.NewState(nil)
	r := &Runner{State: st}
	require.Equal(t, uint64(0), r.updateCounter())
	st.InsertMembership(&rumor.Membership{
		Member:     rumor.Member{ID: "m1", Incarnation: 1},
		Health:     rumor.Alive,
		FromID:     "m1",
		Expiration: rumor.Forever(),
	})
	st.InsertDeparture(rumor.NewDeparture("m2"))
	require.Equal(t, uint64(2), r.updateCounter())
}
