package health

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ivlasov/passvault/internal/totp"
	"github.com/ivlasov/passvault/internal/vault"
)

func TestScore_Buckets(t *testing.T) {
	tests := []struct {
		password string
		want     Strength
	}{
		{"short", StrengthWeak},                // under 8 characters
		{"1234567", StrengthWeak},              // under 8 characters
		{"password123", StrengthWeak},          // denylist
		{"PASSWORD123", StrengthWeak},          // denylist, case-insensitive
		{"aaaaaaaa", StrengthWeak},             // one class, repeat run
		{"kumquats", StrengthWeak},             // one class, 8 chars: 1 point
		{"kumquat7", StrengthWeak},             // two classes: 2 points
		{"Kumquat7", StrengthFair},             // three classes: 3 points
		{"Kumquat7!", StrengthFair},            // four classes: 4 points
		{"Kumquat7!Plum", StrengthGood},        // four classes + 12-length tier
		{"Kumquat7!PlumPies", StrengthStrong},  // four classes + 16-length tier
		{"Kumquat123!PlumPi", StrengthGood},    // strong minus ascending run
		{"qwerty7!PlumPiesZ", StrengthGood},    // strong minus keyboard run
		{"Kumqqqat7!PlumPie", StrengthGood},    // strong minus repeat run
		{"correcthorsebatterystaple", StrengthFair}, // one class + length tier
	}

	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			require.Equal(t, tt.want, Score(tt.password), "password %q", tt.password)
		})
	}
}

func passwordVaultItem(id, password string, updatedAt int64, withTOTP bool) vault.Item {
	data := &vault.PasswordData{Username: "u", Password: password}
	if withTOTP {
		data.TOTP = &totp.Config{Secret: "GEZDGNBVGY3TQOJQ"}
	}
	return vault.Item{ID: id, Name: id, UpdatedAt: updatedAt, Data: data}
}

func TestAnalyze_ReusedAndWeak(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	fresh := now.Add(-time.Hour).UnixMilli()

	var items []vault.Item
	for i := 0; i < 3; i++ {
		items = append(items, passwordVaultItem(fmt.Sprintf("re%d", i), "password123", fresh, true))
	}
	for i := 0; i < 7; i++ {
		items = append(items, passwordVaultItem(fmt.Sprintf("ok%d", i), fmt.Sprintf("Kumquat7!PlumPie%d", i), fresh, true))
	}

	r := Analyze(items, now)
	require.Equal(t, 10, r.TotalPasswords)
	require.Equal(t, 3, r.ReusedCount)
	require.Len(t, r.ReusedGroups, 1)
	require.Len(t, r.ReusedGroups[0], 3)
	require.Equal(t, 3, r.WeakCount)
	require.ElementsMatch(t, []string{"re0", "re1", "re2"}, r.WeakItemIDs)

	healthy := make([]vault.Item, 0, 10)
	for i := 0; i < 10; i++ {
		healthy = append(healthy, passwordVaultItem(fmt.Sprintf("h%d", i), fmt.Sprintf("Kumquat7!PlumPie%d", i), fresh, true))
	}
	rHealthy := Analyze(healthy, now)

	require.GreaterOrEqual(t, rHealthy.Score, 90)
	require.Less(t, r.Score, rHealthy.Score)
}

func TestAnalyze_OldAndMissingTOTP(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	stale := now.Add(-91 * 24 * time.Hour).UnixMilli()
	fresh := now.Add(-24 * time.Hour).UnixMilli()

	items := []vault.Item{
		passwordVaultItem("old", "Kumquat7!PlumPieA", stale, true),
		passwordVaultItem("no2fa", "Kumquat7!PlumPieB", fresh, false),
		passwordVaultItem("fine", "Kumquat7!PlumPieC", fresh, true),
	}

	r := Analyze(items, now)
	require.Equal(t, []string{"old"}, r.OldItemIDs)
	require.Equal(t, []string{"no2fa"}, r.NoTOTPItemIDs)
	require.Equal(t, 0, r.WeakCount)
	require.Equal(t, 0, r.ReusedCount)
}

func TestAnalyze_SkipsDeletedAndNonPasswords(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	deletedAt := now.UnixMilli()

	trashed := passwordVaultItem("gone", "password123", now.UnixMilli(), false)
	trashed.DeletedAt = &deletedAt

	items := []vault.Item{
		trashed,
		{ID: "note", Data: &vault.NoteData{Content: "x"}},
	}

	r := Analyze(items, now)
	require.Equal(t, 0, r.TotalPasswords)
	require.Equal(t, 100, r.Score)
}

func TestAnalyze_ScoreFloor(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	stale := now.Add(-100 * 24 * time.Hour).UnixMilli()

	var items []vault.Item
	for i := 0; i < 4; i++ {
		items = append(items, passwordVaultItem(fmt.Sprintf("bad%d", i), "password123", stale, false))
	}

	r := Analyze(items, now)
	// every password weak, reused, old and without 2FA: full penalty
	require.Equal(t, 0, r.Score)
}
