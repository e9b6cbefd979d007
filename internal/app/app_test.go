package app

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"waterlog/internal/backup"
	"waterlog/internal/config"
	"waterlog/internal/database"
	"waterlog/internal/intake"
	"waterlog/internal/testutil"
	"waterlog/internal/vault"
)

// newTestConfig returns a config rooted in a temp dir with a sqlite database
// and, when withVault is set, a filesystem vault with auto backup.
func newTestConfig(t *testing.T, withVault bool) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.NewConfig("test-host", base)
	cfg.Timezone = "UTC"
	if withVault {
		cfg.Backup = config.BackupConfig{
			Auto:  true,
			Vault: config.VaultConfig{Type: "filesystem", Name: "local", FSVaultRoot: filepath.Join(base, "vault")},
		}
	}
	return cfg
}

func openTestApp(t *testing.T, cfg *config.Config, operation string) *WaterApp {
	t.Helper()
	return openTestAppAt(t, cfg, operation, testutil.FixedClock())
}

func openTestAppAt(t *testing.T, cfg *config.Config, operation string, clock *testutil.StubClock) *WaterApp {
	t.Helper()
	a, err := newWaterApp(cfg, operation, clock, io.Discard)
	if err != nil {
		t.Fatalf("newWaterApp() error = %v", err)
	}
	return a
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWaterApp_JournalsMutations(t *testing.T) {
	cfg := newTestConfig(t, false)

	a := openTestApp(t, cfg, "AddWater")
	if _, err := a.AddWater(250); err != nil {
		t.Fatalf("AddWater() error = %v", err)
	}
	if _, err := a.AddWater(100); err != nil {
		t.Fatalf("AddWater() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	a = openTestApp(t, cfg, "Ops")
	defer a.Close()

	ops, err := a.GetHistory(10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(ops) != 1 {
		t.Fatalf("len(ops) = %d, want 1 (one record per session)", len(ops))
	}
	if ops[0].Operation != "AddWater" || ops[0].Parameters != "250" || ops[0].Status != StatusSuccess {
		t.Errorf("operation = %+v", ops[0])
	}
	if !ops[0].FinishedAt.Valid {
		t.Error("operation not finished")
	}
	if got := a.Progress().TodayTotal; got != 350 {
		t.Errorf("TodayTotal after reopen = %d, want 350", got)
	}
}

func TestWaterApp_ReadOnlySessionNotJournaled(t *testing.T) {
	cfg := newTestConfig(t, false)

	a := openTestApp(t, cfg, "Today")
	_ = a.Progress()
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	a = openTestApp(t, cfg, "Ops")
	defer a.Close()
	ops, err := a.GetHistory(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 0 {
		t.Errorf("len(ops) = %d, want 0", len(ops))
	}
}

func TestWaterApp_RejectedFirstChangeLeavesNoTrace(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(a *WaterApp, clock *testutil.StubClock) error
		wantErr error
	}{
		{
			name: "zero amount",
			mutate: func(a *WaterApp, _ *testutil.StubClock) error {
				_, err := a.AddWater(0)
				return err
			},
			wantErr: intake.ErrInvalidAmount,
		},
		{
			name: "negative goal",
			mutate: func(a *WaterApp, _ *testutil.StubClock) error {
				return a.SetDailyGoal(-1)
			},
			wantErr: intake.ErrInvalidGoal,
		},
		{
			name: "clock unavailable",
			mutate: func(a *WaterApp, clock *testutil.StubClock) error {
				now := clock.Now()
				clock.Set(time.Time{})
				defer clock.Set(now)
				_, err := a.AddWater(250)
				return err
			},
			wantErr: intake.ErrClockUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newTestConfig(t, true)
			clock := testutil.FixedClock()

			a := openTestAppAt(t, cfg, "AddWater", clock)
			if err := tt.mutate(a, clock); !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if err := a.Close(); err != nil {
				t.Fatalf("Close() error = %v", err)
			}

			v, err := vault.NewFileSystemVault("local", cfg.Backup.Vault.FSVaultRoot)
			if err != nil {
				t.Fatal(err)
			}
			version, err := v.GetSnapshotVersion(cfg.HostID)
			if err != nil {
				t.Fatal(err)
			}
			if version != 0 {
				t.Errorf("snapshot version = %d, want 0 (nothing pushed)", version)
			}

			a = openTestApp(t, cfg, "Ops")
			defer a.Close()
			ops, err := a.GetHistory(10)
			if err != nil {
				t.Fatal(err)
			}
			if len(ops) != 0 {
				t.Errorf("ops = %+v, want none", ops)
			}
		})
	}
}

func TestWaterApp_LongSessionJournal(t *testing.T) {
	t.Run("rejected input does not taint the session", func(t *testing.T) {
		cfg := newTestConfig(t, false)

		a := openTestApp(t, cfg, "Serve")
		if _, err := a.AddWater(-5); !errors.Is(err, intake.ErrInvalidAmount) {
			t.Fatalf("AddWater(-5) error = %v", err)
		}
		if _, err := a.AddWater(250); err != nil {
			t.Fatalf("AddWater(250) error = %v", err)
		}
		if err := a.SetDailyGoal(0); !errors.Is(err, intake.ErrInvalidGoal) {
			t.Fatalf("SetDailyGoal(0) error = %v", err)
		}
		if err := a.SetDailyGoal(2500); err != nil {
			t.Fatalf("SetDailyGoal(2500) error = %v", err)
		}
		a.Close()

		a = openTestApp(t, cfg, "Ops")
		defer a.Close()
		ops, _ := a.GetHistory(10)
		if len(ops) != 1 {
			t.Fatalf("len(ops) = %d, want 1", len(ops))
		}
		if ops[0].Operation != "Serve" || ops[0].Parameters != "250" || ops[0].Status != StatusSuccess {
			t.Errorf("operation = %+v, want Serve/250/success", ops[0])
		}
	})

	t.Run("failure after a change marks the session", func(t *testing.T) {
		cfg := newTestConfig(t, false)
		clock := testutil.FixedClock()

		a := openTestAppAt(t, cfg, "Serve", clock)
		if _, err := a.AddWater(250); err != nil {
			t.Fatalf("AddWater() error = %v", err)
		}
		now := clock.Now()
		clock.Set(time.Time{})
		if _, err := a.AddWater(100); !errors.Is(err, intake.ErrClockUnavailable) {
			t.Fatalf("AddWater() error = %v, want ErrClockUnavailable", err)
		}
		clock.Set(now)
		a.Close()

		a = openTestApp(t, cfg, "Ops")
		defer a.Close()
		ops, _ := a.GetHistory(10)
		if len(ops) != 1 || ops[0].Status != StatusError {
			t.Errorf("ops = %+v, want one errored operation", ops)
		}
	})
}

func TestWaterApp_RecentEntries(t *testing.T) {
	cfg := newTestConfig(t, false)
	clock := testutil.FixedClock()

	a := openTestAppAt(t, cfg, "AddWater", clock)
	defer a.Close()

	a.AddWater(300)
	clock.Advance(24 * time.Hour)
	a.AddWater(500)
	a.AddWater(200)

	tests := []struct {
		days    int
		want    []int
		wantErr bool
	}{
		{days: 1, want: []int{500, 200}},
		{days: 2, want: []int{300, 500, 200}},
		{days: 0, wantErr: true},
	}

	for _, tt := range tests {
		got, err := a.RecentEntries(tt.days)
		if (err != nil) != tt.wantErr {
			t.Fatalf("RecentEntries(%d) error = %v, wantErr %v", tt.days, err, tt.wantErr)
		}
		if tt.wantErr {
			continue
		}
		if len(got) != len(tt.want) {
			t.Fatalf("RecentEntries(%d) = %+v, want amounts %v", tt.days, got, tt.want)
		}
		for i, e := range got {
			if e.Amount != tt.want[i] {
				t.Errorf("RecentEntries(%d)[%d].Amount = %d, want %d", tt.days, i, e.Amount, tt.want[i])
			}
		}
	}
}

type unusableVault struct {
	backup.Vault
}

func (unusableVault) ValidateSetup() error {
	return errors.New("bucket not reachable")
}

func TestNewBackupService_ValidatesVault(t *testing.T) {
	cfg := newTestConfig(t, true)

	if _, err := newBackupServiceWithVault(cfg, unusableVault{Vault: testutil.NewTestVault()}, discardLogger()); err == nil {
		t.Error("expected error for a vault that fails its setup check")
	}
	if _, err := newBackupServiceWithVault(cfg, testutil.NewTestVault(), discardLogger()); err != nil {
		t.Errorf("newBackupServiceWithVault() error = %v", err)
	}
}

func TestWaterApp_DefaultGoalFromConfig(t *testing.T) {
	cfg := newTestConfig(t, false)
	cfg.DefaultGoal = 1500

	a := openTestApp(t, cfg, "Goal")
	if a.DailyGoal() != 1500 {
		t.Errorf("DailyGoal() = %d, want 1500", a.DailyGoal())
	}
	if err := a.SetDailyGoal(2200); err != nil {
		t.Fatalf("SetDailyGoal() error = %v", err)
	}
	a.Close()

	a = openTestApp(t, cfg, "Goal")
	defer a.Close()
	if a.DailyGoal() != 2200 {
		t.Errorf("DailyGoal() after reopen = %d, want 2200 (saved goal beats config default)", a.DailyGoal())
	}
}

func TestWaterApp_BackupNotConfigured(t *testing.T) {
	a := openTestApp(t, newTestConfig(t, false), "Backup")
	defer a.Close()

	if _, err := a.Backup(); !errors.Is(err, ErrBackupNotConfigured) {
		t.Errorf("Backup() error = %v, want ErrBackupNotConfigured", err)
	}
}

func TestWaterApp_AutoBackupAndRestore(t *testing.T) {
	cfg := newTestConfig(t, true)

	a := openTestApp(t, cfg, "AddWater")
	if _, err := a.AddWater(400); err != nil {
		t.Fatalf("AddWater() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	versionFile := filepath.Join(cfg.Backup.Vault.FSVaultRoot, "snapshots", "test-host.version")
	data, err := os.ReadFile(versionFile)
	if err != nil {
		t.Fatalf("reading snapshot version: %v", err)
	}
	if string(data) != "1" {
		t.Errorf("snapshot version = %q, want %q", data, "1")
	}

	// Lose the local database: opening now must refuse to run behind the vault.
	dbPath, err := database.PathFromConfig(cfg.Database, cfg.HostID)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(dbPath); err != nil {
		t.Fatal(err)
	}
	if _, err := newWaterApp(cfg, "Today", testutil.FixedClock(), io.Discard); !errors.Is(err, backup.ErrBehindRemote) {
		t.Fatalf("newWaterApp() error = %v, want ErrBehindRemote", err)
	}

	os.Remove(dbPath)
	if err := restoreDatabase(cfg, "", discardLogger()); err != nil {
		t.Fatalf("restoreDatabase() error = %v", err)
	}

	a = openTestApp(t, cfg, "Today")
	defer a.Close()
	if got := a.Progress().TodayTotal; got != 400 {
		t.Errorf("TodayTotal after restore = %d, want 400", got)
	}
}

func TestWaterApp_ExplicitBackupVersion(t *testing.T) {
	cfg := newTestConfig(t, true)
	cfg.Backup.Auto = false

	a := openTestApp(t, cfg, "AddWater")
	a.AddWater(100)
	a.Close()

	a = openTestApp(t, cfg, "Backup")
	defer a.Close()
	version, err := a.Backup()
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if version != 1 {
		t.Errorf("Backup() version = %d, want 1", version)
	}
}

func TestRestoreDatabase_Encrypted(t *testing.T) {
	cfg := newTestConfig(t, true)
	cfg.Backup.Encrypt = true
	cfg.Encryption = config.EncryptionConfig{Type: "test"}

	a := openTestApp(t, cfg, "AddWater")
	a.AddWater(275)
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	dbPath, _ := database.PathFromConfig(cfg.Database, cfg.HostID)
	os.Remove(dbPath)

	if err := restoreDatabase(cfg, "any", discardLogger()); err != nil {
		t.Fatalf("restoreDatabase() error = %v", err)
	}

	a = openTestApp(t, cfg, "Today")
	defer a.Close()
	if got := a.Progress().TodayTotal; got != 275 {
		t.Errorf("TodayTotal after restore = %d, want 275", got)
	}
}
