package checkpoint

import (
	"path/filepath"
	"testing"

	"github.com/op/go-logging"
)

func init() {
	logging.SetLevel(logging.WARNING, "checkpoint")
}

func TestSaveLoad(tst *testing.T) {
	db, err := Open(filepath.Join(tst.TempDir(), "checkpoint.db"))
	if err != nil {
		tst.Fatal(err)
	}
	defer db.Close()

	cio := NewCheckpointIO(db, "win-1.cat-2", 0)
	data, err := cio.Load()
	if err != nil || data != nil {
		tst.Error("Expected no checkpoint, got", data, err)
	}
	err = cio.Save(&CheckpointData{
		Parameters: map[string]float64{"kappa": 2.5, "branch.a": 0.1},
		Likelihood: -123.4,
		Iter:       3,
		Final:      true,
	})
	if err != nil {
		tst.Fatal(err)
	}
	data, err = NewCheckpointIO(db, "win-1.cat-2", 0).Load()
	if err != nil || data == nil {
		tst.Fatal("Error loading checkpoint:", err)
	}
	if !data.Final || data.Likelihood != -123.4 || data.Parameters["kappa"] != 2.5 {
		tst.Error("Wrong checkpoint data:", data)
	}
	other, _ := NewCheckpointIO(db, "other", 0).Load()
	if other != nil {
		tst.Error("Unexpected checkpoint for another key:", other)
	}
	keys, err := Keys(db)
	if err != nil || len(keys) != 1 || keys[0] != "win-1.cat-2" {
		tst.Error("Wrong keys:", keys, err)
	}
}

func TestOld(tst *testing.T) {
	cio := NewCheckpointIO(nil, "unit", 3600)
	if !cio.Old() {
		tst.Error("New checkpoint should be old")
	}
	cio.SetNow()
	if cio.Old() {
		tst.Error("Checkpoint should not be old right after saving")
	}
	// nil database is a no-op
	if err := cio.Save(&CheckpointData{}); err != nil {
		tst.Error(err)
	}
}
