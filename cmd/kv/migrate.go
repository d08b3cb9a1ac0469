package kv

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cmdUtil "github.com/mdorier/mochi-rkv/cmd/util"
	rkv "github.com/mdorier/mochi-rkv/lib/kv"
)

// MigrateCmd snapshots a backend into an output directory. The source
// backend becomes terminal once the snapshot is taken.
var MigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Snapshot a backend's state into a directory",
	Long: `Snapshot a backend's state into a directory.

The snapshot files can later be fed to a recover factory to reconstruct
the database elsewhere. After a successful snapshot the source backend is
terminal and rejects further operations.`,
	Args:              cobra.NoArgs,
	PersistentPreRunE: processConfig,
	RunE:              runMigrate,
}

func init() {
	setupBackendFlags(MigrateCmd)
	MigrateCmd.Flags().String("out", "snapshot", cmdUtil.WrapString(
		"Directory the snapshot files are copied into"))
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	outDir := viper.GetString("out")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	handle, st := db.StartMigration()
	if st != rkv.StatusOK {
		return fmt.Errorf("starting migration: %w", st.Err())
	}

	// Copy the files out before closing the handle: the handle owns the
	// snapshot directory and removes it on Close.
	for _, name := range handle.Files() {
		src, err := os.Open(filepath.Join(handle.Root(), name))
		if err != nil {
			handle.Cancel()
			handle.Close()
			return err
		}
		dst, err := os.Create(filepath.Join(outDir, name))
		if err != nil {
			src.Close()
			handle.Cancel()
			handle.Close()
			return err
		}
		_, err = io.Copy(dst, src)
		src.Close()
		if cerr := dst.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			handle.Cancel()
			handle.Close()
			return err
		}
		fmt.Printf("%s\n", filepath.Join(outDir, name))
	}
	return handle.Close()
}
