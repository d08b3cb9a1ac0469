package kv

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cmdUtil "github.com/mdorier/mochi-rkv/cmd/util"
	rkv "github.com/mdorier/mochi-rkv/lib/kv"

	// Register the built-in backends.
	_ "github.com/mdorier/mochi-rkv/lib/kv/engines/bolt"
	_ "github.com/mdorier/mochi-rkv/lib/kv/engines/leveldb"
	_ "github.com/mdorier/mochi-rkv/lib/kv/engines/mem"
	_ "github.com/mdorier/mochi-rkv/lib/kv/engines/ordmap"
	_ "github.com/mdorier/mochi-rkv/lib/kv/engines/pebble"
)

// KvCmd groups the key-value operations. Every invocation opens the
// configured backend, runs one operation and closes it again, which is
// mostly useful with the disk backends.
var KvCmd = &cobra.Command{
	Use:   "kv",
	Short: "Run key-value operations against a backend",
	Long: `Run key-value operations against a locally opened backend.

The backend is selected with --backend and configured with --backend-config
(a JSON document). Flags can also be set through RKV_* environment
variables or an .env file.`,
	PersistentPreRunE: processConfig,
}

func init() {
	setupBackendFlags(KvCmd)

	KvCmd.AddCommand(putCmd)
	KvCmd.AddCommand(getCmd)
	KvCmd.AddCommand(delCmd)
	KvCmd.AddCommand(existsCmd)
	KvCmd.AddCommand(countCmd)
	KvCmd.AddCommand(listCmd)
	KvCmd.AddCommand(configCmd)

	listCmd.Flags().String("from", "", cmdUtil.WrapString("Start listing after this key"))
	listCmd.Flags().Bool("inclusive", false, cmdUtil.WrapString("Include the start key itself when it matches"))
	listCmd.Flags().String("prefix", "", cmdUtil.WrapString("Only list keys with this prefix"))
	listCmd.Flags().Int("max", 32, cmdUtil.WrapString("Maximum number of keys to list"))
}

// setupBackendFlags adds the backend selection flags shared by the kv,
// bench and migrate commands.
func setupBackendFlags(cmd *cobra.Command) {
	key := "backend"
	cmd.PersistentFlags().String(key, "mem", cmdUtil.WrapString(
		fmt.Sprintf("Backend type to open. One of: %s", strings.Join(rkv.BackendTypes(), ", "))))

	key = "backend-config"
	cmd.PersistentFlags().String(key, "", cmdUtil.WrapString(
		"JSON configuration document passed to the backend factory (e.g. '{\"path\": \"/tmp/db\"}')"))

	key = "metrics"
	cmd.PersistentFlags().Bool(key, false, cmdUtil.WrapString(
		"Wrap the backend with VictoriaMetrics operation counters"))
}

// processConfig binds flags and environment variables.
func processConfig(cmd *cobra.Command, _ []string) error {
	cmdUtil.InitEnvConfig()
	return cmdUtil.BindCommandFlags(cmd)
}

// openDatabase opens the configured backend, optionally instrumented.
func openDatabase() (rkv.Database, error) {
	backendType := viper.GetString("backend")
	config := viper.GetString("backend-config")
	db, st := rkv.MakeDatabase(backendType, config)
	if st != rkv.StatusOK {
		return nil, fmt.Errorf("opening backend %q: %w", backendType, st.Err())
	}
	if viper.GetBool("metrics") {
		db = rkv.Instrument(backendType, db)
	}
	return db, nil
}

// --------------------------------------------------------------------------
// Commands
// --------------------------------------------------------------------------

var putCmd = &cobra.Command{
	Use:   "put KEY VALUE",
	Short: "Insert or update a key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()
		key, val := []byte(args[0]), []byte(args[1])
		st := db.Put(rkv.ModeDefault,
			rkv.Wrap(key), []uint64{uint64(len(key))},
			rkv.Wrap(val), []uint64{uint64(len(val))})
		return st.Err()
	},
}

var getCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Read the value of a key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()
		key := []byte(args[0])

		// Size the buffer from the stored value length.
		vsizes := []uint64{0}
		if st := db.Length(rkv.ModeDefault, rkv.Wrap(key), []uint64{uint64(len(key))}, vsizes); st != rkv.StatusOK {
			return st.Err()
		}
		if vsizes[0] == rkv.KeyNotFound {
			return fmt.Errorf("key %q not found", args[0])
		}
		buf := make([]byte, vsizes[0])
		vals := rkv.Wrap(buf)
		if st := db.Get(rkv.ModeDefault, true, rkv.Wrap(key), []uint64{uint64(len(key))}, &vals, vsizes); st != rkv.StatusOK {
			return st.Err()
		}
		fmt.Printf("%s\n", buf[:vals.Size])
		return nil
	},
}

var delCmd = &cobra.Command{
	Use:   "del KEY",
	Short: "Delete a key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()
		key := []byte(args[0])
		return db.Erase(rkv.ModeDefault, rkv.Wrap(key), []uint64{uint64(len(key))}).Err()
	},
}

var existsCmd = &cobra.Command{
	Use:   "exists KEY",
	Short: "Check whether a key exists",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()
		key := []byte(args[0])
		flags := rkv.WrapBits(make([]byte, 1), 1)
		if st := db.Exists(rkv.ModeDefault, rkv.Wrap(key), []uint64{uint64(len(key))}, flags); st != rkv.StatusOK {
			return st.Err()
		}
		fmt.Println(flags.Get(0))
		return nil
	},
}

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Print the number of stored pairs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()
		n, st := db.Count(rkv.ModeDefault)
		if st != rkv.StatusOK {
			return st.Err()
		}
		fmt.Println(n)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List keys in order (sorted backends only)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		mode := rkv.ModeDefault
		if viper.GetBool("inclusive") {
			mode |= rkv.ModeInclusive
		}
		fromKey := []byte(viper.GetString("from"))
		prefix := []byte(viper.GetString("prefix"))
		max := viper.GetInt("max")

		buf := make([]byte, max*256)
		keys := rkv.Wrap(buf)
		ksizes := make([]uint64, max)
		st := db.ListKeys(mode, true, fromKey, prefix, &keys, ksizes)
		if st != rkv.StatusOK {
			return st.Err()
		}
		var off uint64
		for _, ks := range ksizes {
			if ks == rkv.NoMoreKeys {
				break
			}
			if ks == rkv.BufTooSmall {
				continue
			}
			fmt.Printf("%s\n", buf[off:off+ks])
			off += ks
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the backend's effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()
		fmt.Println(db.Config())
		return nil
	},
}
