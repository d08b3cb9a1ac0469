package kv

import "testing"

type stubDatabase struct {
	Database
	config string
}

func TestRegistry(t *testing.T) {
	RegisterBackend("stub",
		func(config string) (Database, Status) {
			if config == "bad" {
				return nil, StatusInvalidConf
			}
			return &stubDatabase{config: config}, StatusOK
		},
		func(config, migrationConfig, root string, files []string) (Database, Status) {
			return &stubDatabase{config: config}, StatusOK
		})

	if !HasBackendType("stub") {
		t.Fatal("registered backend not found")
	}
	if HasBackendType("no-such-backend") {
		t.Error("unknown backend reported as present")
	}

	db, st := MakeDatabase("stub", "{}")
	if st != StatusOK || db == nil {
		t.Fatalf("MakeDatabase = (%v, %s)", db, st)
	}
	if _, st := MakeDatabase("stub", "bad"); st != StatusInvalidConf {
		t.Errorf("factory error not propagated: %s", st)
	}
	if _, st := MakeDatabase("no-such-backend", "{}"); st != StatusInvalidType {
		t.Errorf("unknown type: status %s, want InvalidType", st)
	}

	if _, st := RecoverDatabase("stub", "{}", "{}", "/tmp", []string{"f"}); st != StatusOK {
		t.Errorf("RecoverDatabase failed with %s", st)
	}
	if _, st := RecoverDatabase("no-such-backend", "{}", "{}", "/tmp", nil); st != StatusInvalidType {
		t.Errorf("unknown type recover: status %s, want InvalidType", st)
	}

	RegisterBackend("stub-no-recover", func(string) (Database, Status) {
		return &stubDatabase{}, StatusOK
	}, nil)
	if _, st := RecoverDatabase("stub-no-recover", "", "", "", nil); st != StatusNotSupported {
		t.Errorf("recover without factory: status %s, want OperationUnsupported", st)
	}
}

func TestStatusString(t *testing.T) {
	cases := map[Status]string{
		StatusOK:           "OK",
		StatusInvalidType:  "InvalidType",
		StatusInvalidConf:  "InvalidConfig",
		StatusInvalidArg:   "InvalidArgs",
		StatusNotFound:     "NotFound",
		StatusSizeError:    "BufferSize",
		StatusKeyExists:    "KeyExists",
		StatusNotSupported: "OperationUnsupported",
		StatusInvalidMode:  "ModeUnsupported",
		StatusCorruption:   "Corruption",
		StatusIOError:      "IOError",
		StatusTimedOut:     "TimedOut",
		StatusMigrated:     "Migrated",
		StatusOther:        "Other",
	}
	for st, want := range cases {
		if st.String() != want {
			t.Errorf("%d.String() = %q, want %q", st, st.String(), want)
		}
	}

	if StatusOK.Err() != nil {
		t.Error("StatusOK.Err() is not nil")
	}
	if StatusIOError.Err() == nil {
		t.Error("StatusIOError.Err() is nil")
	}
}

func TestModeSubsetOf(t *testing.T) {
	supported := ModeAppend | ModeConsume | ModeWait
	if !ModeAppend.SubsetOf(supported) {
		t.Error("single supported bit rejected")
	}
	if !(ModeAppend | ModeWait).SubsetOf(supported) {
		t.Error("supported combination rejected")
	}
	if (ModeAppend | ModeSuffix).SubsetOf(supported) {
		t.Error("unsupported bit accepted")
	}
	if !ModeDefault.SubsetOf(supported) {
		t.Error("default mode rejected")
	}
	if !ModeKeepLast.Has(ModeIgnoreKeys) {
		t.Error("ModeKeepLast does not imply ModeIgnoreKeys")
	}
}
