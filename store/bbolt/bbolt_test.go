package bbolt

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"go.etcd.io/bbolt"

	"github.com/i3visio/simplectf/store"
	"github.com/i3visio/simplectf/store/storetest"
)

func TestImpl(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	t.Log(path)
	data, err := json.Marshal(Config{
		Path: path,
	})
	if err != nil {
		t.Fatal(err)
	}

	storetest.Common(t, Factory{}, json.RawMessage(data))
	storetest.Durable(t, Factory{}, json.RawMessage(data))
}

func TestFactoryValid(t *testing.T) {
	f := Factory{}

	t.Run("bad config", func(t *testing.T) {
		if err := f.Valid(json.RawMessage(`}`)); err == nil {
			t.Error("wanted parsing failure but got a successful result")
		}
	})

	t.Run("invalid config", func(t *testing.T) {
		for _, tt := range []struct {
			name string
			cfg  Config
			err  error
		}{
			{
				name: "missing path",
				cfg:  Config{},
				err:  ErrMissingPath,
			},
			{
				name: "unwritable folder",
				cfg:  Config{Path: filepath.Join(t.TempDir(), "nope", "db")},
				err:  ErrCantWriteToPath,
			},
		} {
			t.Run(tt.name, func(t *testing.T) {
				data, err := json.Marshal(tt.cfg)
				if err != nil {
					t.Fatal(err)
				}

				if err := f.Valid(json.RawMessage(data)); !errors.Is(err, tt.err) {
					t.Error(err)
				}
			})
		}
	})
}

func TestCorruptValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	data, _ := json.Marshal(Config{Path: path})

	s, err := Factory{}.Build(t.Context(), "ctf", data)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	bs := s.(*Store)
	if err := bs.bdb.Update(func(tx *bbolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists([]byte("ctf"))
		if err != nil {
			return err
		}
		return bkt.Put([]byte("mallory"), []byte("}"))
	}); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Get(t.Context(), "mallory"); !errors.Is(err, store.ErrPersistence) {
		t.Errorf("wanted ErrPersistence, got %v", err)
	}

	if _, _, err := s.ApplyAward(t.Context(), "mallory", "c1", 1); !errors.Is(err, store.ErrCantDecode) {
		t.Errorf("wanted ErrCantDecode, got %v", err)
	}

	if _, err := s.Snapshot(t.Context()); !errors.Is(err, store.ErrPersistence) {
		t.Errorf("wanted ErrPersistence, got %v", err)
	}
}
