// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"testing"

	"github.com/coomerdl/coomerdl/pkg/catalog"
	"github.com/coomerdl/coomerdl/pkg/eventbus"
	"github.com/coomerdl/coomerdl/pkg/httpclient"
	"github.com/coomerdl/coomerdl/pkg/profile"
)

func TestRegistryOpenIsIdempotent(t *testing.T) {
	dataDir := t.TempDir()
	downloadDir := t.TempDir()
	key := profile.Key{Service: "onlyfans", Username: "alice"}

	store := catalog.NewStore(profile.CatalogPath(dataDir, key))
	if err := store.Save(&catalog.Catalog{ProfileName: "alice"}); err != nil {
		t.Fatal(err)
	}

	cfg := Config{DataDir: dataDir, DownloadDir: downloadDir, MaxConcurrent: 2}
	reg := newRegistry(cfg, eventbus.New(), httpclient.New(httpclient.Options{}))

	if err := reg.Open(key); err != nil {
		t.Fatal(err)
	}
	first, _ := reg.Get(key)

	if err := reg.Open(key); err != nil {
		t.Fatal(err)
	}
	second, _ := reg.Get(key)

	if first != second {
		t.Fatal("expected second Open to be a no-op returning the same Pipeline")
	}

	reg.CloseAll()
	if _, ok := reg.Get(key); ok {
		t.Fatal("expected CloseAll to unregister the pipeline")
	}
}

func TestRegistryCloseUnknownKeyIsNoop(t *testing.T) {
	cfg := Config{DataDir: t.TempDir(), DownloadDir: t.TempDir(), MaxConcurrent: 2}
	reg := newRegistry(cfg, eventbus.New(), httpclient.New(httpclient.Options{}))

	if err := reg.Close(profile.Key{Service: "x", Username: "y"}); err != nil {
		t.Fatalf("expected nil error closing unknown key, got %v", err)
	}
}

func TestRegistryKeysReflectsOpenProfiles(t *testing.T) {
	dataDir := t.TempDir()
	downloadDir := t.TempDir()
	key := profile.Key{Service: "onlyfans", Username: "alice"}
	store := catalog.NewStore(profile.CatalogPath(dataDir, key))
	if err := store.Save(&catalog.Catalog{ProfileName: "alice"}); err != nil {
		t.Fatal(err)
	}

	cfg := Config{DataDir: dataDir, DownloadDir: downloadDir, MaxConcurrent: 2}
	reg := newRegistry(cfg, eventbus.New(), httpclient.New(httpclient.Options{}))
	defer reg.CloseAll()

	if len(reg.Keys()) != 0 {
		t.Fatal("expected no open profiles initially")
	}
	if err := reg.Open(key); err != nil {
		t.Fatal(err)
	}
	if keys := reg.Keys(); len(keys) != 1 || keys[0] != key {
		t.Fatalf("expected [%v], got %v", key, keys)
	}
}
