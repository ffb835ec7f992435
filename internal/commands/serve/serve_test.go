// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package serve

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/tombee/apibridge/internal/audit"
	"github.com/tombee/apibridge/internal/config"
)

func TestOpenAuditStoreConfiguredPath(t *testing.T) {
	cfg := &config.Config{}
	cfg.Audit.Path = filepath.Join(t.TempDir(), "audit.db")

	store, err := openAuditStore(cfg, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("openAuditStore() error: %v", err)
	}
	defer store.Close()

	if err := store.Append(context.Background(), audit.Record{
		Operation: "svc_get",
		Outcome:   "success",
	}); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if _, err := os.Stat(cfg.Audit.Path); err != nil {
		t.Errorf("database file was not created: %v", err)
	}
}

func TestOpenAuditStoreFallsBackToMemory(t *testing.T) {
	// A path whose parent is a regular file cannot be opened as a database.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{}
	cfg.Audit.Path = filepath.Join(blocker, "audit.db")

	store, err := openAuditStore(cfg, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("openAuditStore() error: %v", err)
	}
	defer store.Close()

	// The in-memory store still records and serves the trail.
	if err := store.Append(context.Background(), audit.Record{
		Operation: "svc_get",
		Outcome:   "blocked",
	}); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	records, err := store.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if len(records) != 1 || records[0].Operation != "svc_get" {
		t.Errorf("records = %+v, want one svc_get entry", records)
	}
}
