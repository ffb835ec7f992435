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

package secrets

import (
	"errors"
	"fmt"
	"testing"

	"github.com/zalando/go-keyring"
)

func TestStoreRoundTrip(t *testing.T) {
	keyring.MockInit()
	s := NewStore()

	if err := s.SetGatewayKey("trello", "svc-key-1"); err != nil {
		t.Fatalf("SetGatewayKey() error: %v", err)
	}

	got, err := s.GatewayKey("trello")
	if err != nil {
		t.Fatalf("GatewayKey() error: %v", err)
	}
	if got != "svc-key-1" {
		t.Errorf("GatewayKey() = %q, want svc-key-1", got)
	}

	if err := s.DeleteGatewayKey("trello"); err != nil {
		t.Fatalf("DeleteGatewayKey() error: %v", err)
	}
	if _, err := s.GatewayKey("trello"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestStoreServicesAreNamespaced(t *testing.T) {
	keyring.MockInit()
	s := NewStore()

	s.SetGatewayKey("trello", "k-trello")
	s.SetGatewayKey("github", "k-github")

	if got, _ := s.GatewayKey("trello"); got != "k-trello" {
		t.Errorf("trello key = %q", got)
	}
	if got, _ := s.GatewayKey("github"); got != "k-github" {
		t.Errorf("github key = %q", got)
	}
}

func TestStoreNotFound(t *testing.T) {
	keyring.MockInit()
	s := NewStore()

	_, err := s.GatewayKey("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if err := s.DeleteGatewayKey("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("delete err = %v, want ErrNotFound", err)
	}
}

func TestIsUnavailableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("keychain is locked"), true},
		{errors.New("DBus connection refused"), true},
		{errors.New("User canceled prompt"), true},
		{fmt.Errorf("no such entry"), false},
	}
	for _, tt := range tests {
		if got := isUnavailableError(tt.err); got != tt.want {
			t.Errorf("isUnavailableError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
