package access

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/signsinfo/capacity/internal/capacity"
)

func TestDefaultTable(t *testing.T) {
	table := DefaultTable()

	tests := []struct {
		level      string
		capability Capability
		want       bool
	}{
		{"superadmin", EditMachine, true},
		{"admin", EditUsage, true},
		{"admin", EditJobs, true},
		{"employee", ViewUsage, true},
		{"employee", ViewReport, true},
		{"employee", EditUsage, false},
		{"guest", ViewUsage, false},
		{"unknown", ViewUsage, false},
	}

	for _, tt := range tests {
		t.Run(tt.level+"/"+string(tt.capability), func(t *testing.T) {
			if got := table.Allows(tt.level, tt.capability); got != tt.want {
				t.Errorf("Allows(%q, %q) = %v, want %v", tt.level, tt.capability, got, tt.want)
			}
		})
	}
}

func TestTableFromConfig(t *testing.T) {
	table, err := TableFromConfig(map[string][]string{
		"lead": {"view-usage", " edit-jobs "},
	})
	if err != nil {
		t.Fatalf("TableFromConfig: %v", err)
	}
	if !table.Allows("lead", EditJobs) || table.Allows("lead", EditMachine) {
		t.Errorf("lead capabilities = %v", table.Capabilities("lead"))
	}

	if _, err := TableFromConfig(map[string][]string{"x": {"fly"}}); err == nil {
		t.Error("unknown capability should fail")
	}
}

func TestGuardRequire(t *testing.T) {
	ctx := context.Background()

	admin := &Guard{Table: DefaultTable(), Provider: Static("admin")}
	if err := admin.Require(ctx, EditUsage); err != nil {
		t.Errorf("admin Require(EditUsage) = %v", err)
	}

	employee := &Guard{Table: DefaultTable(), Provider: Static("employee")}
	if err := employee.Require(ctx, EditUsage); !errors.Is(err, capacity.ErrForbidden) {
		t.Errorf("employee Require(EditUsage) = %v, want ErrForbidden", err)
	}

	var none *Guard
	if err := none.Require(ctx, EditMachine); err != nil {
		t.Errorf("nil guard Require = %v, want nil", err)
	}
}

func TestHTTPProviderCachesLevel(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") != "Bearer abc" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"level":"admin","firstName":"Pat","lastName":"Lee","email":"pat@example.com"}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(HTTPProviderConfig{LoginURL: srv.URL, Token: "abc"})
	for i := 0; i < 3; i++ {
		level, err := p.CurrentLevel(context.Background())
		if err != nil {
			t.Fatalf("CurrentLevel: %v", err)
		}
		if level != "admin" {
			t.Errorf("level = %q, want admin", level)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("login endpoint called %d times, want 1", calls.Load())
	}
}

func TestHTTPProviderUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewHTTPProvider(HTTPProviderConfig{LoginURL: srv.URL})
	if _, err := p.CurrentLevel(context.Background()); err == nil {
		t.Error("expected error for 401 response")
	}
}
