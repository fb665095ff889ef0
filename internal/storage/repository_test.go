package storage

import (
	"context"
	"strings"
	"testing"
)

type nopRepo struct{}

func (nopRepo) Close()                                            {}
func (nopRepo) EnsureTable(context.Context, TableSpec) error      { return nil }
func (nopRepo) InsertRows(context.Context, string, []string, [][]any) (int64, error) {
	return 0, nil
}

func TestRegisterAndNew(t *testing.T) {
	var gotDSN string
	Register("test-kind", func(ctx context.Context, cfg Config) (Repository, error) {
		gotDSN = cfg.DSN
		return nopRepo{}, nil
	})

	repo, err := New(context.Background(), Config{Kind: "test-kind", DSN: "dsn://x"})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if repo == nil {
		t.Fatal("New() returned nil repository")
	}
	if gotDSN != "dsn://x" {
		t.Fatalf("factory saw DSN %q", gotDSN)
	}
}

func TestNewRejectsBadKinds(t *testing.T) {
	if _, err := New(context.Background(), Config{Kind: ""}); err == nil {
		t.Fatal("New() with empty kind did not fail")
	}
	_, err := New(context.Background(), Config{Kind: "no-such-backend"})
	if err == nil {
		t.Fatal("New() with unknown kind did not fail")
	}
	if !strings.Contains(err.Error(), "no-such-backend") {
		t.Fatalf("error does not name the kind: %v", err)
	}
}

func TestRegisterPanics(t *testing.T) {
	mustPanic := func(name string, fn func()) {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatal("expected panic")
				}
			}()
			fn()
		})
	}

	factory := func(ctx context.Context, cfg Config) (Repository, error) { return nopRepo{}, nil }

	mustPanic("empty kind", func() { Register("", factory) })
	mustPanic("nil factory", func() { Register("test-nil", nil) })
	mustPanic("duplicate kind", func() {
		Register("test-dup", factory)
		Register("test-dup", factory)
	})
}
