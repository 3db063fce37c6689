package engine

import (
	"context"
	"errors"
	"testing"
)

type fakeEngine struct {
	probeErr error
}

func (e *fakeEngine) Open(ctx context.Context, path string) (Instance, error) {
	return nil, errors.New("not implemented")
}

func (e *fakeEngine) Probe(ctx context.Context) error {
	return e.probeErr
}

func TestRegisterAndLoad(t *testing.T) {
	Register("fake-ok", &fakeEngine{})
	Register("fake-broken", &fakeEngine{probeErr: errors.New("no native library")})

	if _, err := Load(context.Background(), "fake-ok"); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	_, err := Load(context.Background(), "fake-broken")
	if err == nil {
		t.Fatal("expected probe failure")
	}

	_, err = Load(context.Background(), "nope")
	if !errors.Is(err, ErrUnknownEngine) {
		t.Errorf("expected ErrUnknownEngine, got %v", err)
	}

	names := Engines()
	found := 0
	for i, n := range names {
		if i > 0 && names[i-1] > n {
			t.Errorf("Engines() not sorted: %v", names)
		}
		if n == "fake-ok" || n == "fake-broken" {
			found++
		}
	}
	if found != 2 {
		t.Errorf("Engines() = %v, missing fakes", names)
	}
}

func TestRegisterPanics(t *testing.T) {
	Register("fake-dup", &fakeEngine{})

	for name, e := range map[string]Engine{"fake-dup": &fakeEngine{}, "fake-nil": nil} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("Register(%q) did not panic", name)
				}
			}()
			Register(name, e)
		}()
	}
}
