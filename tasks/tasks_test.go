package tasks

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/kbukum/chainkit/chain"
	"github.com/kbukum/chainkit/errors"
)

func TestFromSpec(t *testing.T) {
	tests := []struct {
		name    string
		spec    chain.TaskSpec
		wantErr bool
	}{
		{"empty kind is echo", chain.TaskSpec{}, false},
		{"echo", chain.TaskSpec{Kind: KindEcho}, false},
		{"sleep string", chain.TaskSpec{Kind: KindSleep, Params: map[string]any{"duration": "5ms"}}, false},
		{"sleep int ms", chain.TaskSpec{Kind: KindSleep, Params: map[string]any{"duration": 5}}, false},
		{"sleep missing duration", chain.TaskSpec{Kind: KindSleep}, true},
		{"sleep bad duration", chain.TaskSpec{Kind: KindSleep, Params: map[string]any{"duration": "soon"}}, true},
		{"sleep negative", chain.TaskSpec{Kind: KindSleep, Params: map[string]any{"duration": "-1s"}}, true},
		{"set", chain.TaskSpec{Kind: KindSet, Params: map[string]any{"key": "k", "value": 1}}, false},
		{"set without key", chain.TaskSpec{Kind: KindSet}, true},
		{"fail", chain.TaskSpec{Kind: KindFail}, false},
		{"unknown kind", chain.TaskSpec{Kind: "teleport"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task, err := FromSpec("T", tt.spec)
			if tt.wantErr {
				if !errors.IsCode(err, errors.ErrCodeInvalidDefinition) {
					t.Fatalf("expected INVALID_DEFINITION, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if task.Name() != "T" {
				t.Fatalf("Name() = %q", task.Name())
			}
		})
	}
}

func TestEchoPayload(t *testing.T) {
	c := chain.NewContext(map[string]any{"b": 1, "a": 2})
	got, err := Echo("Module_A").Run(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"module": "Module_A", "status": "executed", "context_keys": []string{"a", "b"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("payload = %v, want %v", got, want)
	}
}

func TestSleepHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	_, err := Sleep("S", time.Hour).Run(ctx, chain.NewContext(nil))
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("sleep ignored cancellation")
	}
}

func TestSetAndFail(t *testing.T) {
	c := chain.NewContext(nil)
	if _, err := Set("S", "k", "v").Run(context.Background(), c); err != nil {
		t.Fatal(err)
	}
	if v, _ := c.Get("k"); v != "v" {
		t.Fatalf("k = %v", v)
	}

	_, err := Fail("F", "nope").Run(context.Background(), c)
	if !errors.IsCode(err, errors.ErrCodeTaskFailed) {
		t.Fatalf("expected TASK_FAILED, got %v", err)
	}
}

func TestRegisterCatalog(t *testing.T) {
	catalog, err := chain.ParseCatalog([]byte(`
tasks:
  Module_Set: { kind: set, params: { key: done, value: true } }
chains:
  demo:
    - Module_Set
    - parallel: [Module_A, Module_B]
`))
	if err != nil {
		t.Fatal(err)
	}
	reg := chain.NewRegistry()
	if err := RegisterCatalog(reg, catalog); err != nil {
		t.Fatalf("RegisterCatalog: %v", err)
	}
	if got := reg.List(); !reflect.DeepEqual(got, []string{"Module_A", "Module_B", "Module_Set"}) {
		t.Fatalf("List() = %v", got)
	}
	if err := reg.Verify(catalog); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestRegisterCatalogKeepsExistingTasks(t *testing.T) {
	catalog, err := chain.NewCatalog(chain.NewDefinition("demo", chain.Single("Custom")))
	if err != nil {
		t.Fatal(err)
	}
	reg := chain.NewRegistry()
	reg.MustRegister(Fail("Custom", "mine"))
	if err := RegisterCatalog(reg, catalog); err != nil {
		t.Fatal(err)
	}
	task, _ := reg.Get("Custom")
	if _, err := task.Run(context.Background(), chain.NewContext(nil)); err == nil {
		t.Fatal("pre-registered task was replaced")
	}
}

func TestKinds(t *testing.T) {
	if got := Kinds(); !reflect.DeepEqual(got, []string{"echo", "fail", "set", "sleep"}) {
		t.Fatalf("Kinds() = %v", got)
	}
}
