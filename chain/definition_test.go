package chain

import (
	"reflect"
	"testing"
)

func TestDefinitionAccessorsReturnCopies(t *testing.T) {
	def := NewDefinition("demo", Single("A"), Parallel("B", "C"), Single("D"))

	steps := def.Steps()
	steps[1] = Single("X")
	names := def.Steps()[1].TaskNames()
	names[0] = "Y"

	got := def.Steps()
	if !got[1].IsParallel() {
		t.Fatal("step 1 should still be parallel")
	}
	if !reflect.DeepEqual(got[1].TaskNames(), []string{"B", "C"}) {
		t.Fatalf("parallel tasks = %v", got[1].TaskNames())
	}
}

func TestNewDefinitionCopiesInput(t *testing.T) {
	names := []string{"B", "C"}
	step := Parallel(names...)
	names[0] = "Z"
	def := NewDefinition("demo", step)
	if got := def.Steps()[0].TaskNames(); got[0] != "B" {
		t.Fatalf("definition aliased caller slice: %v", got)
	}
}

func TestDefinitionTaskNames(t *testing.T) {
	def := NewDefinition("demo", Single("A"), Parallel("B", "A", "C"), Single("B"), Single("D"))
	want := []string{"A", "B", "C", "D"}
	if got := def.TaskNames(); !reflect.DeepEqual(got, want) {
		t.Fatalf("TaskNames() = %v, want %v", got, want)
	}
	if def.Len() != 4 {
		t.Fatalf("Len() = %d", def.Len())
	}
}

func TestStepTask(t *testing.T) {
	if got := Single("A").Task(); got != "A" {
		t.Fatalf("Single.Task() = %q", got)
	}
	if got := Parallel("A", "B").Task(); got != "" {
		t.Fatalf("Parallel.Task() = %q", got)
	}
	if Single("A").Kind() != StepSingle || Parallel("A").Kind() != StepParallel {
		t.Fatal("unexpected step kinds")
	}
}
