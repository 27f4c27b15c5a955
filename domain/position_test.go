package domain

import "testing"

func TestAppendKey(t *testing.T) {
	if got := AppendKey(nil); got != 0 {
		t.Fatalf("empty column: want 0, got %v", got)
	}
	if got := AppendKey([]float64{0, 1, 2}); got != 3 {
		t.Fatalf("want 3, got %v", got)
	}
	if got := AppendKey([]float64{5, 1.5, 3}); got != 6 {
		t.Fatalf("unsorted input: want 6, got %v", got)
	}
}

func TestKeyAtMidpoint(t *testing.T) {
	// Column [A(0), B(1)], insert at index 1 -> 0.5 between A and B.
	got := KeyAt([]float64{0, 1}, 1)
	if got != 0.5 {
		t.Fatalf("want 0.5, got %v", got)
	}

	tasks := []Task{
		{ID: "a", ColumnOrder: 0},
		{ID: "c", ColumnOrder: got},
		{ID: "b", ColumnOrder: 1},
	}
	SortByOrder(tasks)
	if tasks[0].ID != "a" || tasks[1].ID != "c" || tasks[2].ID != "b" {
		t.Fatalf("read-back order wrong: %v %v %v", tasks[0].ID, tasks[1].ID, tasks[2].ID)
	}
}

func TestKeyAtBounds(t *testing.T) {
	if got := KeyAt(nil, 0); got != 0 {
		t.Fatalf("empty: want 0, got %v", got)
	}
	if got := KeyAt([]float64{3, 7}, 0); got != 2 {
		t.Fatalf("head: want 2, got %v", got)
	}
	if got := KeyAt([]float64{3, 7}, 2); got != 8 {
		t.Fatalf("tail: want 8, got %v", got)
	}
	if got := KeyAt([]float64{3, 7}, 99); got != 8 {
		t.Fatalf("past tail: want 8, got %v", got)
	}
	if got := KeyAt([]float64{3, 7}, -1); got != 2 {
		t.Fatalf("negative clamps to head: want 2, got %v", got)
	}
}

// Inserting at every valid index places the task at that index on
// read-back and leaves every other key untouched.
func TestKeyAtPlacementNeverRenumbers(t *testing.T) {
	base := []float64{0, 1, 2, 3, 4}
	for i := 0; i <= len(base); i++ {
		keys := append([]float64(nil), base...)
		tasks := make([]Task, 0, len(keys)+1)
		for j, k := range keys {
			tasks = append(tasks, Task{ID: string(rune('a' + j)), ColumnOrder: k})
		}
		tasks = append(tasks, Task{ID: "new", ColumnOrder: KeyAt(keys, i)})
		SortByOrder(tasks)
		if tasks[i].ID != "new" {
			t.Fatalf("insert at %d: landed at wrong index", i)
		}
		for j, k := range base {
			if keys[j] != k {
				t.Fatalf("insert at %d renumbered existing key %d", i, j)
			}
		}
	}
}

func TestRenumberKeys(t *testing.T) {
	keys := RenumberKeys(3)
	for i, k := range keys {
		if k != float64(i) {
			t.Fatalf("index %d: want %d, got %v", i, i, k)
		}
	}
	if len(RenumberKeys(0)) != 0 {
		t.Fatal("want empty slice for n=0")
	}
}
