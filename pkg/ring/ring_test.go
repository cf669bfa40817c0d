package ring

import (
	"sync"
	"testing"
)

func TestNew_RejectsNonPositiveCapacity(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
	}{
		{"zero", 0},
		{"negative", -1},
		{"very negative", -1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New[int](tt.capacity); err == nil {
				t.Errorf("New(%d) = nil error, want error", tt.capacity)
			}
		})
	}
}

func TestNew_ReportsCapacity(t *testing.T) {
	for _, n := range []int{1, 5, 128} {
		buf, err := New[string](n)
		if err != nil {
			t.Fatalf("New(%d) error = %v", n, err)
		}
		if buf.Capacity() != n {
			t.Errorf("Capacity() = %d, want %d", buf.Capacity(), n)
		}
		if buf.Len() != 0 {
			t.Errorf("Len() = %d, want 0", buf.Len())
		}
	}
}

func TestAdd_EvictsOldest(t *testing.T) {
	buf, err := New[int](5)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 10; i++ {
		buf.Add(i)
	}

	got := buf.GetRecentItems(5)
	want := []int{5, 6, 7, 8, 9}
	if len(got) != len(want) {
		t.Fatalf("GetRecentItems(5) returned %d items, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("GetRecentItems(5)[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestGetRecentItems_PartialFill(t *testing.T) {
	buf, err := New[int](5)
	if err != nil {
		t.Fatal(err)
	}
	buf.Add(1)
	buf.Add(2)

	got := buf.GetRecentItems(5)
	if len(got) != 2 {
		t.Fatalf("GetRecentItems(5) returned %d items, want 2", len(got))
	}
	if got[0] != 1 || got[1] != 2 {
		t.Errorf("GetRecentItems(5) = %v, want [1 2]", got)
	}
}

func TestGetRecentItems_RequestFewerThanStored(t *testing.T) {
	buf, err := New[int](5)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		buf.Add(i)
	}

	got := buf.GetRecentItems(2)
	if len(got) != 2 {
		t.Fatalf("GetRecentItems(2) returned %d items, want 2", len(got))
	}
	if got[0] != 3 || got[1] != 4 {
		t.Errorf("GetRecentItems(2) = %v, want [3 4]", got)
	}
}

func TestGetRecentItems_NonPositiveN(t *testing.T) {
	buf, err := New[int](3)
	if err != nil {
		t.Fatal(err)
	}
	buf.Add(1)

	if got := buf.GetRecentItems(0); len(got) != 0 {
		t.Errorf("GetRecentItems(0) = %v, want empty", got)
	}
	if got := buf.GetRecentItems(-4); len(got) != 0 {
		t.Errorf("GetRecentItems(-4) = %v, want empty", got)
	}
}

func TestConcurrentAdd(t *testing.T) {
	buf, err := New[int](64)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				buf.Add(base*1000 + i)
				_ = buf.GetRecentItems(10)
			}
		}(g)
	}
	wg.Wait()

	if buf.Len() != 64 {
		t.Errorf("Len() = %d after saturation, want 64", buf.Len())
	}
	if got := buf.GetRecentItems(100); len(got) != 64 {
		t.Errorf("GetRecentItems(100) returned %d items, want 64", len(got))
	}
}
