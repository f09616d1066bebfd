package sliceutil

import (
	"fmt"
	"slices"
	"strconv"
	"testing"
)

func TestMap(t *testing.T) {
	got := Map([]int{1, 2, 3}, strconv.Itoa)
	if !slices.Equal(got, []string{"1", "2", "3"}) {
		t.Fatalf("expected = [1 2 3], got = %v", got)
	}
}

func TestMapErr(t *testing.T) {
	got, err := MapErr([]string{"4", "5"}, strconv.Atoi)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(got, []int{4, 5}) {
		t.Fatalf("expected = [4 5], got = %v", got)
	}
	calls := 0
	_, err = MapErr([]string{"1", "x", "2"}, func(s string) (int, error) {
		calls++
		if s == "x" {
			return 0, fmt.Errorf("bad item")
		}
		return 0, nil
	})
	if err == nil || calls != 2 {
		t.Fatalf("expected error after 2 calls, got err = %v, calls = %v", err, calls)
	}
}
