package ui

import (
	"reflect"
	"testing"
)

func TestSuggest(t *testing.T) {
	candidates := []string{"Customer", "Invoice", "LineItem"}

	tests := []struct {
		target string
		want   []string
	}{
		{"invoice", []string{"Invoice"}},
		{"Invoce", []string{"Invoice"}},
		{"Costumer", []string{"Customer"}},
		{"Payment", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			got := Suggest(tt.target, candidates)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Suggest(%q) = %v, want %v", tt.target, got, tt.want)
			}
		})
	}
}

func TestSuggestOrdersByDistance(t *testing.T) {
	got := Suggest("stat", []string{"status", "state", "stats", "total"})
	want := []string{"state", "stats", "status"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"same", "same", 0},
		{"ümlaut", "umlaut", 1},
	}
	for _, tt := range tests {
		if got := distance(tt.a, tt.b); got != tt.want {
			t.Errorf("distance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
