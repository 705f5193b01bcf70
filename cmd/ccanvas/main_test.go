package main

import (
	"reflect"
	"testing"
)

func TestParseComponentGroupsSingle(t *testing.T) {
	got, err := parseComponentGroups([]string{"editor", "vim", "notes.txt"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []componentGroup{{Label: "editor", Command: "vim", Args: []string{"notes.txt"}}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestParseComponentGroupsMultiple(t *testing.T) {
	got, err := parseComponentGroups([]string{"editor", "vim", "notes.txt", "$", "sidebar", "tree", "."})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []componentGroup{
		{Label: "editor", Command: "vim", Args: []string{"notes.txt"}},
		{Label: "sidebar", Command: "tree", Args: []string{"."}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestParseComponentGroupsNoArgs(t *testing.T) {
	got, err := parseComponentGroups([]string{"shell", "bash"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []componentGroup{{Label: "shell", Command: "bash", Args: []string{}}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestParseComponentGroupsMissingCommand(t *testing.T) {
	if _, err := parseComponentGroups([]string{"editor"}); err == nil {
		t.Error("expected error for a group missing its command")
	}
}

func TestParseComponentGroupsEmpty(t *testing.T) {
	got, err := parseComponentGroups(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no groups, got %+v", got)
	}
}
