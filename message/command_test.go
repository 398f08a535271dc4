// Copyright 2026 The SimpleX Bot Authors
// SPDX-License-Identifier: Apache-2.0

package message

import (
	"reflect"
	"testing"
)

func directContext(text string) Context {
	return Context{
		Sender: "alice",
		Target: RouteTarget{Kind: DirectChat, Name: "alice"},
		Text:   text,
	}
}

func TestParseCommandBasic(t *testing.T) {
	command, ok := ParseCommand(directContext("!help"))
	if !ok {
		t.Fatal("ParseCommand should succeed")
	}
	if command.Name != "help" {
		t.Errorf("Name = %q, want %q", command.Name, "help")
	}
	if len(command.Args) != 0 {
		t.Errorf("Args = %v, want none", command.Args)
	}
}

func TestParseCommandQuotedArgs(t *testing.T) {
	command, ok := ParseCommand(directContext(`!echo "hello world" foo`))
	if !ok {
		t.Fatal("ParseCommand should succeed")
	}
	want := []string{"hello world", "foo"}
	if !reflect.DeepEqual(command.Args, want) {
		t.Errorf("Args = %v, want %v", command.Args, want)
	}
	if command.ArgString != `"hello world" foo` {
		t.Errorf("ArgString = %q, want %q", command.ArgString, `"hello world" foo`)
	}
}

func TestParseCommandLowercasesName(t *testing.T) {
	command, ok := ParseCommand(directContext("!HeLp"))
	if !ok {
		t.Fatal("ParseCommand should succeed")
	}
	if command.Name != "help" {
		t.Errorf("Name = %q, want %q", command.Name, "help")
	}
}

func TestParseCommandNotACommand(t *testing.T) {
	for _, text := range []string{"hello", "", "!", "! leading space", "say !help"} {
		if _, ok := ParseCommand(directContext(text)); ok {
			t.Errorf("ParseCommand(%q) should return ok=false", text)
		}
	}
}

func TestParseCommandTrimsSurroundingSpace(t *testing.T) {
	command, ok := ParseCommand(directContext("  !echo hi  "))
	if !ok {
		t.Fatal("ParseCommand should succeed")
	}
	if command.Name != "echo" {
		t.Errorf("Name = %q, want %q", command.Name, "echo")
	}
	if command.ArgString != "hi" {
		t.Errorf("ArgString = %q, want %q", command.ArgString, "hi")
	}
}

func TestTokenizeQuoting(t *testing.T) {
	cases := []struct {
		text string
		want []string
	}{
		{`a b c`, []string{"a", "b", "c"}},
		{`a "b c" d`, []string{"a", "b c", "d"}},
		{`"only quoted"`, []string{"only quoted"}},
		{`""`, []string{""}},
		{"tabs\there", []string{"tabs", "here"}},
	}
	for _, c := range cases {
		got := Tokenize(c.text)
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("Tokenize(%q) = %v, want %v", c.text, got, c.want)
		}
	}
}

func TestTokenizeUnterminatedQuoteFallsBack(t *testing.T) {
	got := Tokenize(`echo "unterminated arg`)
	want := []string{"echo", `"unterminated`, "arg"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize = %v, want whitespace fallback %v", got, want)
	}
}
