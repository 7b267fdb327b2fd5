package domain

import (
	"reflect"
	"sync"
	"testing"
)

func TestRender_SubstitutesKnownPlaceholders(t *testing.T) {
	b := Bindings{
		VarFirst:    "Ann",
		VarChatName: "Gophers",
		VarCount:    "42",
	}

	got := Render("Welcome {first} to {chatname}! You are member #{count}.", b)
	want := "Welcome Ann to Gophers! You are member #42."
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestRender_UnknownPlaceholderPassthrough(t *testing.T) {
	got := Render("{first} said {unknown}", Bindings{VarFirst: "Ann"})
	if got != "Ann said {unknown}" {
		t.Errorf("Expected unknown placeholder kept, got %q", got)
	}
}

func TestRender_DoesNotRescanSubstitutedValues(t *testing.T) {
	b := Bindings{
		VarUsername: "{mention}",
		VarMention:  "SHOULD-NOT-APPEAR",
	}

	got := Render("hi {username}", b)
	if got != "hi {mention}" {
		t.Errorf("Expected literal {mention}, got %q", got)
	}
}

func TestRender_EmptyTemplate(t *testing.T) {
	if got := Render("", Bindings{VarFirst: "Ann"}); got != "" {
		t.Errorf("Expected empty output, got %q", got)
	}
}

func TestRender_EdgeCases(t *testing.T) {
	b := Bindings{VarFirst: "Ann", VarLast: "Lee"}

	tests := []struct {
		name string
		tpl  string
		want string
	}{
		{"no placeholders", "hello world", "hello world"},
		{"unclosed brace", "hi {first", "hi {first"},
		{"nested open brace", "{{first}}", "{Ann}"},
		{"adjacent tokens", "{first}{last}", "AnnLee"},
		{"empty braces", "{} {first}", "{} Ann"},
		{"case sensitive", "{First}", "{First}"},
		{"repeated token", "{first} {first}", "Ann Ann"},
		{"missing binding renders empty", "[{rules}]", "[]"},
		{"lone closing brace", "} {first}", "} Ann"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Render(tt.tpl, b); got != tt.want {
				t.Errorf("Render(%q) = %q, want %q", tt.tpl, got, tt.want)
			}
		})
	}
}

func TestRender_ConcurrentUse(t *testing.T) {
	b := Bindings{VarFirst: "Ann"}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := Render("hi {first}", b); got != "hi Ann" {
				t.Errorf("Unexpected render result %q", got)
			}
		}()
	}
	wg.Wait()
}

func TestNewBindings(t *testing.T) {
	u := User{ID: "ou_1", FirstName: "Ann", LastName: "Lee"}
	g := GroupMeta{Name: "Gophers", MemberCount: 7, RulesLink: "https://example.com/rules"}

	b := NewBindings(u, g)

	want := Bindings{
		VarFirst:    "Ann",
		VarLast:     "Lee",
		VarFullName: "Ann Lee",
		VarUsername: "Ann Lee",
		VarMention:  `<at user_id="ou_1">Ann Lee</at>`,
		VarID:       "ou_1",
		VarCount:    "7",
		VarChatName: "Gophers",
		VarRules:    "https://example.com/rules",
	}
	if !reflect.DeepEqual(b, want) {
		t.Errorf("Unexpected bindings:\n got %v\nwant %v", b, want)
	}
}

func TestNewBindings_UsernamePreferred(t *testing.T) {
	b := NewBindings(User{ID: "1", FirstName: "Ann", Username: "ann_l"}, GroupMeta{})
	if b[VarUsername] != "ann_l" {
		t.Errorf("Expected username ann_l, got %q", b[VarUsername])
	}
}

func TestUnknownPlaceholders(t *testing.T) {
	got := UnknownPlaceholders("{first} {foo} {bar} {foo} {rules}")
	want := []string{"{foo}", "{bar}"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}

	if got := UnknownPlaceholders("Welcome {mention}"); len(got) != 0 {
		t.Errorf("Expected no unknown placeholders, got %v", got)
	}
}

func TestNewUserFromName(t *testing.T) {
	u := NewUserFromName("ou_2", "  Mary Jane Watson ")
	if u.FirstName != "Mary" || u.LastName != "Jane Watson" {
		t.Errorf("Unexpected split: %+v", u)
	}

	single := NewUserFromName("ou_3", "Plato")
	if single.FirstName != "Plato" || single.LastName != "" {
		t.Errorf("Unexpected split: %+v", single)
	}
	if single.FullName() != "Plato" {
		t.Errorf("Expected full name Plato, got %q", single.FullName())
	}
}
