package tokenizer

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Senior Java Developer", []string{"senior", "java", "developer"}},
		{"  Developers and   Engineers ", []string{"developer", "engineer"}},
		{"Software-Entwickler (m/w/d) in Zürich", []string{"software", "entwickler", "m", "w", "d", "zürich"}},
		{"C++ / C# engineer", []string{"c++", "c#", "engineer"}},
		{"Companies, classes, status, analysis", []string{"company", "class", "status", "analysis"}},
		{"", []string{}},
		{"a b c", []string{"b", "c"}},
		{"C Developer", []string{"c", "developer"}},
		{"+ / #", []string{}},
	}
	for _, tt := range tests {
		got := Terms(tt.in)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Terms(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTokenizePositions(t *testing.T) {
	tokens := Tokenize("the java and go team")
	if len(tokens) != 3 {
		t.Fatalf("got %d tokens, want 3: %+v", len(tokens), tokens)
	}
	for i, tok := range tokens {
		if tok.Position != i {
			t.Errorf("token %q at position %d, want %d", tok.Term, tok.Position, i)
		}
	}
}

func TestStemKeepsPrefixes(t *testing.T) {
	full := Terms("developers")[0]
	for _, partial := range []string{"dev", "devel", "develop", "develope"} {
		p := Terms(partial)[0]
		if len(p) > len(full) || full[:len(p)] != p {
			t.Errorf("partial %q stems to %q which is not a prefix of %q", partial, p, full)
		}
	}
}

func TestQueryTerms(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"java developers", []string{"java", "developer"}},
		{"c", []string{"c"}},
		{"r", []string{"r"}},
		{"the", []string{"the"}},
		{"in the", []string{"the"}},
		{"java in", []string{"java"}},
		{"  ", []string{}},
		{"+", []string{}},
	}
	for _, tt := range tests {
		if got := QueryTerms(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("QueryTerms(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
