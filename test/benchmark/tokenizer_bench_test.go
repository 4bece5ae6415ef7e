// Package benchmark measures tokenization, index build and query
// throughput over synthetic job collections.
package benchmark

import (
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/search/tokenizer"
)

var sampleTexts = map[string]string{
	"title":    "Senior Software Engineer (C++/C#) – Embedded Systems",
	"location": "Zürich, Kanton Zürich, Schweiz 8001 Bahnhofstrasse 12",
	"mixed": strings.Repeat(`Pflegefachfrau / Pflegefachmann HF 80-100% Spitex Region Bern.
        Infirmier diplômé pour les soins à domicile, Lausanne. Registered nurses and
        care assistants wanted for the home care services of the region. `, 10),
}

func BenchmarkTokenize(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = tokenizer.Tokenize(text)
			}
		})
	}
}

func BenchmarkTerms(b *testing.B) {
	text := sampleTexts["mixed"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	for i := 0; i < b.N; i++ {
		_ = tokenizer.Terms(text)
	}
}
