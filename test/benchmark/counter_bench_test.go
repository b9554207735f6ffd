package benchmark

import (
	"fmt"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/counter"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/extractor"
)

var sampleTexts = map[string]string{
	"short": "Explosions were reported in Kyiv overnight, officials said.",
	"medium": `Air defence units shot down drones over Kyiv and Kharkiv, the Ministry of
        Defence said on Tuesday. NATO foreign ministers meeting in Brussels condemned
        the strikes and pledged further support. Officials in Odesa reported damage to
        port infrastructure, while the United Nations called for the protection of
        civilian energy facilities ahead of winter.`,
	"long": strings.Repeat(`Satellite imagery published by Maxar shows new earthworks
        near Bakhmut. The Institute for the Study of War assessed that Russian forces
        continue limited attacks along the Donetsk front. The European Union agreed a
        new sanctions package targeting shipping firms, and the International Atomic
        Energy Agency warned about the situation at Zaporizhzhia. `, 20),
}

func vocabulary(n int) []string {
	base := []string{"Kyiv", "Kharkiv", "NATO", "Brussels", "Odesa", "Bakhmut", "Maxar",
		"Donetsk", "European Union", "Zaporizhzhia", "Ministry of Defence", "United Nations"}
	vocab := make([]string, 0, n)
	for i := 0; len(vocab) < n; i++ {
		if i < len(base) {
			vocab = append(vocab, base[i])
			continue
		}
		vocab = append(vocab, fmt.Sprintf("Entity%d", i))
	}
	return vocab
}

func BenchmarkCount(b *testing.B) {
	for _, size := range []int{10, 100, 1000} {
		vocab := vocabulary(size)
		for name, text := range sampleTexts {
			b.Run(fmt.Sprintf("vocab=%d/%s", size, name), func(b *testing.B) {
				b.ReportAllocs()
				b.SetBytes(int64(len(text)))
				for i := 0; i < b.N; i++ {
					_ = counter.Count(vocab, text)
				}
			})
		}
	}
}

func BenchmarkCountParallel(b *testing.B) {
	vocab := vocabulary(100)
	text := sampleTexts["long"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = counter.Count(vocab, text)
		}
	})
}

func BenchmarkHeuristicExtract(b *testing.B) {
	ext := extractor.NewHeuristicExtractor()
	ctx := b.Context()
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				if _, err := ext.Extract(ctx, text); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
