package benchmark

import (
	"fmt"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/fetch"
	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/internal/popular"
)

// entitySets builds one entity list per source with a skewed distribution:
// entity k appears in roughly sources/(k+1) of them, in alternating case.
func entitySets(sources, distinct int) [][]string {
	sets := make([][]string, sources)
	for s := range sets {
		var set []string
		for k := 0; k < distinct; k++ {
			if s%(k+1) == 0 {
				name := fmt.Sprintf("Entity-%04d", k)
				if s%2 == 1 {
					name = strings.ToLower(name)
				}
				set = append(set, name)
			}
		}
		sets[s] = set
	}
	return sets
}

func BenchmarkFrequencyTableAddSet(b *testing.B) {
	for _, sources := range []int{50, 500} {
		sets := entitySets(sources, 300)
		b.Run(fmt.Sprintf("sources=%d", sources), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				t := popular.NewFrequencyTable()
				for _, set := range sets {
					t.AddSet(set)
				}
			}
		})
	}
}

func BenchmarkFrequencyTableParallelAddSet(b *testing.B) {
	sets := entitySets(500, 300)
	t := popular.NewFrequencyTable()
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			t.AddSet(sets[i%len(sets)])
			i++
		}
	})
}

func BenchmarkFrequencyTableTop(b *testing.B) {
	for _, distinct := range []int{100, 1000, 10000} {
		t := popular.NewFrequencyTable()
		for _, set := range entitySets(200, distinct) {
			t.AddSet(set)
		}
		b.Run(fmt.Sprintf("distinct=%d", distinct), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = t.Top(0.10, 30)
			}
		})
	}
}

func BenchmarkNormalize(b *testing.B) {
	for name, text := range sampleTexts {
		page := "<html><head><style>p{color:red}</style><script>var x = 1;</script></head><body>" +
			strings.ReplaceAll("<p>"+text+"</p>", ". ", ".</p><p>") + "</body></html>"
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(page)))
			for i := 0; i < b.N; i++ {
				if _, err := fetch.Normalize(strings.NewReader(page)); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
