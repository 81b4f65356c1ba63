// Package location определяет координаты адреса по списку барангаев провинции.
package location

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/maxxi02/thesis-project01-sub001/internal/model"
)

//go:embed barangays.json
var barangaysJSON []byte

// MinSimilarity — минимальная близость названия для нечёткого совпадения.
const MinSimilarity = 0.6

// Match — найденный барангай и оценка совпадения.
type Match struct {
	model.Location
	Score float64 `json:"score"`
}

type entry struct {
	loc          model.Location
	name         []string
	municipality string
}

// Matcher ищет барангай, наиболее похожий на адрес.
type Matcher struct {
	entries []entry
}

// LoadEmbedded читает встроенный список барангаев.
func LoadEmbedded() ([]model.Location, error) {
	var locs []model.Location
	if err := json.Unmarshal(barangaysJSON, &locs); err != nil {
		return nil, fmt.Errorf("decode barangays: %w", err)
	}
	return locs, nil
}

// NewMatcher строит индекс по списку барангаев.
func NewMatcher(locs []model.Location) *Matcher {
	m := &Matcher{entries: make([]entry, 0, len(locs))}
	for _, l := range locs {
		m.entries = append(m.entries, entry{
			loc:          l,
			name:         tokens(l.Name),
			municipality: normalize(l.Municipality),
		})
	}
	return m
}

// Len возвращает число барангаев в индексе.
func (m *Matcher) Len() int { return len(m.entries) }

// Match возвращает лучший барангай для адреса. Сначала ищется точное вхождение названия,
// затем нечёткое сравнение по Левенштейну с порогом MinSimilarity. Упоминание муниципалитета
// в адресе повышает оценку.
func (m *Matcher) Match(address string) (Match, bool) {
	words := tokens(address)
	if len(words) == 0 {
		return Match{}, false
	}
	joined := " " + strings.Join(words, " ") + " "

	var (
		best  Match
		found bool
	)
	for _, e := range m.entries {
		if len(e.name) == 0 {
			continue
		}

		var score float64
		if strings.Contains(joined, " "+strings.Join(e.name, " ")+" ") {
			score = 0.9
		} else {
			sim := bestWindow(words, e.name)
			if sim < MinSimilarity {
				continue
			}
			score = 0.8 * sim
		}

		if e.municipality != "" && strings.Contains(joined, " "+e.municipality+" ") {
			score += 0.1
		}

		if !found || score > best.Score {
			best = Match{Location: e.loc, Score: score}
			found = true
		}
	}
	return best, found
}

// bestWindow сравнивает название с каждым окном адреса той же длины в словах.
func bestWindow(words, name []string) float64 {
	target := strings.Join(name, " ")
	size := len(name)
	if size > len(words) {
		return similarity(strings.Join(words, " "), target)
	}

	var best float64
	for i := 0; i+size <= len(words); i++ {
		if s := similarity(strings.Join(words[i:i+size], " "), target); s > best {
			best = s
		}
	}
	return best
}

func normalize(s string) string {
	return strings.Join(tokens(s), " ")
}

func tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
