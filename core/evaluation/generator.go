package evaluation

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/siherrmann/securerag/model"
)

const (
	// DefaultSeed makes generated evaluation sets reproducible across runs.
	DefaultSeed uint64 = 42
	// DefaultSampleCount is the number of sentences of a default evaluation run.
	DefaultSampleCount = 100
)

var (
	firstNames = []string{"James", "Mary", "Robert", "Patricia", "John", "Jennifer", "Michael", "Linda", "David", "Elizabeth", "William", "Barbara", "Richard", "Susan", "Thomas", "Karen"}
	lastNames  = []string{"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis", "Rodriguez", "Martinez", "Wilson", "Anderson", "Taylor", "Moore", "Jackson", "Martin"}
	domains    = []string{"example.com", "example.org", "mail.test", "corp.example", "inbox.test"}
)

// PIIGenerator produces sentences with planted entities of known surface text.
type PIIGenerator struct {
	rng      *rand.Rand
	entities []model.EntityType
}

// NewPIIGenerator creates a generator seeded with seed. Entities without a value
// generator are ignored; an empty list falls back to model.DefaultEntities.
func NewPIIGenerator(seed uint64, entities []model.EntityType) *PIIGenerator {
	var supported []model.EntityType
	for _, t := range entities {
		if _, ok := valueGenerators[t]; ok {
			supported = append(supported, t)
		}
	}
	if len(supported) == 0 {
		supported = append(supported, model.DefaultEntities...)
	}

	return &PIIGenerator{
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		entities: supported,
	}
}

var valueGenerators = map[model.EntityType]func(r *rand.Rand) string{
	model.EntityPerson: func(r *rand.Rand) string {
		return pick(r, firstNames) + " " + pick(r, lastNames)
	},
	model.EntityEmail: func(r *rand.Rand) string {
		return strings.ToLower(pick(r, firstNames)+"."+pick(r, lastNames)) + fmt.Sprintf("%d@", r.IntN(100)) + pick(r, domains)
	},
	model.EntityPhone: func(r *rand.Rand) string {
		switch r.IntN(3) {
		case 0:
			return fmt.Sprintf("%03d-%03d-%04d", 200+r.IntN(800), r.IntN(1000), r.IntN(10000))
		case 1:
			return fmt.Sprintf("(%03d) %03d-%04d", 200+r.IntN(800), r.IntN(1000), r.IntN(10000))
		default:
			return fmt.Sprintf("+1 %03d %03d %04d", 200+r.IntN(800), r.IntN(1000), r.IntN(10000))
		}
	},
	model.EntitySSN: func(r *rand.Rand) string {
		return fmt.Sprintf("%d-%d-%d", 100+r.IntN(900), 10+r.IntN(90), 1000+r.IntN(9000))
	},
	model.EntityCreditCard: func(r *rand.Rand) string {
		digits := make([]int, 16)
		digits[0] = 4
		for i := 1; i < 15; i++ {
			digits[i] = r.IntN(10)
		}
		digits[15] = luhnCheckDigit(digits[:15])
		var b strings.Builder
		for i, d := range digits {
			if i > 0 && i%4 == 0 {
				b.WriteByte(' ')
			}
			b.WriteByte(byte('0' + d))
		}
		return b.String()
	},
	model.EntityIPAddress: func(r *rand.Rand) string {
		return fmt.Sprintf("10.%d.%d.%d", r.IntN(256), r.IntN(256), 1+r.IntN(254))
	},
}

// Sample generates one sentence with one to three distinct entity types.
func (g *PIIGenerator) Sample() model.PIISample {
	n := 1 + g.rng.IntN(min(3, len(g.entities)))
	types := make([]model.EntityType, len(g.entities))
	copy(types, g.entities)
	g.rng.Shuffle(len(types), func(i, j int) { types[i], types[j] = types[j], types[i] })
	types = types[:n]

	gold := make([]model.GoldEntity, 0, n)
	for _, t := range types {
		gold = append(gold, model.GoldEntity{Type: t, Value: valueGenerators[t](g.rng)})
	}

	var b strings.Builder
	b.WriteString(gold[0].Value)
	b.WriteString(" reached out to us.")
	for _, e := range gold[1:] {
		fmt.Fprintf(&b, " Their %s is %s.", strings.ToLower(strings.ReplaceAll(string(e.Type), "_", " ")), e.Value)
	}

	return model.PIISample{Text: b.String(), Gold: gold}
}

// Samples generates n sentences.
func (g *PIIGenerator) Samples(n int) []model.PIISample {
	samples := make([]model.PIISample, 0, n)
	for i := 0; i < n; i++ {
		samples = append(samples, g.Sample())
	}
	return samples
}

func pick(r *rand.Rand, pool []string) string {
	return pool[r.IntN(len(pool))]
}

func luhnCheckDigit(payload []int) int {
	sum := 0
	for i := len(payload) - 1; i >= 0; i-- {
		d := payload[i]
		if (len(payload)-1-i)%2 == 0 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return (10 - sum%10) % 10
}
