package runner

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"
)

// fixedShare of generated queries come from fixedQueries.
const fixedShare = 0.3

type category struct {
	templates []string
	topics    []string
}

var cities = []string{
	"Madrid", "Sevilla", "Valencia", "Bilbao", "Granada",
	"Zaragoza", "Málaga", "Salamanca", "Toledo", "Cádiz",
}

var categories = map[string]category{
	"clima": {
		templates: []string{"clima en %s", "pronóstico del tiempo %s", "temperatura en %s"},
		topics:    cities,
	},
	"recetas": {
		templates: []string{"receta de %s", "cómo cocinar %s", "ingredientes para %s"},
		topics:    []string{"pasta", "pollo", "pizza", "ensalada", "arroz", "pescado", "tarta", "sopa"},
	},
	"lugares": {
		templates: []string{"historia de %s", "turismo en %s", "qué ver en %s"},
		topics:    cities,
	},
	"preguntas": {
		templates: []string{"cómo %s", "por qué %s", "cuándo %s"},
		topics:    []string{"hacer pan", "aprender inglés", "programar en Python", "meditar", "ahorrar dinero"},
	},
	"compras": {
		templates: []string{"precio de %s", "comprar %s", "ofertas de %s"},
		topics:    []string{"laptop", "teléfono móvil", "auriculares", "monitor", "teclado", "ratón"},
	},
	"noticias": {
		templates: []string{"noticias de %s", "últimas noticias %s", "actualidad %s"},
		topics:    []string{"tecnología", "economía", "deportes", "ciencia", "cultura"},
	},
	"educación": {
		templates: []string{"curso de %s", "aprender %s", "tutorial de %s"},
		topics:    []string{"Python", "Excel", "Photoshop", "inglés", "guitarra", "fotografía"},
	},
	"salud": {
		templates: []string{"síntomas de %s", "tratamiento para %s", "causas de %s"},
		topics:    []string{"gripe", "dolor de cabeza", "insomnio", "estrés", "ansiedad"},
	},
}

var fixedQueries = []string{
	"mejor portátil calidad precio",
	"restaurantes cerca de mi",
	"películas en cartelera",
	"cómo instalar Windows 11",
	"diferencia entre Python 2 y 3",
	"beneficios del ejercicio diario",
	"mejores destinos turísticos Europa",
	"cuándo es el próximo eclipse solar",
	"historia del arte contemporáneo",
	"recetas veganas fáciles",
}

// QueryGenerator produces search phrases. Safe for concurrent use.
type QueryGenerator struct {
	mu    sync.Mutex
	rnd   *rand.Rand
	names []string
}

// NewQueryGenerator returns a generator seeded with seed, or with the clock
// when seed is 0.
func NewQueryGenerator(seed uint64) *QueryGenerator {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	names := make([]string, 0, len(categories))
	for name := range categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return &QueryGenerator{rnd: rand.New(rand.NewPCG(seed, seed>>1|1)), names: names}
}

// Generate returns n queries.
func (g *QueryGenerator) Generate(n int) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]string, 0, max(n, 0))
	for i := 0; i < n; i++ {
		if g.rnd.Float64() < fixedShare {
			out = append(out, fixedQueries[g.rnd.IntN(len(fixedQueries))])
			continue
		}
		c := categories[g.names[g.rnd.IntN(len(g.names))]]
		tmpl := c.templates[g.rnd.IntN(len(c.templates))]
		out = append(out, fmt.Sprintf(tmpl, c.topics[g.rnd.IntN(len(c.topics))]))
	}
	return out
}

// Wait returns a uniformly random duration in [lo, hi].
func (g *QueryGenerator) Wait(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return lo + time.Duration(g.rnd.Int64N(int64(hi-lo)+1))
}
