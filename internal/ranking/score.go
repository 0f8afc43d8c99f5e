package ranking

import (
	"math"

	"github.com/helixir/book-recommendation-service/internal/domain"
)

// recencyScale is the numerator of the year-proximity decay.
const recencyScale = 6.0

// Coefficients are the blend weights of the three score components.
type Coefficients struct {
	Semantic   float64
	Popularity float64
	Recency    float64
}

// Blend derives the coefficients from the popularity and recency weights.
// Each coefficient is clamped to [0, 1]; clamped lists the names of the
// coefficients that had to be clamped.
func Blend(popularityWeight, recencyWeight float64) (c Coefficients, clamped []string) {
	var ok bool
	if c.Popularity, ok = clampUnit(popularityWeight); !ok {
		clamped = append(clamped, "popularity")
	}
	if c.Recency, ok = clampUnit(recencyWeight); !ok {
		clamped = append(clamped, "recency")
	}
	if c.Semantic, ok = clampUnit(1 - c.Popularity - c.Recency); !ok {
		clamped = append(clamped, "semantic")
	}
	return c, clamped
}

func clampUnit(v float64) (float64, bool) {
	switch {
	case math.IsNaN(v):
		return 0, false
	case v < 0:
		return 0, false
	case v > 1:
		return 1, false
	default:
		return v, true
	}
}

// Combine applies the coefficients to the component scores.
func (c Coefficients) Combine(semantic, popularity, recency float64) float64 {
	return c.Semantic*semantic + c.Popularity*popularity + c.Recency*recency
}

// Popularity is log(1+ratingsCount) * ratingsAverage. It is zero when either
// input is missing. The result is deliberately not normalized.
func Popularity(ratingsAverage float64, ratingsCount int) float64 {
	if ratingsAverage <= 0 || ratingsCount <= 0 {
		return 0
	}
	return math.Log(1+float64(ratingsCount)) * ratingsAverage
}

// Recency decays with the distance between year and the target year. Years
// that are not four digits score zero.
func Recency(year int, target domain.RecencyTarget) float64 {
	if year < 1000 || year > 9999 {
		return 0
	}
	diff := math.Abs(float64(year - target.Year))
	return recencyScale / (1 + 0.01*diff)
}

// Cosine returns the cosine similarity of a and b, or zero when the vectors
// differ in length or either has zero magnitude.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Score computes the composite score of book for an already computed
// semantic similarity. Rank uses it, so feeding a ranked book back through
// Score with the same inputs reproduces its score.
func Score(book domain.EnrichedBook, semantic float64, recency domain.RecencyTarget, popularityWeight float64) float64 {
	c, _ := Blend(popularityWeight, recency.Weight)
	return c.Combine(semantic, Popularity(book.RatingsAverage, book.RatingsCount), Recency(book.FirstPublishYear, recency))
}

// Floor is the popularity eligibility threshold.
type Floor struct {
	MinRatingsCount int     `mapstructure:"min_ratings_count"`
	MinAvgRating    float64 `mapstructure:"min_avg_rating"`
}

// DefaultFloor returns the default eligibility threshold.
func DefaultFloor() Floor {
	return Floor{MinRatingsCount: 20, MinAvgRating: 3.0}
}

// IsPopular reports whether book meets the floor.
func IsPopular(book domain.EnrichedBook, floor Floor) bool {
	return book.RatingsCount >= floor.MinRatingsCount && book.RatingsAverage >= floor.MinAvgRating
}

// FilterPopular returns the books that meet the floor, in input order.
func FilterPopular(books []domain.EnrichedBook, floor Floor) []domain.EnrichedBook {
	out := make([]domain.EnrichedBook, 0, len(books))
	for _, b := range books {
		if IsPopular(b, floor) {
			out = append(out, b)
		}
	}
	return out
}
