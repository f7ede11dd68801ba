package listing_test

import (
	"testing"
	"time"

	"candidate-service/internal/candidate"
	"candidate-service/internal/listing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

// fixtures are in server order: newest first.
func fixtures() []candidate.Candidate {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return []candidate.Candidate{
		{ID: 4, FirstName: "Zoë", LastName: "Adams", Email: "zoe@example.com", PhoneNumber: strPtr("+1 555-0004"),
			Education: strPtr("Master's Degree"), WorkExperience: strPtr("7 years in platform teams"), CreatedAt: base.Add(4 * time.Hour)},
		{ID: 3, FirstName: "alan", LastName: "Turing", Email: "Alan@Example.com",
			Education: strPtr("Ph.D."), WorkExperience: strPtr("3 years"), CreatedAt: base.Add(3 * time.Hour)},
		{ID: 2, FirstName: "Grace", LastName: "Hopper", Email: "grace@navy.mil", PhoneNumber: strPtr("+1 555-0002"),
			Education: strPtr("Master's Degree"), WorkExperience: strPtr("about a decade"), ExperienceYears: intPtr(10), CreatedAt: base.Add(2 * time.Hour)},
		{ID: 1, FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com",
			WorkExperience: strPtr("junior"), CreatedAt: base.Add(1 * time.Hour)},
	}
}

func ids(rows []candidate.Candidate) []int {
	out := make([]int, len(rows))
	for i, c := range rows {
		out[i] = c.ID
	}
	return out
}

func TestView_Filters(t *testing.T) {
	v := listing.New()
	v.Load(fixtures())

	t.Run("NoFiltersKeepsSourceOrder", func(t *testing.T) {
		assert.Equal(t, []int{4, 3, 2, 1}, ids(v.Rows()))
	})

	t.Run("SearchIsCaseInsensitiveOverNameAndEmail", func(t *testing.T) {
		v.SetFilters(listing.Filters{Search: "ALAN"})
		assert.Equal(t, []int{3}, ids(v.Rows()))

		v.SetFilters(listing.Filters{Search: "example.com"})
		assert.Equal(t, []int{4, 3, 1}, ids(v.Rows()))

		v.SetFilters(listing.Filters{Search: "hopp"})
		assert.Equal(t, []int{2}, ids(v.Rows()))

		v.SetFilters(listing.Filters{Search: "ZOË"})
		assert.Equal(t, []int{4}, ids(v.Rows()))
	})

	t.Run("EducationIsExactMatch", func(t *testing.T) {
		v.SetFilters(listing.Filters{Education: "Master's Degree"})
		assert.Equal(t, []int{4, 2}, ids(v.Rows()))

		v.SetFilters(listing.Filters{Education: "master's degree"})
		assert.Empty(t, v.Rows())
	})

	t.Run("ExperienceBuckets", func(t *testing.T) {
		v.SetFilters(listing.Filters{Experience: listing.BucketJunior})
		assert.Equal(t, []int{1}, ids(v.Rows()), "unparsable text counts as 0 years")

		v.SetFilters(listing.Filters{Experience: listing.BucketMid})
		assert.Equal(t, []int{3}, ids(v.Rows()))

		v.SetFilters(listing.Filters{Experience: listing.BucketSenior})
		assert.Equal(t, []int{4, 2}, ids(v.Rows()), "structured years win over text")
	})

	t.Run("PredicatesCombineWithAnd", func(t *testing.T) {
		v.SetFilters(listing.Filters{Search: "example", Education: "Master's Degree", Experience: listing.BucketSenior})
		assert.Equal(t, []int{4}, ids(v.Rows()))

		v.SetFilters(listing.Filters{Search: "grace", Education: "Ph.D."})
		assert.Empty(t, v.Rows())
	})

	t.Run("LoadKeepsOwnCopy", func(t *testing.T) {
		v.Reset()
		src := fixtures()
		v.Load(src)
		src[0].FirstName = "Mutated"
		assert.Equal(t, "Zoë", v.Rows()[0].FirstName)
	})
}

func TestView_Sort(t *testing.T) {
	t.Run("ToggleReversesOrder", func(t *testing.T) {
		fields := []listing.SortField{
			listing.SortName, listing.SortEmail, listing.SortWorkExperience, listing.SortCreatedAt,
		}
		for _, field := range fields {
			v := listing.New()
			v.Load(fixtures())

			v.SortBy(field)
			first := ids(v.Rows())
			f, order := v.Sort()
			assert.Equal(t, field, f)
			assert.Equal(t, listing.Asc, order)

			v.SortBy(field)
			second := ids(v.Rows())
			_, order = v.Sort()
			assert.Equal(t, listing.Desc, order)

			reversed := make([]int, len(first))
			for i, id := range first {
				reversed[len(first)-1-i] = id
			}
			assert.Equal(t, reversed, second, "field %s", field)

			v.SortBy(field)
			_, order = v.Sort()
			assert.Equal(t, listing.Asc, order, "third selection goes back to ascending")
		}
	})

	t.Run("NameSortIgnoresCase", func(t *testing.T) {
		v := listing.New()
		v.Load(fixtures())
		v.SortBy(listing.SortName)
		assert.Equal(t, []int{1, 3, 2, 4}, ids(v.Rows()))
	})

	t.Run("CreatedAtAscending", func(t *testing.T) {
		v := listing.New()
		v.Load(fixtures())
		v.SortBy(listing.SortCreatedAt)
		assert.Equal(t, []int{1, 2, 3, 4}, ids(v.Rows()))
	})

	t.Run("TiesKeepSourceOrder", func(t *testing.T) {
		v := listing.New()
		v.Load(fixtures())

		v.SortBy(listing.SortPhoneNumber)
		// 3 and 1 have no phone and sort first, in source order.
		assert.Equal(t, []int{3, 1, 2, 4}, ids(v.Rows()))

		v.SortBy(listing.SortPhoneNumber)
		assert.Equal(t, []int{4, 2, 3, 1}, ids(v.Rows()))
	})

	t.Run("SwitchingFieldStartsAscending", func(t *testing.T) {
		v := listing.New()
		v.Load(fixtures())
		v.SortBy(listing.SortEmail)
		v.SortBy(listing.SortEmail)
		v.SortBy(listing.SortEducation)
		_, order := v.Sort()
		assert.Equal(t, listing.Asc, order)
	})
}

func TestView_Reset(t *testing.T) {
	v := listing.New()
	v.Load(fixtures())
	unfiltered := v.Rows()

	v.SetFilters(listing.Filters{Search: "a", Experience: listing.BucketSenior})
	v.SortBy(listing.SortName)
	v.SortBy(listing.SortName)
	require.NotEqual(t, ids(unfiltered), ids(v.Rows()))

	v.Reset()
	assert.Equal(t, unfiltered, v.Rows())
	assert.Equal(t, listing.Filters{}, v.Filters())

	v.Reset()
	assert.Equal(t, unfiltered, v.Rows(), "reset is idempotent")
}

func TestParse(t *testing.T) {
	b, err := listing.ParseBucket("3-5")
	require.NoError(t, err)
	assert.Equal(t, listing.BucketMid, b)

	_, err = listing.ParseBucket("10+")
	assert.Error(t, err)

	f, err := listing.ParseSortField("phoneNumber")
	require.NoError(t, err)
	assert.Equal(t, listing.SortPhoneNumber, f)

	_, err = listing.ParseSortField("salary")
	assert.Error(t, err)
}
