package portfolio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-enginev1/internal/model"
)

func ids(records []model.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestFilterRecords(t *testing.T) {
	book := sampleBook()

	cases := []struct {
		kind FilterKind
		want []string
	}{
		{FilterAll, []string{"h1", "h2", "h3", "h4", "h5", "i1", "f1", "c1"}},
		{FilterIndianStocks, []string{"h1", "h2", "i1"}},
		{FilterUSStocks, []string{"h3"}},
		{FilterCrypto, []string{"h4", "c1"}},
		{FilterMutualFunds, []string{"h5"}},
		{FilterBonds, []string{}},
		{FilterDerivatives, []string{"f1"}},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			got, err := FilterRecords(book, tc.kind)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ids(got))
		})
	}
}

func TestFilterRecords_InvalidKind(t *testing.T) {
	got, err := FilterRecords(sampleBook(), "bogus")
	assert.True(t, errors.Is(err, ErrInvalidFilterKind), "got %v", err)
	assert.Nil(t, got)
}

func TestFilterRecords_PreservesIdentityAndDoesNotAlias(t *testing.T) {
	book := sampleBook()
	got, err := FilterRecords(book, FilterAll)
	require.NoError(t, err)
	assert.Equal(t, book, got)

	got[0].Symbol = "CHANGED"
	assert.Equal(t, "RELIANCE", book[0].Symbol)
}

func TestFilterFunc(t *testing.T) {
	big := FilterFunc(sampleBook(), func(r model.Record) bool {
		return Value(r).CurrentValue > 10000
	})
	assert.Equal(t, []string{"h1", "h2", "i1", "f1"}, ids(big))
}

func TestParseFilterKind(t *testing.T) {
	k, err := ParseFilterKind("")
	require.NoError(t, err)
	assert.Equal(t, FilterAll, k)

	for _, want := range FilterKinds() {
		k, err := ParseFilterKind(string(want))
		require.NoError(t, err)
		assert.Equal(t, want, k)
	}

	_, err = ParseFilterKind("indianstocks")
	assert.ErrorIs(t, err, ErrInvalidFilterKind)
}
