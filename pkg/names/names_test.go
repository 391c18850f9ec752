package names

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "country_code", "country_code"},
		{"accents", "Índice de Preços", "Indice de Precos"},
		{"punctuation", "gdp (US$), 2020!", "gdp US 2020"},
		{"hyphen kept", "per-capita", "per-capita"},
		{"tabs become spaces", "a\tb", "a b"},
		{"non latin dropped", "名前name", "name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.input))
		})
	}
}

func TestTypeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"cpi", "Cpi"},
		{"country_code", "CountryCode"},
		{"consumer price-index", "ConsumerPriceIndex"},
		{"São Paulo", "SaoPaulo"},
		{"CountryCode", "CountryCode"},
		{"GDP", "GDP"},
		{"GDP per_capita", "GDPPerCapita"},
		{"ÀB cD", "ABCD"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, TypeName(tt.input))
		})
	}
}

func TestPropertyName(t *testing.T) {
	assert.Equal(t, "countryCode", PropertyName("country_code"))
	assert.Equal(t, "cpi", PropertyName("cpi"))
	assert.Equal(t, "year", PropertyName("Year"))
	assert.Equal(t, "", PropertyName("???"))

	t.Run("only the first letter is lowered", func(t *testing.T) {
		assert.Equal(t, "gDP", PropertyName("GDP"))
		assert.Equal(t, "gDPPerCapita", PropertyName("GDP per capita"))
		assert.Equal(t, PropertyName("gdpGrowth"), PropertyName(PropertyName("gdpGrowth")))
	})
}

func TestStorageID(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"econ", "econ"},
		{"Econ_CPI", "econ_cpi"},
		{"  Country Code ", "country_code"},
		{"per-capita income", "per_capita_income"},
		{"Preço Médio", "preco_medio"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, StorageID(tt.input))
		})
	}
}

func TestIdempotence(t *testing.T) {
	inputs := []string{
		"country_code",
		"Consumer Price Index",
		"per-capita",
		"  São Paulo  ",
		"gdp (US$), 2020!",
		"already_snake",
		"AlreadyPascal",
		"x",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			once := StorageID(in)
			assert.Equal(t, once, StorageID(once))

			tn := TypeName(in)
			assert.Equal(t, tn, TypeName(tn))

			pn := PropertyName(in)
			assert.Equal(t, pn, PropertyName(pn))

			assert.Regexp(t, `^[a-z0-9_]*$`, once)
			assert.Regexp(t, `^[A-Za-z0-9]*$`, tn)
		})
	}
}
