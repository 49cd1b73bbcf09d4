package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateCNPJ(t *testing.T) {
	cases := []struct {
		name string
		cnpj string
		want bool
	}{
		{"formatted valid", "11.222.333/0001-81", true},
		{"digits valid", "11222333000181", true},
		{"all identical", "11111111111111", false},
		{"all zeros", "00.000.000/0000-00", false},
		{"wrong first digit", "11.222.333/0001-91", false},
		{"wrong second digit", "11.222.333/0001-82", false},
		{"too short", "1122233300018", false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ValidateCNPJ(tc.cnpj))
		})
	}
}

func TestFormatCNPJ(t *testing.T) {
	assert.Equal(t, "11.222.333/0001-81", FormatCNPJ("11222333000181"))
	assert.Equal(t, "123", FormatCNPJ("123"))
}

func TestValidateEmail(t *testing.T) {
	assert.True(t, ValidateEmail("dpo@acme.com.br"))
	assert.False(t, ValidateEmail("dpo@acme"))
	assert.False(t, ValidateEmail("dpo acme@x.com"))
}

func TestSanitizeFileName(t *testing.T) {
	assert.Equal(t, "acme-ltda", SanitizeFileName("Acme Ltda."))
	assert.Equal(t, "s-o-jos-com-rcio", SanitizeFileName("São José Comércio"))
	assert.Equal(t, "a_b-c", SanitizeFileName("--A_B   C--"))
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "acmeltda", NormalizeName("ACME Ltda."))
	assert.Equal(t, NormalizeName("Acme-Ltda"), NormalizeName("acme ltda"))
}

type taggedProfile struct {
	TaxID string `validate:"required,cnpj"`
	Email string `validate:"required,email"`
}

func TestValidateStructCNPJRule(t *testing.T) {
	assert.NoError(t, ValidateStruct(taggedProfile{TaxID: "11.222.333/0001-81", Email: "a@b.com"}))
	assert.Error(t, ValidateStruct(taggedProfile{TaxID: "11111111111111", Email: "a@b.com"}))
	assert.Error(t, ValidateStruct(taggedProfile{TaxID: "11.222.333/0001-81", Email: "invalido"}))
}
