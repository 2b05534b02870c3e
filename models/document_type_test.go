package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDocumentType_Validate(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		label   string
		wantErr bool
	}{
		{name: "Valid", code: "OF", label: "Ofício"},
		{name: "Digits", code: "NF2", label: "Nota Fiscal"},
		{name: "Lowercase", code: "of", label: "Ofício", wantErr: true},
		{name: "TooLong", code: "ABCDEFGHIJK", label: "x", wantErr: true},
		{name: "Symbols", code: "O-F", label: "x", wantErr: true},
		{name: "MissingName", code: "OF", label: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&DocumentType{Code: tt.code, Name: tt.label}).Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.True(t, IsValidDocumentTypeCode(tt.code))
		})
	}
}

func TestDocumentType_Active(t *testing.T) {
	active, inactive := true, false
	assert.False(t, (&DocumentType{}).Active())
	assert.True(t, (&DocumentType{IsActive: &active}).Active())
	assert.False(t, (&DocumentType{IsActive: &inactive}).Active())
}
