package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name     string  `json:"name" validate:"required"`
	Email    string  `json:"email" validate:"omitempty,email"`
	Price    float64 `json:"price" validate:"gte=0"`
	Quantity int     `json:"quantity" validate:"gt=0"`
	Status   string  `json:"status" validate:"omitempty,oneof=active inactive"`
	Password string  `json:"password" validate:"omitempty,min=8"`
}

func TestStruct(t *testing.T) {
	tests := []struct {
		name    string
		in      sample
		wantMsg string
	}{
		{
			name: "valid",
			in:   sample{Name: "Rice", Price: 10, Quantity: 1},
		},
		{
			name:    "missing name",
			in:      sample{Quantity: 1},
			wantMsg: "name is required",
		},
		{
			name:    "several violations are joined",
			in:      sample{Price: -1, Quantity: 0},
			wantMsg: "name is required, price must be at least 0, quantity must be greater than 0",
		},
		{
			name:    "oneof",
			in:      sample{Name: "x", Quantity: 1, Status: "archived"},
			wantMsg: "status must be one of: active, inactive",
		},
		{
			name:    "short password and bad email",
			in:      sample{Name: "x", Quantity: 1, Password: "123", Email: "nope"},
			wantMsg: "email must be a valid email, password must be at least 8 characters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(tt.in)
			if tt.wantMsg == "" {
				require.NoError(t, err)
				return
			}

			var verr *Error
			require.True(t, errors.As(err, &verr), "want *validation.Error, got %T", err)
			assert.Equal(t, tt.wantMsg, verr.Error())
		})
	}
}

func TestNew(t *testing.T) {
	err := New("quantity must be greater than 0", "destination is required")
	assert.Equal(t, "quantity must be greater than 0, destination is required", err.Error())
	assert.Len(t, err.Fields, 2)
}

type nested struct {
	Inner struct {
		Email string `json:"email" validate:"required,email"`
	} `json:"deliveryPersonnel"`
}

func TestStructNestedFieldPath(t *testing.T) {
	err := Struct(nested{})

	var verr *Error
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "deliveryPersonnel.email", verr.Fields[0].Field)
	assert.Equal(t, "deliveryPersonnel.email is required", verr.Error())
}
