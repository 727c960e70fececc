package recurring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFireRequestValidate(t *testing.T) {
	tests := []struct {
		name  string
		req   FireRequest
		valid bool
	}{
		{"fire", FireRequest{Kind: RequestFire, LedgerID: "home", TemplateID: "rent"}, true},
		{"due check", FireRequest{Kind: RequestDueCheck, LedgerID: "home"}, true},
		{"fire without template", FireRequest{Kind: RequestFire, LedgerID: "home"}, false},
		{"missing ledger", FireRequest{Kind: RequestDueCheck}, false},
		{"unknown kind", FireRequest{Kind: "SKIP", LedgerID: "home"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidFireRequest)
			}
		})
	}
}
