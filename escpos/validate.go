package escpos

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var ErrInvalidSale = errors.New("invalid sale")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks what Encode assumes: at least one item, no negative money, positive
// quantities. Encode itself never rejects input.
func Validate(sale *Sale) error {
	if sale == nil {
		return fmt.Errorf("%w: sale is required", ErrInvalidSale)
	}
	if err := validate.Struct(sale); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %s", ErrInvalidSale, fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidSale, err)
	}
	for i, it := range sale.Items {
		if !it.Quantity.IsPositive() {
			return fmt.Errorf("%w: item %d quantity must be positive", ErrInvalidSale, i+1)
		}
	}
	return nil
}
