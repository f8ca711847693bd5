package enums

import "fmt"

// PaymentMethod identifies the rail a payment arrived on.
type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodUPI          PaymentMethod = "upi"
	PaymentMethodWallet       PaymentMethod = "wallet"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodCash,
	PaymentMethodUPI,
	PaymentMethodWallet,
	PaymentMethodBankTransfer,
}

// String implements fmt.Stringer.
func (p PaymentMethod) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentMethod.
func (p PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsSettlementMethod reports whether the method can settle an order.
// Bank transfers are only booked as free-standing ledger payments.
func (p PaymentMethod) IsSettlementMethod() bool {
	switch p {
	case PaymentMethodCash, PaymentMethodUPI, PaymentMethodWallet:
		return true
	}
	return false
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	for _, candidate := range validPaymentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
